package journal

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/middleware"
	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type JournalApi struct {
	controller *JournalController
	config     *config.Config
}

func NewJournalApi(controller *JournalController, config *config.Config) *JournalApi {
	return &JournalApi{
		controller: controller,
		config:     config,
	}
}

func (h *JournalApi) Setup(app *fiber.App) {
	journalGroup := app.Group("/api/journal", middleware.AuthMiddleware(h.config.SkipAuth))

	journalGroup.Post("/preview", h.controller.Preview)
	journalGroup.Post("/entries", middleware.RequireRole(utils.RoleOperator), h.controller.Post)
}
