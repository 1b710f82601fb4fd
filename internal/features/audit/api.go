package audit

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
}

func NewAuditApi(controller *AuditController, config *config.Config) *AuditApi {
	return &AuditApi{
		controller: controller,
		config:     config,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	audit := app.Group("/api/audit-logs", middleware.AuthMiddleware(h.config.SkipAuth))

	audit.Get("/", h.controller.ListLogs)
	audit.Post("/search", h.controller.Search)
}
