package ledger

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type LedgerApi struct {
	controller *ConnectionController
	config     *config.Config
}

func NewLedgerApi(controller *ConnectionController, config *config.Config) *LedgerApi {
	return &LedgerApi{
		controller: controller,
		config:     config,
	}
}

func (h *LedgerApi) Setup(app *fiber.App) {
	// The provider redirects the browser here without our bearer token.
	app.Get("/api/ledger/callback", h.controller.Callback)

	ledger := app.Group("/api/ledger", middleware.AuthMiddleware(h.config.SkipAuth))
	ledger.Get("/connect", h.controller.Connect)
	ledger.Get("/status", h.controller.Status)
	ledger.Get("/currency", h.controller.Currency)
	ledger.Post("/disconnect", h.controller.Disconnect)
}
