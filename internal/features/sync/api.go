package sync

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/middleware"
	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
	config     *config.Config
}

func NewSyncApi(controller *SyncController, config *config.Config) *SyncApi {
	return &SyncApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the single-record and inspection routes. Batch routes live
// with the orchestrator under the same prefix.
func (h *SyncApi) Setup(app *fiber.App) {
	syncGroup := app.Group("/api/sync", middleware.AuthMiddleware(h.config.SkipAuth))

	syncGroup.Get("/kinds", h.controller.Kinds)
	syncGroup.Get("/:kind/unsynced", h.controller.ListUnsynced)
	syncGroup.Get("/:kind/analyze", h.controller.Analyze)
	syncGroup.Post("/:kind/:id", middleware.RequireRole(utils.RoleOperator), h.controller.SyncOne)
	syncGroup.Put("/:kind/:id", middleware.RequireRole(utils.RoleOperator), h.controller.UpdateOne)
}
