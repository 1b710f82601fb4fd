package batch

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/middleware"
	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type BatchApi struct {
	controller *BatchController
	config     *config.Config
}

func NewBatchApi(controller *BatchController, config *config.Config) *BatchApi {
	return &BatchApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers the orchestrator routes. They share the /api/sync prefix
// with the single-record routes, so auth is attached per route rather than
// to the prefix.
func (h *BatchApi) Setup(app *fiber.App) {
	batchGroup := app.Group("/api/sync")

	auth := middleware.AuthMiddleware(h.config.SkipAuth)
	operator := middleware.RequireRole(utils.RoleOperator)
	batchGroup.Get("/jobs/:job_id", auth, h.controller.Job)
	batchGroup.Get("/:kind/progress", auth, h.controller.Progress)
	batchGroup.Post("/:kind/batch", auth, operator, h.controller.Dispatch)
	batchGroup.Post("/:kind/all", auth, operator, h.controller.SyncAll)
	batchGroup.Post("/:kind/bulk", auth, operator, h.controller.BulkSync)
	batchGroup.Post("/:kind/cursor/reset", auth, operator, h.controller.ResetCursor)
}
