package cron_feature

import (
	"ledger-sync/internal/config"
	"ledger-sync/internal/middleware"
	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type SchedulerApi struct {
	controller *SchedulerController
	config     *config.Config
}

func NewSchedulerApi(controller *SchedulerController, config *config.Config) *SchedulerApi {
	return &SchedulerApi{
		controller: controller,
		config:     config,
	}
}

func (h *SchedulerApi) Setup(app *fiber.App) {
	schedules := app.Group("/api/schedules", middleware.AuthMiddleware(h.config.SkipAuth))

	schedules.Get("/", h.controller.ListSchedules)
	schedules.Get("/:kind/runs", h.controller.GetRunLogs)
	schedules.Post("/:kind/run", middleware.RequireRole(utils.RoleOperator), h.controller.RunNow)
}
