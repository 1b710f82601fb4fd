package cron_feature

import (
	"errors"

	sync_feature "ledger-sync/internal/features/sync"

	"github.com/gofiber/fiber/v2"
)

type SchedulerController struct {
	Service SchedulerService
}

func NewSchedulerController(service SchedulerService) *SchedulerController {
	return &SchedulerController{
		Service: service,
	}
}

func (c *SchedulerController) ListSchedules(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"schedules": c.Service.Schedules()})
}

func (c *SchedulerController) RunNow(ctx *fiber.Ctx) error {
	runLog, err := c.Service.RunNow(ctx.UserContext(), ctx.Params("kind"))
	if err != nil {
		if errors.Is(err, sync_feature.ErrUnknownKind) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "run": runLog})
	}
	return ctx.Status(fiber.StatusAccepted).JSON(runLog)
}

func (c *SchedulerController) GetRunLogs(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	logs, err := c.Service.GetRunLogs(ctx.UserContext(), ctx.Params("kind"), limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(logs)
}
