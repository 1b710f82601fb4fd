package batch

import (
	"errors"

	sync_feature "ledger-sync/internal/features/sync"

	"github.com/gofiber/fiber/v2"
)

type BatchController struct {
	Orchestrator Orchestrator
}

func NewBatchController(orchestrator Orchestrator) *BatchController {
	return &BatchController{Orchestrator: orchestrator}
}

type dispatchBody struct {
	BatchSize   int      `json:"batch_size"`
	IDs         []string `json:"ids"`
	Limit       int      `json:"limit"`
	Force       bool     `json:"force"`
	ResetCursor bool     `json:"reset_cursor"`
}

func (ctrl *BatchController) Dispatch(c *fiber.Ctx) error {
	var body dispatchBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	resp, err := ctrl.Orchestrator.Dispatch(c.UserContext(), DispatchRequest{
		Kind:        c.Params("kind"),
		IDs:         body.IDs,
		BatchSize:   body.BatchSize,
		Limit:       body.Limit,
		Force:       body.Force,
		ResetCursor: body.ResetCursor,
	})
	if err != nil {
		return batchError(c, err)
	}
	if resp.JobID == "" {
		return c.JSON(resp)
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

type syncAllBody struct {
	BatchSize  int `json:"batch_size"`
	MaxBatches int `json:"max_batches"`
}

func (ctrl *BatchController) SyncAll(c *fiber.Ctx) error {
	var body syncAllBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	summary, err := ctrl.Orchestrator.SyncAll(c.UserContext(), c.Params("kind"), body.BatchSize, body.MaxBatches)
	if err != nil {
		return batchError(c, err)
	}
	if summary.Stopped != "" && summary.Counts.Synced == 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(summary)
	}
	return c.JSON(summary)
}

type bulkBody struct {
	IDs   []string `json:"ids"`
	Force bool     `json:"force"`
}

func (ctrl *BatchController) BulkSync(c *fiber.Ctx) error {
	var body bulkBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(body.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids are required"})
	}

	summary, err := ctrl.Orchestrator.BulkSync(c.UserContext(), c.Params("kind"), body.IDs, body.Force)
	if err != nil {
		return batchError(c, err)
	}
	return c.JSON(summary)
}

func (ctrl *BatchController) Job(c *fiber.Ctx) error {
	job, err := ctrl.Orchestrator.Job(c.UserContext(), c.Params("job_id"))
	if err != nil {
		return batchError(c, err)
	}
	return c.JSON(job)
}

func (ctrl *BatchController) Progress(c *fiber.Ctx) error {
	progress, err := ctrl.Orchestrator.Progress(c.UserContext(), c.Params("kind"))
	if err != nil {
		return batchError(c, err)
	}
	return c.JSON(progress)
}

func (ctrl *BatchController) ResetCursor(c *fiber.Ctx) error {
	kind := c.Params("kind")
	if err := ctrl.Orchestrator.ResetCursor(c.UserContext(), kind); err != nil {
		return batchError(c, err)
	}
	return c.JSON(fiber.Map{"kind": kind, "offset": 0, "message": "cursor reset"})
}

func batchError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sync_feature.ErrUnknownKind), errors.Is(err, ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidBatchSize), errors.Is(err, ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrDispatcherClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
