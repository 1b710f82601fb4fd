package journal

import (
	"errors"

	"ledger-sync/internal/features/ledger"

	"github.com/gofiber/fiber/v2"
)

type JournalController struct {
	Service JournalService
}

func NewJournalController(service JournalService) *JournalController {
	return &JournalController{Service: service}
}

func (ctrl *JournalController) Preview(c *fiber.Ctx) error {
	var req EntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	preview, err := ctrl.Service.Preview(c.UserContext(), req)
	if err != nil {
		return journalError(c, err)
	}
	return c.JSON(preview)
}

func (ctrl *JournalController) Post(c *fiber.Ctx) error {
	var req EntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	result, err := ctrl.Service.Post(c.UserContext(), req)
	if err != nil {
		return journalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func journalError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNoContributions):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUnbalanced):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotConnected):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
