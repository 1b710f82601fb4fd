package sync

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	Service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{Service: service}
}

// HTTPStatus maps an action onto the response code callers act on:
// 409 retry later, 422 fix and resubmit, 503 connect first.
func (r SyncResult) HTTPStatus() int {
	switch r.ActionTaken {
	case ActionCreated:
		return fiber.StatusCreated
	case ActionAlreadySynced, ActionUpdated:
		return fiber.StatusOK
	case ActionInProgress:
		return fiber.StatusConflict
	case ActionFailedMapping:
		return fiber.StatusUnprocessableEntity
	case ActionNotConnected:
		return fiber.StatusServiceUnavailable
	case ActionNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// reservedIDs are path segments owned by the batch routes sharing this prefix.
var reservedIDs = map[string]bool{"batch": true, "all": true, "bulk": true}

func (ctrl *SyncController) SyncOne(c *fiber.Ctx) error {
	if reservedIDs[c.Params("id")] {
		return c.Next()
	}
	force := c.QueryBool("force", false)
	result, err := ctrl.Service.SyncOne(c.UserContext(), c.Params("kind"), c.Params("id"), force)
	if err != nil {
		return kindError(c, err)
	}
	return c.Status(result.HTTPStatus()).JSON(result)
}

func (ctrl *SyncController) UpdateOne(c *fiber.Ctx) error {
	result, err := ctrl.Service.UpdateOne(c.UserContext(), c.Params("kind"), c.Params("id"))
	if err != nil {
		return kindError(c, err)
	}
	return c.Status(result.HTTPStatus()).JSON(result)
}

func (ctrl *SyncController) ListUnsynced(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit"})
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offset"})
	}

	page, err := ctrl.Service.ListUnsynced(c.UserContext(), c.Params("kind"), limit, offset)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return kindError(c, err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(page)
}

func (ctrl *SyncController) Analyze(c *fiber.Ctx) error {
	analysis, err := ctrl.Service.Analyze(c.UserContext(), c.Params("kind"))
	if err != nil {
		return kindError(c, err)
	}
	return c.JSON(analysis)
}

func (ctrl *SyncController) Kinds(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"kinds": ctrl.Service.Kinds()})
}

func kindError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrUnknownKind) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
