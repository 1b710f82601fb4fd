package audit

import (
	"strconv"

	"ledger-sync/pkg/condition"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	filters := make(map[string]interface{})
	for _, key := range []string{"kind", "record_id", "action_type", "operation_status", "stage"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}

	logs, err := ctrl.Service.ListLogs(c.UserContext(), filters, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(logs)
}

type searchRequest struct {
	Filter *condition.Group `json:"filter"`
	Page   int64            `json:"page"`
	Limit  int64            `json:"limit"`
}

func (ctrl *AuditController) Search(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	logs, err := ctrl.Service.Search(c.UserContext(), req.Filter, req.Page, req.Limit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(logs)
}
