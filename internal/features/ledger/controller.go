package ledger

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type ConnectionController struct {
	Service ConnectionService
}

func NewConnectionController(service ConnectionService) *ConnectionController {
	return &ConnectionController{Service: service}
}

func (ctrl *ConnectionController) Connect(c *fiber.Ctx) error {
	authURL, state := ctrl.Service.AuthorizationURL()
	if c.Query("redirect") == "true" {
		return c.Redirect(authURL, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{
		"authorization_url": authURL,
		"state":             state,
	})
}

func (ctrl *ConnectionController) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "authorization denied: " + errParam,
		})
	}

	status, err := ctrl.Service.Connect(c.UserContext(), c.Query("code"), c.Query("state"), c.Query("realmId"))
	if err != nil {
		code := fiber.StatusBadGateway
		if errors.Is(err, ErrInvalidState) {
			code = fiber.StatusBadRequest
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(status)
}

func (ctrl *ConnectionController) Status(c *fiber.Ctx) error {
	status, err := ctrl.Service.Status(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(status)
}

func (ctrl *ConnectionController) Disconnect(c *fiber.Ctx) error {
	if err := ctrl.Service.Disconnect(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "Disconnected"})
}

func (ctrl *ConnectionController) Currency(c *fiber.Ctx) error {
	currency, err := ctrl.Service.CompanyCurrency(c.UserContext())
	if err != nil {
		code := fiber.StatusBadGateway
		if errors.Is(err, ErrNotConnected) {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(currency)
}
