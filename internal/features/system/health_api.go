package system

import (
	"github.com/gofiber/fiber/v2"
)

type HealthApi struct {
	controller *HealthController
}

func NewHealthApi(controller *HealthController) *HealthApi {
	return &HealthApi{controller: controller}
}

// Setup registers health check routes
func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/health", h.controller.HealthCheck)
	app.Get("/health/ready", h.controller.Ready)
}
