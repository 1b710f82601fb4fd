package middleware

import (
	"strings"

	"ledger-sync/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSMiddleware allows the operator console origins listed in CORS_ALLOWED_ORIGINS.
func CORSMiddleware(cfg *config.Config) fiber.Handler {
	origins := strings.Join(cfg.CORSAllowedOrigins, ", ")
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,X-Requested-With",
		AllowCredentials: origins != "*",
	})
}
