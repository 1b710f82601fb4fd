package middleware

import (
	"slices"

	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// RequireRole lets the request through only if the caller holds role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !slices.Contains(claims.Roles, role) && !slices.Contains(claims.Roles, utils.RoleAdmin) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: " + role + " role required",
			})
		}

		return c.Next()
	}
}
