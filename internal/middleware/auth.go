package middleware

import (
	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

var validateToken = utils.ValidateToken

// AuthMiddleware validates operator JWTs and injects claims into the request.
// A request that already carries claims is passed through, so route groups
// sharing a prefix validate the token once.
func AuthMiddleware(skipAuth bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
			return c.Next()
		}
		if skipAuth {
			claims := &utils.UserClaims{
				UserID: "dev-operator",
				Roles:  []string{utils.RoleOperator},
			}
			setClaims(c, claims)
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := validateToken(authHeader[7:])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

func setClaims(c *fiber.Ctx, claims *utils.UserClaims) {
	c.Locals(utils.UserClaimsKey, claims)
	c.SetUserContext(utils.WithActor(c.UserContext(), claims.UserID))
}
