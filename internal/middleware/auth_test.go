package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"ledger-sync/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countValidations(t *testing.T) *int {
	t.Helper()
	calls := 0
	validateToken = func(token string) (*utils.UserClaims, error) {
		calls++
		return utils.ValidateToken(token)
	}
	t.Cleanup(func() { validateToken = utils.ValidateToken })
	return &calls
}

func operatorToken(t *testing.T) string {
	t.Helper()
	utils.SetSecret("test-secret")
	token, err := utils.GenerateToken("finance-1", []string{utils.RoleOperator}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestSharedPrefixValidatesTokenOnce(t *testing.T) {
	calls := countValidations(t)
	token := operatorToken(t)

	app := fiber.New()
	auth := AuthMiddleware(false)
	app.Group("/api/sync", auth).Get("/kinds", func(c *fiber.Ctx) error { return c.SendString("kinds") })
	app.Group("/api/sync").Post("/:kind/batch", auth, RequireRole(utils.RoleOperator), func(c *fiber.Ctx) error {
		return c.SendString(utils.ActorFromContext(c.UserContext()))
	})

	req := httptest.NewRequest("POST", "/api/sync/invoice/batch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, *calls)

	req = httptest.NewRequest("GET", "/api/sync/kinds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, *calls)
}

func TestMissingTokenIsRejected(t *testing.T) {
	app := fiber.New()
	app.Get("/api/sync/kinds", AuthMiddleware(false), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/sync/kinds", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
