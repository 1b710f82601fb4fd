package system

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"ledger-sync/internal/features/ledger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type MockVault struct {
	ledger.TokenVault
	err error
}

func (m *MockVault) Load(ctx context.Context) (*ledger.OAuthSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &ledger.OAuthSession{RealmID: "r"}, nil
}

func ok(ctx context.Context) error { return nil }

func readyResponse(t *testing.T, h *HealthController) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	NewHealthApi(h).Setup(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestReadyWithoutLedgerConnection(t *testing.T) {
	h := &HealthController{mongo: pingFunc(ok), mis: pingFunc(ok), vault: &MockVault{err: ledger.ErrNotConnected}}

	status, body := readyResponse(t, h)
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "not connected", body["checks"].(map[string]any)["ledger"])
}

func TestReadyFailsWhenMisIsDown(t *testing.T) {
	h := &HealthController{
		mongo: pingFunc(ok),
		mis:   pingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
		vault: &MockVault{},
	}

	status, body := readyResponse(t, h)
	assert.Equal(t, 503, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "connection refused", checks["mis"])
	assert.Equal(t, "connected", checks["ledger"])
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	NewHealthApi(&HealthController{}).Setup(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
