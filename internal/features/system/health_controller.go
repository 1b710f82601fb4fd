package system

import (
	"context"
	"errors"
	"time"

	"ledger-sync/internal/database"
	"ledger-sync/internal/features/ledger"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by *sql.DB and the Mongo client wrapper below.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type mongoPinger struct {
	db *database.MongodbDB
}

func (p mongoPinger) PingContext(ctx context.Context) error {
	return p.db.DB.Client().Ping(ctx, nil)
}

type HealthController struct {
	mongo Pinger
	mis   Pinger
	vault ledger.TokenVault
}

func NewHealthController(mongodb *database.MongodbDB, mis *database.MisDB, vault ledger.TokenVault) *HealthController {
	return &HealthController{
		mongo: mongoPinger{db: mongodb},
		mis:   mis.DB,
		vault: vault,
	}
}

func (h *HealthController) HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Ready reports each dependency the sync engine needs. A missing ledger
// connection is reported but does not make the service unready.
func (h *HealthController) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	if err := h.mongo.PingContext(ctx); err != nil {
		checks["mongo"] = err.Error()
		ready = false
	} else {
		checks["mongo"] = "ok"
	}

	if err := h.mis.PingContext(ctx); err != nil {
		checks["mis"] = err.Error()
		ready = false
	} else {
		checks["mis"] = "ok"
	}

	switch _, err := h.vault.Load(ctx); {
	case err == nil:
		checks["ledger"] = "connected"
	case errors.Is(err, ledger.ErrNotConnected):
		checks["ledger"] = "not connected"
	default:
		checks["ledger"] = err.Error()
	}

	status := fiber.StatusOK
	if !ready {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"ready": ready, "checks": checks})
}
