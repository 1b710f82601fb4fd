package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"ledger-sync/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/fx"
)

// MisDB is the student-management source database the sync engine reads from
// and writes status markers back to.
type MisDB struct {
	DB     *sql.DB
	Driver string
}

// NewMisDatabase opens the MIS connection pool. The driver is "mysql" for the
// production schema; "postgres" is accepted for replicas.
func NewMisDatabase(lc fx.Lifecycle, cfg *config.Config) (*MisDB, error) {
	switch cfg.MISDriver {
	case "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported MIS driver: %s", cfg.MISDriver)
	}

	db, err := sql.Open(cfg.MISDriver, cfg.MISDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIS database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MIS database: %w", err)
	}

	log.Printf("Connected to MIS database (%s)!", cfg.MISDriver)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Closing MIS database...")
			return db.Close()
		},
	})

	return &MisDB{DB: db, Driver: cfg.MISDriver}, nil
}

// Rebind rewrites '?' placeholders into the driver's native form.
func (m *MisDB) Rebind(query string) string {
	return Rebind(m.Driver, query)
}

// Rebind rewrites '?' placeholders to $N for postgres and leaves them alone otherwise.
func Rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
