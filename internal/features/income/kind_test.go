package income

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ledger-sync/internal/database"
	"ledger-sync/internal/features/ledger/ledgertest"
	sync_feature "ledger-sync/internal/features/sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openCategories(t *testing.T) *CategoryRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
		CREATE TABLE tbl_income_category (
			id INTEGER PRIMARY KEY, name TEXT, description TEXT, camp_id INTEGER,
			QuickBk_ctgId TEXT, income_account_status INTEGER, income_account_qb TEXT,
			pushed_by TEXT, pushed_date DATETIME
		);
		INSERT INTO tbl_income_category (id, name, description, camp_id, income_account_status) VALUES
			(1, 'Tuition Fees', 'Undergraduate tuition', 1, 0),
			(2, '', NULL, 1, NULL);
	`)
	require.NoError(t, err)
	return NewCategoryRepository(&database.MisDB{DB: db, Driver: "sqlite3"}, zap.NewNop())
}

func TestCategoryRoundTrip(t *testing.T) {
	repo := openCategories(t)
	kind := NewCategoryKind(repo)
	ctx := context.Background()

	rec, err := kind.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Tuition Fees", rec.Label)

	payload, err := kind.MapPayload(ctx, ledgertest.NewClient(), rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"Name":        "Tuition Fees",
		"Description": "Undergraduate tuition",
		"AccountType": "Income",
	}, payload)

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	ok, err := kind.Claim(ctx, rec, "op", now, false)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, kind.MarkSynced(ctx, "1", "310", "op", now))

	rec, err = kind.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, sync_feature.StatusSynced, rec.Status)
	assert.Equal(t, "310", rec.ExternalID)
}

func TestCategoryWithoutNameIsMappingError(t *testing.T) {
	kind := NewCategoryKind(openCategories(t))
	rec, err := kind.Fetch(context.Background(), "2")
	require.NoError(t, err)

	_, err = kind.MapPayload(context.Background(), ledgertest.NewClient(), rec)
	var mapErr *sync_feature.MappingError
	assert.True(t, errors.As(err, &mapErr))
}
