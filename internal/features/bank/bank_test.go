package bank

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"ledger-sync/internal/config"
	"ledger-sync/internal/database"
	"ledger-sync/internal/features/ledger"
	"ledger-sync/internal/features/ledger/ledgertest"
	sync_feature "ledger-sync/internal/features/sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openBanks(t *testing.T) *database.MisDB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
		CREATE TABLE tbl_bank (
			bank_id INTEGER PRIMARY KEY, bank_code TEXT, bank_name TEXT, bank_branch TEXT,
			account_no TEXT, currency TEXT, status VARCHAR(10), qk_id TEXT,
			pushed_by TEXT, pushed_date DATETIME
		);
		INSERT INTO tbl_bank (bank_id, bank_code, bank_name, bank_branch, account_no, currency, status, qk_id) VALUES
			(1, 'BK', 'Bank of Kigali', 'Remera', '000123', 'rwf', 'active', NULL),
			(2, 'EQ', 'Equity', '', '555', 'KES', '1', '41');
	`)
	require.NoError(t, err)
	return &database.MisDB{DB: db, Driver: "sqlite3"}
}

func newMapper(strategy string) *BankMapper {
	return NewBankMapper(&config.Config{BankCurrencyStrategy: strategy, LedgerBaseCurrency: "RWF"}, zap.NewNop())
}

func TestGetLoadsBank(t *testing.T) {
	repo := NewBankRepository(openBanks(t), zap.NewNop())

	rec, err := repo.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, sync_feature.StatusNotSynced, rec.Status)
	assert.Equal(t, "active", rec.RawStatus)
	b := rec.Source.(*Bank)
	assert.Equal(t, "Bank of Kigali - Remera", b.DisplayName())
	assert.Equal(t, "RWF", b.Currency)

	rec, err = repo.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, sync_feature.StatusSynced, rec.Status)
	assert.Equal(t, "41", rec.ExternalID)

	_, err = repo.Get(context.Background(), "9")
	assert.True(t, errors.Is(err, sync_feature.ErrRecordNotFound))
}

func TestMapBankAccount(t *testing.T) {
	client := ledgertest.NewClient()
	b := &Bank{ID: "1", Name: "Bank of Kigali", Branch: "Remera", AccountNo: "000123", Currency: "USD"}

	payload, err := newMapper("MATCH_BANK").Map(context.Background(), client, b)
	require.NoError(t, err)
	assert.Equal(t, "Bank of Kigali - Remera", payload["Name"])
	assert.Equal(t, "Bank", payload["AccountType"])
	assert.Equal(t, "Checking", payload["AccountSubType"])
	assert.Equal(t, "000123", payload["AcctNum"])
	assert.Equal(t, "MIS Bank ID: 1 - Bank of Kigali Remera", payload["Description"])
	assert.Equal(t, map[string]any{"value": "USD"}, payload["CurrencyRef"])
}

func TestMapBankRequiresName(t *testing.T) {
	_, err := newMapper("OMIT").Map(context.Background(), ledgertest.NewClient(), &Bank{ID: "3"})
	var mapErr *sync_feature.MappingError
	assert.True(t, errors.As(err, &mapErr))
}

func TestCurrencyStrategies(t *testing.T) {
	single := ledgertest.NewClient()
	multi := ledgertest.NewClient()
	multi.Currency = &ledger.CompanyCurrency{MultiCurrencyEnabled: true, HomeCurrency: "RWF"}
	broken := ledgertest.NewClient()
	broken.CurrencyErr = errors.New("timeout")

	tests := []struct {
		name     string
		strategy string
		client   ledger.Client
		bankCur  string
		want     string
	}{
		{"Omit", "OMIT", multi, "USD", ""},
		{"Force base", "FORCE_BASE", single, "USD", "RWF"},
		{"Match supported", "MATCH_BANK", single, "eur", "EUR"},
		{"Match unsupported falls back to base", "MATCH_BANK", single, "KES", "RWF"},
		{"Auto on single currency omits", "AUTO_DETECT", single, "USD", ""},
		{"Auto on multi currency matches", "AUTO_DETECT", multi, "GBP", "GBP"},
		{"Auto probe failure omits", "AUTO_DETECT", broken, "USD", ""},
		{"Auto skips probe for base currency", "AUTO_DETECT", broken, "rwf", ""},
		{"Unknown strategy behaves as auto", "SOMETHING", multi, "USD", "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMapper(tt.strategy).DecideCurrency(context.Background(), tt.client, tt.bankCur)
			assert.Equal(t, tt.want, d.Currency)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestKindMapsThroughRecord(t *testing.T) {
	kind := NewBankKind(NewBankRepository(openBanks(t), zap.NewNop()), newMapper("OMIT"))
	assert.Equal(t, "bank", kind.Name())
	assert.Equal(t, "Account", kind.ObjectType())

	rec, err := kind.Fetch(context.Background(), "1")
	require.NoError(t, err)
	payload, err := kind.MapPayload(context.Background(), ledgertest.NewClient(), rec)
	require.NoError(t, err)
	assert.NotContains(t, payload, "CurrencyRef")
}
