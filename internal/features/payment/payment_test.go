package payment

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/database"
	"ledger-sync/internal/features/ledger/ledgertest"
	"ledger-sync/internal/features/mis"
	sync_feature "ledger-sync/internal/features/sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE payment (
	id INTEGER PRIMARY KEY, trans_code TEXT, reg_no TEXT, bank_id INTEGER, amount NUMERIC,
	date TEXT, invoi_ref TEXT, student_wallet_ref TEXT,
	QuickBk_Status INTEGER, qk_id TEXT, pushed_by TEXT, pushed_date DATETIME
);
CREATE TABLE tbl_bank (bank_id INTEGER PRIMARY KEY, bank_name TEXT, qk_id TEXT);
CREATE TABLE tbl_personal_ug (reg_no TEXT PRIMARY KEY, qk_id TEXT);
CREATE TABLE tbl_online_application (tracking_id TEXT PRIMARY KEY, quickbooks_id TEXT, camp_id INTEGER);
CREATE TABLE tbl_imvoice (id INTEGER PRIMARY KEY, reference_number TEXT, quickbooks_id TEXT);

INSERT INTO tbl_bank VALUES (1, 'Bank of Kigali', '41'), (2, 'Equity', NULL), (3, 'Closed Bank', '99');
INSERT INTO tbl_personal_ug VALUES ('STU-1', '501');
INSERT INTO tbl_online_application VALUES ('APP-1', NULL, 1);
INSERT INTO tbl_imvoice VALUES (1, 'INV-1', '9001');

INSERT INTO payment (id, trans_code, reg_no, bank_id, amount, date, invoi_ref, QuickBk_Status) VALUES
	(1, 'TX-1', 'STU-1', 1, 25000.5, '2026-02-03', 'INV-1', 0),
	(2, 'TX-2', 'STU-1', 2, 1000, '', NULL, 0),
	(3, 'TX-3', 'STU-1', 3, 1000, '03/02/2026', 'INV-UNSYNCED', 0),
	(4, 'TX-4', 'APP-1', 1, 1000, NULL, NULL, 0),
	(5, 'TX-5', 'STU-1', 1, 0, NULL, NULL, 0),
	(6, 'TX-6', 'STU-1', 7, 1000, NULL, NULL, 0);
`

type fixture struct {
	kind   sync_feature.Kind
	mapper *PaymentMapper
	client *ledgertest.Client
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)

	misDB := &database.MisDB{DB: db, Driver: "sqlite3"}
	mapper := NewPaymentMapper(cfg, mis.NewDirectory(misDB), zap.NewNop())
	mapper.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }

	client := ledgertest.NewClient()
	client.Put("Account", "41", nil)
	return &fixture{
		kind:   NewPaymentKind(NewPaymentRepository(misDB, zap.NewNop()), mapper),
		mapper: mapper,
		client: client,
	}
}

func (f *fixture) mapPayment(t *testing.T, id string) (map[string]any, error) {
	t.Helper()
	rec, err := f.kind.Fetch(context.Background(), id)
	require.NoError(t, err)
	return f.kind.MapPayload(context.Background(), f.client, rec)
}

func mappingField(t *testing.T, err error) string {
	t.Helper()
	var mapErr *sync_feature.MappingError
	require.True(t, errors.As(err, &mapErr), "expected mapping error, got %v", err)
	return mapErr.Field
}

func TestMapPaymentLinkedToInvoice(t *testing.T) {
	f := newFixture(t, &config.Config{PaymentMethodID: "2"})

	payload, err := f.mapPayment(t, "1")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"value": "501"}, payload["CustomerRef"])
	assert.Equal(t, map[string]any{"value": "41"}, payload["DepositToAccountRef"])
	assert.Equal(t, map[string]any{"value": "2"}, payload["PaymentMethodRef"])
	assert.Equal(t, 25000.5, payload["TotalAmt"])
	assert.Equal(t, "2026-02-03", payload["TxnDate"])
	assert.Equal(t, "MIS Payment ID: 1, Trans Code: TX-1", payload["PrivateNote"])

	lines := payload["Line"].([]map[string]any)
	require.Len(t, lines, 1)
	assert.Equal(t, []map[string]any{{"TxnId": "9001", "TxnType": "Invoice"}}, lines[0]["LinkedTxn"])
}

func TestUnsyncedBankWithoutFallbackFails(t *testing.T) {
	f := newFixture(t, &config.Config{})
	_, err := f.mapPayment(t, "2")
	assert.Equal(t, "deposit_account", mappingField(t, err))
}

func TestUnsyncedBankUsesFallbackWhenAllowed(t *testing.T) {
	f := newFixture(t, &config.Config{PaymentAllowFallbackAccount: true, PaymentFallbackAccountID: "35"})

	payload, err := f.mapPayment(t, "2")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": "35"}, payload["DepositToAccountRef"])
	assert.Equal(t, "2026-04-01", payload["TxnDate"])
	assert.NotContains(t, payload, "PaymentMethodRef")
}

func TestDeletedBankAccountIsDetected(t *testing.T) {
	f := newFixture(t, &config.Config{})
	_, err := f.mapPayment(t, "3")
	assert.Equal(t, "deposit_account", mappingField(t, err))
}

func TestUnsyncedInvoiceLeavesPaymentUnapplied(t *testing.T) {
	f := newFixture(t, &config.Config{})
	f.client.Put("Account", "99", nil)

	payload, err := f.mapPayment(t, "3")
	require.NoError(t, err)
	assert.NotContains(t, payload, "Line")
	assert.Equal(t, "2026-02-03", payload["TxnDate"])
}

func TestPaymentMappingErrors(t *testing.T) {
	f := newFixture(t, &config.Config{})

	_, err := f.mapPayment(t, "4")
	assert.Equal(t, "customer_ref", mappingField(t, err))

	_, err = f.mapPayment(t, "5")
	assert.Equal(t, "amount", mappingField(t, err))

	_, err = f.mapPayment(t, "6")
	assert.Equal(t, "deposit_account", mappingField(t, err))
}

func TestPaymentStatusWrites(t *testing.T) {
	f := newFixture(t, &config.Config{})
	ctx := context.Background()

	rec, err := f.kind.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "TX-1", rec.Label)

	ok, err := f.kind.Claim(ctx, rec, "op", time.Now().UTC(), false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.kind.MarkFailed(ctx, "1", "op", time.Now().UTC()))

	rec, err = f.kind.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, sync_feature.StatusFailed, rec.Status)
}
