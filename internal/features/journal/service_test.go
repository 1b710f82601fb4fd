package journal

import (
	"context"
	gosync "sync"
	"testing"

	"ledger-sync/internal/features/audit"
	"ledger-sync/internal/features/ledger"
	"ledger-sync/internal/features/ledger/ledgertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAudit struct {
	audit.AuditService
	mu      gosync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Record(ctx context.Context, entry audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func entryRequest() EntryRequest {
	return EntryRequest{
		Contributions: []Contribution{
			{Account: "10", Debit: d("1000.004")},
			{Account: "20", Credit: d("999.99")},
		},
		BalancingAccount: "99",
		TxnDate:          "2026-01-31",
		Memo:             "Opening balances",
	}
}

func TestPreviewDoesNotCallLedger(t *testing.T) {
	factory := &ledgertest.Factory{Err: ledger.ErrNotConnected}
	svc := NewJournalService(factory, &recordingAudit{}, zap.NewNop())

	preview, err := svc.Preview(context.Background(), entryRequest())
	require.NoError(t, err)
	assert.Len(t, preview.Lines, 3)
	assert.Equal(t, "0.01", preview.Totals.Adjustment.StringFixed(2))
	assert.Equal(t, "Opening balances", preview.Payload["PrivateNote"])
}

func TestPostCreatesJournalEntry(t *testing.T) {
	client := ledgertest.NewClient()
	auditLog := &recordingAudit{}
	svc := NewJournalService(&ledgertest.Factory{Client: client}, auditLog, zap.NewNop())

	result, err := svc.Post(context.Background(), entryRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, result.ExternalID)
	require.Len(t, client.Created, 1)
	assert.Equal(t, "JournalEntry", client.Created[0].ObjectType)

	require.Len(t, auditLog.entries, 1)
	assert.Equal(t, audit.StatusSuccess, auditLog.entries[0].OperationStatus)
	assert.Equal(t, result.ExternalID, auditLog.entries[0].ExternalID)
}

func TestPostAuditsLedgerRejection(t *testing.T) {
	client := ledgertest.NewClient()
	client.CreateErr = &ledger.RemoteFault{StatusCode: 400, Errors: []ledger.FaultError{{Message: "Invalid account", Code: "2500"}}}
	auditLog := &recordingAudit{}
	svc := NewJournalService(&ledgertest.Factory{Client: client}, auditLog, zap.NewNop())

	_, err := svc.Post(context.Background(), entryRequest())
	require.Error(t, err)
	require.Len(t, auditLog.entries, 1)
	assert.Equal(t, audit.StatusError, auditLog.entries[0].OperationStatus)
	assert.NotNil(t, auditLog.entries[0].ResponsePayload)
}

func TestPostRejectsBeforeConnecting(t *testing.T) {
	factory := &ledgertest.Factory{Err: ledger.ErrNotConnected}
	svc := NewJournalService(factory, &recordingAudit{}, zap.NewNop())

	req := entryRequest()
	req.BalancingAccount = ""
	_, err := svc.Post(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnbalanced)

	req = entryRequest()
	req.TxnDate = "31/01/2026"
	_, err = svc.Post(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Post(context.Background(), entryRequest())
	assert.ErrorIs(t, err, ledger.ErrNotConnected)
}
