package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-sync/internal/features/audit"
	"ledger-sync/internal/features/ledger"

	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid journal request")

type JournalService interface {
	Preview(ctx context.Context, req EntryRequest) (*Preview, error)
	Post(ctx context.Context, req EntryRequest) (*PostResult, error)
}

type JournalServiceImpl struct {
	clients ledger.ClientFactory
	audit   audit.AuditService
	log     *zap.Logger
}

func NewJournalService(clients ledger.ClientFactory, auditService audit.AuditService, log *zap.Logger) JournalService {
	return &JournalServiceImpl{
		clients: clients,
		audit:   auditService,
		log:     log.Named("journal"),
	}
}

func (s *JournalServiceImpl) build(req EntryRequest) (*Preview, error) {
	if req.TxnDate != "" {
		if _, err := time.Parse("2006-01-02", req.TxnDate); err != nil {
			return nil, fmt.Errorf("%w: txn_date must be YYYY-MM-DD", ErrInvalidRequest)
		}
	}
	opts := DefaultOptions()
	if req.Places != nil {
		opts.Places = *req.Places
	}
	opts.BalancingAccount = req.BalancingAccount
	opts.Refs = req.Refs

	lines, totals, err := Balance(req.Contributions, opts)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Lines:   lines,
		Totals:  totals,
		Payload: BuildJournalEntry(lines, req.TxnDate, req.Memo),
	}, nil
}

// Preview balances the request without touching the ledger.
func (s *JournalServiceImpl) Preview(ctx context.Context, req EntryRequest) (*Preview, error) {
	return s.build(req)
}

func (s *JournalServiceImpl) Post(ctx context.Context, req EntryRequest) (*PostResult, error) {
	preview, err := s.build(req)
	if err != nil {
		return nil, err
	}
	if !preview.Totals.Adjustment.IsZero() {
		s.log.Warn("Journal adjusted to balance",
			zap.String("account", req.BalancingAccount),
			zap.String("adjustment", preview.Totals.Adjustment.String()))
	}

	client, err := s.clients.New(ctx)
	if err != nil {
		return nil, err
	}

	entry := audit.Entry{ActionType: "POST_JOURNAL", Kind: "journal", Stage: "push", RequestPayload: preview.Payload}

	obj, err := client.Create(ctx, "JournalEntry", preview.Payload)
	if err != nil {
		s.log.Error("Ledger rejected journal entry", zap.Error(err))
		entry.OperationStatus = audit.StatusError
		entry.ErrorMessage = err.Error()
		var fault *ledger.RemoteFault
		if errors.As(err, &fault) {
			entry.ResponsePayload = fault.Errors
		}
		s.audit.Record(ctx, entry)
		return nil, err
	}

	externalID := ledger.ObjectID(obj)
	entry.OperationStatus = audit.StatusSuccess
	entry.ExternalID = externalID
	entry.RecordID = externalID
	entry.ResponsePayload = obj
	s.audit.Record(ctx, entry)

	s.log.Info("Journal entry posted",
		zap.String("external_id", externalID),
		zap.Int("lines", len(preview.Lines)),
		zap.String("total", preview.Totals.Debit.String()))
	return &PostResult{ExternalID: externalID, Lines: preview.Lines, Totals: preview.Totals}, nil
}
