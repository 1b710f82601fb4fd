package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger-sync/internal/config"
	"ledger-sync/internal/features/audit"
	"ledger-sync/internal/features/ledger"
	"ledger-sync/pkg/utils"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

type Action string

const (
	ActionAlreadySynced   Action = "ALREADY_SYNCED"
	ActionCreated         Action = "CREATED"
	ActionUpdated         Action = "UPDATED"
	ActionInProgress      Action = "IN_PROGRESS"
	ActionFailedMapping   Action = "FAILED_MAPPING"
	ActionFailedRemote    Action = "FAILED_REMOTE"
	ActionFailedException Action = "FAILED_EXCEPTION"
	ActionNotFound        Action = "NOT_FOUND"
	ActionNotConnected    Action = "NOT_CONNECTED"
)

// SyncResult is the outcome of one record push.
type SyncResult struct {
	RecordID      string  `json:"record_id"`
	Kind          string  `json:"kind"`
	Success       bool    `json:"success"`
	ExternalID    string  `json:"external_id,omitempty"`
	AlreadySynced bool    `json:"already_synced"`
	InProgress    bool    `json:"in_progress,omitempty"`
	ActionTaken   Action  `json:"action_taken"`
	Error         string  `json:"error_message,omitempty"`
	Duration      float64 `json:"duration"`

	// Transient marks failures worth retrying later: timeouts, throttling
	// and ledger 5xx responses.
	Transient bool `json:"transient,omitempty"`
}

// Skipped reports results that neither created nor failed anything.
func (r SyncResult) Skipped() bool {
	return r.ActionTaken == ActionAlreadySynced || r.ActionTaken == ActionInProgress
}

// Executor pushes single records through the state machine, mapper and ledger client.
type Executor interface {
	SyncOne(ctx context.Context, kind Kind, id string, force bool) SyncResult
	UpdateOne(ctx context.Context, kind Kind, id string) SyncResult
}

type ExecutorImpl struct {
	clients ledger.ClientFactory
	audit   audit.AuditService
	window  time.Duration
	log     *zap.Logger

	now            func() time.Time
	persistBackOff func() backoff.BackOff
	persistTries   uint
}

func NewExecutor(cfg *config.Config, clients ledger.ClientFactory, auditService audit.AuditService, log *zap.Logger) Executor {
	return newExecutor(cfg, clients, auditService, log)
}

func newExecutor(cfg *config.Config, clients ledger.ClientFactory, auditService audit.AuditService, log *zap.Logger) *ExecutorImpl {
	return &ExecutorImpl{
		clients: clients,
		audit:   auditService,
		window:  cfg.StalenessWindow,
		log:     log.Named("sync_executor"),
		now:     func() time.Time { return time.Now().UTC() },
		persistBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		persistTries: 4,
	}
}

// run carries the per-invocation state shared by the steps below.
type run struct {
	kind    Kind
	id      string
	actor   string
	action  string
	started time.Time
	log     *zap.Logger
}

func (e *ExecutorImpl) SyncOne(ctx context.Context, kind Kind, id string, force bool) SyncResult {
	r := e.begin(ctx, kind, id, "SYNC")

	rec, err := kind.Fetch(ctx, id)
	if err != nil {
		return e.fetchFailure(r, err)
	}

	verdict := Decide(rec.SyncableRecord, force, r.started, e.window)
	switch verdict.Decision {
	case CheckProgressOrRetry:
		r.log.Info("Sync skipped, record in progress", zap.String("reason", verdict.Reason))
		return e.result(r, SyncResult{ActionTaken: ActionInProgress, InProgress: true, Error: verdict.Reason})
	case VerifyOrResync:
		r.log.Warn("Inconsistent sync state, resyncing", zap.String("reason", verdict.Reason))
	case ProceedWithSync:
		if force {
			r.log.Warn("Forced sync requested", zap.String("status", rec.Status.String()), zap.String("external_id", rec.ExternalID))
		}
	}

	client, err := e.clients.New(ctx)
	if err != nil {
		return e.clientFailure(ctx, r, err)
	}

	if verdict.Decision == SkipAlreadySynced {
		exists, err := client.Exists(ctx, kind.ObjectType(), rec.ExternalID)
		if err != nil {
			// Record stays SYNCED; nothing is claimed on an unverifiable state.
			e.recordAudit(ctx, r, audit.StatusError, "verify", rec.ExternalID, err, nil, nil)
			return e.result(r, SyncResult{ActionTaken: ActionFailedRemote, ExternalID: rec.ExternalID,
				Error: "remote verification failed: " + err.Error(), Transient: ledger.IsTransient(err)})
		}
		if exists {
			return e.result(r, SyncResult{Success: true, AlreadySynced: true, ExternalID: rec.ExternalID, ActionTaken: ActionAlreadySynced})
		}
		r.log.Warn("Synced record missing remotely, recreating", zap.String("external_id", rec.ExternalID))
	}

	return e.push(ctx, r, client, rec, force, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return client.Create(ctx, kind.ObjectType(), payload)
	}, ActionCreated)
}

// UpdateOne re-sends an already synced record as a sparse update of its
// external object. Records that are not synced yet go through SyncOne.
func (e *ExecutorImpl) UpdateOne(ctx context.Context, kind Kind, id string) SyncResult {
	r := e.begin(ctx, kind, id, "UPDATE")

	rec, err := kind.Fetch(ctx, id)
	if err != nil {
		return e.fetchFailure(r, err)
	}
	if rec.Status != StatusSynced || rec.ExternalID == "" {
		return e.SyncOne(ctx, kind, id, false)
	}

	client, err := e.clients.New(ctx)
	if err != nil {
		return e.clientFailure(ctx, r, err)
	}

	externalID := rec.ExternalID
	return e.push(ctx, r, client, rec, false, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return client.Update(ctx, kind.ObjectType(), externalID, payload)
	}, ActionUpdated)
}

func (e *ExecutorImpl) begin(ctx context.Context, kind Kind, id, action string) *run {
	actor := utils.ActorFromContext(ctx)
	return &run{
		kind:    kind,
		id:      id,
		actor:   actor,
		action:  action + "_" + strings.ToUpper(kind.Name()),
		started: e.now(),
		log: e.log.With(
			zap.String("kind", kind.Name()),
			zap.String("record_id", id),
			zap.String("actor", actor),
		),
	}
}

// push claims the record, maps it, sends it and persists the terminal status.
// Once the claim succeeds the record always leaves this function SYNCED or
// FAILED, including when something panics.
func (e *ExecutorImpl) push(
	ctx context.Context,
	r *run,
	client ledger.Client,
	rec *Record,
	force bool,
	send func(ctx context.Context, payload map[string]any) (map[string]any, error),
	success Action,
) (res SyncResult) {
	claimed, err := r.kind.Claim(ctx, rec, r.actor, r.started, force)
	if err != nil {
		r.log.Error("Failed to claim record", zap.Error(err))
		return e.result(r, SyncResult{ActionTaken: ActionFailedException, Error: "claim failed: " + err.Error()})
	}
	if !claimed {
		r.log.Info("Record claimed by another caller")
		return e.result(r, SyncResult{ActionTaken: ActionInProgress, InProgress: true, Error: "sync already in progress"})
	}

	// Status writes after the claim must land even if the caller went away.
	wctx := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			perr := fmt.Errorf("panic during sync: %v", p)
			r.log.Error("Recovered panic during sync", zap.Any("panic", p), zap.Stack("stack"))
			e.markFailed(wctx, r)
			e.recordAudit(wctx, r, audit.StatusError, "exception", "", perr, nil, nil)
			res = e.result(r, SyncResult{ActionTaken: ActionFailedException, Error: perr.Error()})
		}
	}()

	payload, err := r.kind.MapPayload(ctx, client, rec)
	if err != nil {
		e.markFailed(wctx, r)
		var mapErr *MappingError
		if errors.As(err, &mapErr) {
			r.log.Warn("Record cannot be mapped", zap.Error(err))
			e.recordAudit(wctx, r, audit.StatusError, "mapping", "", err, nil, nil)
			return e.result(r, SyncResult{ActionTaken: ActionFailedMapping, Error: err.Error()})
		}
		r.log.Error("Mapping lookup failed", zap.Error(err))
		e.recordAudit(wctx, r, audit.StatusError, "mapping", "", err, nil, nil)
		return e.result(r, SyncResult{ActionTaken: remoteAction(err), Error: err.Error(), Transient: ledger.IsTransient(err)})
	}

	obj, err := send(ctx, payload)
	if err != nil {
		e.markFailed(wctx, r)
		r.log.Error("Ledger rejected record", zap.Error(err))
		e.recordAudit(wctx, r, audit.StatusError, "push", "", err, payload, faultBody(err))
		return e.result(r, SyncResult{ActionTaken: remoteAction(err), Error: err.Error(), Transient: ledger.IsTransient(err)})
	}

	externalID := ledger.ObjectID(obj)
	if externalID == "" {
		err := errors.New("ledger response carried no object id")
		e.markFailed(wctx, r)
		e.recordAudit(wctx, r, audit.StatusError, "push", "", err, payload, obj)
		return e.result(r, SyncResult{ActionTaken: ActionFailedRemote, Error: err.Error()})
	}

	if err := e.markSynced(wctx, r, externalID); err != nil {
		// The ledger object exists; only the local marker is missing.
		r.log.Error("Failed to persist synced status, manual reconciliation needed",
			zap.String("external_id", externalID), zap.Error(err))
		e.recordAudit(wctx, r, audit.StatusError, "persist", externalID, err, payload, obj)
		return e.result(r, SyncResult{Success: true, ExternalID: externalID, ActionTaken: success,
			Error: "synced remotely but local status not saved: " + err.Error()})
	}

	e.recordAudit(wctx, r, audit.StatusSuccess, "push", externalID, nil, payload, obj)
	r.log.Info("Record synced", zap.String("action", string(success)), zap.String("external_id", externalID))
	return e.result(r, SyncResult{Success: true, ExternalID: externalID, ActionTaken: success})
}

func (e *ExecutorImpl) markSynced(ctx context.Context, r *run, externalID string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.kind.MarkSynced(ctx, r.id, externalID, r.actor, e.now())
	}, backoff.WithBackOff(e.persistBackOff()), backoff.WithMaxTries(e.persistTries))
	return err
}

func (e *ExecutorImpl) markFailed(ctx context.Context, r *run) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.kind.MarkFailed(ctx, r.id, r.actor, e.now())
	}, backoff.WithBackOff(e.persistBackOff()), backoff.WithMaxTries(e.persistTries))
	if err != nil {
		r.log.Error("Failed to persist failed status", zap.Error(err))
	}
}

func (e *ExecutorImpl) fetchFailure(r *run, err error) SyncResult {
	if errors.Is(err, ErrRecordNotFound) {
		return e.result(r, SyncResult{ActionTaken: ActionNotFound, Error: err.Error()})
	}
	r.log.Error("Failed to load record", zap.Error(err))
	return e.result(r, SyncResult{ActionTaken: ActionFailedException, Error: err.Error()})
}

func (e *ExecutorImpl) clientFailure(ctx context.Context, r *run, err error) SyncResult {
	if errors.Is(err, ledger.ErrNotConnected) {
		return e.result(r, SyncResult{ActionTaken: ActionNotConnected, Error: err.Error()})
	}
	r.log.Error("Failed to build ledger client", zap.Error(err))
	e.recordAudit(ctx, r, audit.StatusError, "connect", "", err, nil, nil)
	return e.result(r, SyncResult{ActionTaken: ActionFailedException, Error: err.Error()})
}

func (e *ExecutorImpl) result(r *run, res SyncResult) SyncResult {
	res.RecordID = r.id
	res.Kind = r.kind.Name()
	res.Duration = e.now().Sub(r.started).Seconds()
	return res
}

func (e *ExecutorImpl) recordAudit(ctx context.Context, r *run, status, stage, externalID string, err error, request, response any) {
	entry := audit.Entry{
		ActionType:      r.action,
		OperationStatus: status,
		Kind:            r.kind.Name(),
		RecordID:        r.id,
		ExternalID:      externalID,
		Stage:           stage,
		Actor:           r.actor,
		RequestPayload:  request,
		ResponsePayload: response,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	e.audit.Record(ctx, entry)
}

func remoteAction(err error) Action {
	var fault *ledger.RemoteFault
	if errors.As(err, &fault) || errors.Is(err, ledger.ErrAuthExpired) || ledger.IsTransient(err) {
		return ActionFailedRemote
	}
	return ActionFailedException
}

func faultBody(err error) any {
	var fault *ledger.RemoteFault
	if errors.As(err, &fault) {
		return map[string]any{"status_code": fault.StatusCode, "type": fault.Type, "errors": fault.Errors}
	}
	return nil
}
