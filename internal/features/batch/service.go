package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-sync/internal/config"
	sync_feature "ledger-sync/internal/features/sync"
	"ledger-sync/pkg/utils"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidBatchSize = fmt.Errorf("batch_size must be between 1 and %d", MaxBatchSize)
	ErrInvalidRequest   = errors.New("invalid request")
)

const (
	bulkAttempts = 3
	// snapshotPage is how many candidates SyncAll reads per query.
	snapshotPage = 100
)

type Orchestrator interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResponse, error)
	SyncAll(ctx context.Context, kind string, batchSize, maxBatches int) (*RunSummary, error)
	BulkSync(ctx context.Context, kind string, ids []string, force bool) (*RunSummary, error)
	Progress(ctx context.Context, kind string) (*Progress, error)
	ResetCursor(ctx context.Context, kind string) error
	Job(ctx context.Context, jobID string) (*BatchJob, error)
}

type OrchestratorImpl struct {
	sync       sync_feature.SyncService
	jobs       JobStore
	cursors    CursorStore
	dispatcher Dispatcher
	batchSize  int
	log        *zap.Logger

	now         func() time.Time
	newID       func() string
	bulkBackOff func() backoff.BackOff
}

func NewOrchestrator(
	cfg *config.Config,
	syncService sync_feature.SyncService,
	jobs JobStore,
	cursors CursorStore,
	dispatcher Dispatcher,
	log *zap.Logger,
) Orchestrator {
	return newOrchestrator(cfg, syncService, jobs, cursors, dispatcher, log)
}

func newOrchestrator(
	cfg *config.Config,
	syncService sync_feature.SyncService,
	jobs JobStore,
	cursors CursorStore,
	dispatcher Dispatcher,
	log *zap.Logger,
) *OrchestratorImpl {
	size := cfg.DefaultBatchSize
	if size < 1 || size > MaxBatchSize {
		size = DefaultBatchSize
	}
	return &OrchestratorImpl{
		sync:       syncService,
		jobs:       jobs,
		cursors:    cursors,
		dispatcher: dispatcher,
		batchSize:  size,
		log:        log.Named("batch"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		bulkBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.RandomizationFactor = 0.5
			return b
		},
	}
}

func (o *OrchestratorImpl) resolveBatchSize(size int) (int, error) {
	if size == 0 {
		return o.batchSize, nil
	}
	if size < 1 || size > MaxBatchSize {
		return 0, ErrInvalidBatchSize
	}
	return size, nil
}

// Dispatch fans a set of ids out as chunks and returns as soon as the job is
// recorded. Without explicit ids the candidates are the kind's unsynced
// records starting at the persisted cursor, and the cursor advances once the
// job is aggregated.
func (o *OrchestratorImpl) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResponse, error) {
	if _, err := o.sync.Kind(req.Kind); err != nil {
		return nil, err
	}
	size, err := o.resolveBatchSize(req.BatchSize)
	if err != nil {
		return nil, err
	}

	log := o.log.With(zap.String("kind", req.Kind))
	ids := req.IDs
	cursorMode := len(ids) == 0
	offset := 0

	if cursorMode {
		if req.ResetCursor {
			if err := o.cursors.Reset(ctx, req.Kind); err != nil {
				return nil, fmt.Errorf("reset cursor: %w", err)
			}
			log.Info("Sync cursor reset")
		}
		if offset, err = o.cursors.Get(ctx, req.Kind); err != nil {
			return nil, fmt.Errorf("read cursor: %w", err)
		}

		limit := req.Limit
		if limit < 1 {
			limit = size
		}
		page, err := o.sync.ListUnsynced(ctx, req.Kind, min(limit, sync_feature.MaxPageSize), offset)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		for _, rec := range page.Items {
			ids = append(ids, rec.ID)
		}

		if len(ids) == 0 {
			// The stream is exhausted; start over next time.
			if err := o.cursors.Reset(ctx, req.Kind); err != nil {
				return nil, fmt.Errorf("reset cursor: %w", err)
			}
			log.Info("No unsynced records left, cursor reset", zap.Int("offset", offset))
			zero := 0
			return &DispatchResponse{Kind: req.Kind, Status: JobCompleted, Offset: &zero, Message: "nothing to sync"}, nil
		}
	}

	chunks := Partition(ids, size)
	start := o.now()
	job := &BatchJob{
		JobID:        o.newID(),
		Kind:         req.Kind,
		Actor:        utils.ActorFromContext(ctx),
		TotalItems:   len(ids),
		TotalBatches: len(chunks),
		Status:       JobProcessing,
		CursorMode:   cursorMode,
		CursorOffset: offset,
		StartTime:    start,
		ExpiresAt:    start.Add(JobRetention),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	for i := range chunks {
		chunks[i].JobID = job.JobID
		chunks[i].Kind = req.Kind
	}

	actor := job.Actor
	force := req.Force
	err = o.dispatcher.Submit(ctx, Group{
		Chunks: chunks,
		Run: func(ctx context.Context, c Chunk) (Counts, error) {
			return o.runChunk(utils.WithActor(ctx, actor), c, force)
		},
		Finalize: func(ctx context.Context, results []ChunkResult) {
			o.aggregate(ctx, job, results)
		},
	})
	if err != nil {
		o.finish(ctx, job.JobID, JobFailed, nil, err.Error())
		return nil, fmt.Errorf("dispatch job: %w", err)
	}

	log.Info("Batch job dispatched",
		zap.String("job_id", job.JobID),
		zap.Int("total", job.TotalItems),
		zap.Int("batches", job.TotalBatches),
		zap.Bool("cursor_mode", cursorMode),
		zap.Int("offset", offset))

	resp := &DispatchResponse{
		JobID:        job.JobID,
		Kind:         req.Kind,
		Total:        job.TotalItems,
		TotalBatches: job.TotalBatches,
		Status:       JobProcessing,
	}
	if cursorMode {
		resp.Offset = &offset
	}
	return resp, nil
}

// Partition splits ids into order-preserving chunks of at most size ids.
func Partition(ids []string, size int) []Chunk {
	chunks := make([]Chunk, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, Chunk{Index: len(chunks), IDs: ids[start:end]})
	}
	return chunks
}

// runChunk syncs a chunk's records one after another. Per-record failures
// are counted, not returned; only a failed counter update aborts the chunk.
func (o *OrchestratorImpl) runChunk(ctx context.Context, c Chunk, force bool) (Counts, error) {
	var counts Counts
	for _, id := range c.IDs {
		res, err := o.sync.SyncOne(ctx, c.Kind, id, force)
		if err != nil {
			return Counts{}, err
		}
		counts.Tally(res)
	}
	if err := o.jobs.Increment(ctx, c.JobID, counts); err != nil {
		return Counts{}, fmt.Errorf("update job counters: %w", err)
	}
	o.log.Info("Chunk completed",
		zap.String("job_id", c.JobID),
		zap.Int("chunk", c.Index),
		zap.Int("synced", counts.Synced),
		zap.Int("failed", counts.Failed),
		zap.Int("skipped", counts.Skipped))
	return counts, nil
}

func (o *OrchestratorImpl) aggregate(ctx context.Context, job *BatchJob, results []ChunkResult) {
	log := o.log.With(zap.String("job_id", job.JobID), zap.String("kind", job.Kind))
	defer func() {
		if p := recover(); p != nil {
			log.Error("Aggregation panicked", zap.Any("panic", p))
			o.finish(ctx, job.JobID, JobFailed, nil, fmt.Sprintf("aggregation panicked: %v", p))
		}
	}()

	var total Counts
	for _, r := range results {
		total = total.Add(r.Counts)
		if r.Err != nil {
			// Retries were exhausted before the counters moved.
			if err := o.jobs.Increment(ctx, job.JobID, r.Counts); err != nil {
				log.Error("Failed to record aborted chunk", zap.Int("chunk", r.Chunk.Index), zap.Error(err))
			}
		}
	}

	var newOffset *int
	if job.CursorMode {
		advanced, err := o.cursors.Advance(ctx, job.Kind, total.Synced+total.Skipped)
		if err != nil {
			log.Error("Failed to advance cursor", zap.Error(err))
			o.finish(ctx, job.JobID, JobFailed, nil, "advance cursor: "+err.Error())
			return
		}
		newOffset = &advanced
	}

	o.finish(ctx, job.JobID, JobCompleted, newOffset, "")
	log.Info("Batch job completed",
		zap.Int("synced", total.Synced),
		zap.Int("failed", total.Failed),
		zap.Int("skipped", total.Skipped))
}

func (o *OrchestratorImpl) finish(ctx context.Context, jobID string, status JobStatus, newOffset *int, errMsg string) {
	if err := o.jobs.Finish(ctx, jobID, status, newOffset, errMsg, o.now()); err != nil {
		o.log.Error("Failed to finalize job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// SyncAll synchronously works through every unsynced record of a kind in
// batches. The candidate list is read up front so records that stay
// unsynced are not revisited. maxBatches of zero means no limit.
func (o *OrchestratorImpl) SyncAll(ctx context.Context, kind string, batchSize, maxBatches int) (*RunSummary, error) {
	if _, err := o.sync.Kind(kind); err != nil {
		return nil, err
	}
	size, err := o.resolveBatchSize(batchSize)
	if err != nil {
		return nil, err
	}
	if maxBatches < 0 {
		return nil, fmt.Errorf("%w: max_batches must not be negative", ErrInvalidRequest)
	}

	start := o.now()
	ids, err := o.snapshot(ctx, kind, size*maxBatches)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{Kind: kind, Total: len(ids)}
	for _, c := range Partition(ids, size) {
		summary.Batches++
		for _, id := range c.IDs {
			res, err := o.sync.SyncOne(ctx, kind, id, false)
			if err != nil {
				return nil, err
			}
			summary.Counts.Tally(res)
			if !res.Success && !res.Skipped() {
				summary.Failures = append(summary.Failures, res)
			}
			if res.ActionTaken == sync_feature.ActionNotConnected {
				summary.Stopped = "ledger not connected"
				break
			}
		}
		if summary.Stopped == "" && ctx.Err() != nil {
			summary.Stopped = "request cancelled"
		}
		if summary.Stopped != "" {
			break
		}
	}

	summary.Duration = o.now().Sub(start).Seconds()
	o.log.Info("Sync all finished",
		zap.String("kind", kind),
		zap.Int("batches", summary.Batches),
		zap.Int("synced", summary.Counts.Synced),
		zap.Int("failed", summary.Counts.Failed),
		zap.Int("skipped", summary.Counts.Skipped),
		zap.String("stopped", summary.Stopped))
	return summary, nil
}

// snapshot collects up to limit unsynced ids, or all of them when limit is 0.
func (o *OrchestratorImpl) snapshot(ctx context.Context, kind string, limit int) ([]string, error) {
	var ids []string
	for offset := 0; ; {
		n := snapshotPage
		if limit > 0 {
			n = min(n, limit-len(ids))
		}
		page, err := o.sync.ListUnsynced(ctx, kind, n, offset)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		for _, rec := range page.Items {
			ids = append(ids, rec.ID)
		}
		offset += len(page.Items)
		if !page.HasMore || (limit > 0 && len(ids) >= limit) {
			return ids, nil
		}
	}
}

// BulkPoolSize bounds the bulk worker pool for n items.
func BulkPoolSize(n int) int {
	return min(20, max(5, n/5))
}

// BulkSync syncs explicit ids in parallel on a bounded pool. Transient
// failures are retried inline with jittered backoff.
func (o *OrchestratorImpl) BulkSync(ctx context.Context, kind string, ids []string, force bool) (*RunSummary, error) {
	if _, err := o.sync.Kind(kind); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids must not be empty", ErrInvalidRequest)
	}

	start := o.now()
	results := make([]sync_feature.SyncResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(BulkPoolSize(len(ids)))
	for i, id := range ids {
		g.Go(func() error {
			res, err := o.syncWithRetry(gctx, kind, id, force)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &RunSummary{Kind: kind, Total: len(ids), Batches: 1}
	for _, res := range results {
		summary.Counts.Tally(res)
		if !res.Success && !res.Skipped() {
			summary.Failures = append(summary.Failures, res)
		}
	}
	summary.Duration = o.now().Sub(start).Seconds()
	o.log.Info("Bulk sync finished",
		zap.String("kind", kind),
		zap.Int("total", summary.Total),
		zap.Int("synced", summary.Counts.Synced),
		zap.Int("failed", summary.Counts.Failed),
		zap.Int("skipped", summary.Counts.Skipped))
	return summary, nil
}

func (o *OrchestratorImpl) syncWithRetry(ctx context.Context, kind, id string, force bool) (sync_feature.SyncResult, error) {
	var (
		last    sync_feature.SyncResult
		hardErr error
	)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		res, err := o.sync.SyncOne(ctx, kind, id, force)
		if err != nil {
			hardErr = err
			return struct{}{}, backoff.Permanent(err)
		}
		last = res
		if res.Transient {
			return struct{}{}, errors.New(res.Error)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(o.bulkBackOff()), backoff.WithMaxTries(bulkAttempts))

	if hardErr != nil {
		return last, hardErr
	}
	if err != nil && last.RecordID == "" {
		// Cancelled before the first attempt finished.
		return last, err
	}
	return last, nil
}

func (o *OrchestratorImpl) Progress(ctx context.Context, kind string) (*Progress, error) {
	k, err := o.sync.Kind(kind)
	if err != nil {
		return nil, err
	}
	offset, err := o.cursors.Get(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	counts, err := k.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %s records: %w", kind, err)
	}
	unsynced := int(counts.NotSynced)
	return &Progress{
		Kind:          kind,
		CurrentOffset: offset,
		TotalUnsynced: unsynced,
		Remaining:     max(0, unsynced-offset),
	}, nil
}

func (o *OrchestratorImpl) ResetCursor(ctx context.Context, kind string) error {
	if _, err := o.sync.Kind(kind); err != nil {
		return err
	}
	if err := o.cursors.Reset(ctx, kind); err != nil {
		return err
	}
	o.log.Info("Sync cursor reset", zap.String("kind", kind), zap.String("actor", utils.ActorFromContext(ctx)))
	return nil
}

func (o *OrchestratorImpl) Job(ctx context.Context, jobID string) (*BatchJob, error) {
	return o.jobs.Get(ctx, jobID)
}
