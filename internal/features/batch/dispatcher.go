package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ledger-sync/internal/config"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Chunk is one order-preserving slice of a job's ids.
type Chunk struct {
	JobID string
	Kind  string
	Index int
	IDs   []string
}

type ChunkResult struct {
	Chunk  Chunk
	Counts Counts
	Err    error
}

// Group is a fan-out of chunks with a single fan-in step. Run processes one
// chunk; an error from Run aborts the chunk and is subject to retry. Finalize
// runs exactly once, after every chunk has reported.
type Group struct {
	Chunks   []Chunk
	Run      func(ctx context.Context, c Chunk) (Counts, error)
	Finalize func(ctx context.Context, results []ChunkResult)
}

type Dispatcher interface {
	Submit(ctx context.Context, g Group) error
	Shutdown(ctx context.Context) error
}

type task struct {
	chunk   Chunk
	run     func(ctx context.Context, c Chunk) (Counts, error)
	results chan<- ChunkResult
}

// LocalDispatcher runs chunks on a fixed set of in-process workers.
type LocalDispatcher struct {
	tasks       chan task
	ctx         context.Context
	cancel      context.CancelFunc
	workers     sync.WaitGroup
	aggregators sync.WaitGroup
	maxAttempts uint
	backOff     func() backoff.BackOff
	log         *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewLocalDispatcher(cfg *config.Config, log *zap.Logger) *LocalDispatcher {
	workers := cfg.DispatchWorkers
	if workers < 1 {
		workers = 1
	}
	attempts := cfg.ChunkMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &LocalDispatcher{
		tasks:       make(chan task, workers*4),
		ctx:         ctx,
		cancel:      cancel,
		maxAttempts: uint(attempts),
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
		log: log.Named("dispatcher"),
	}

	d.log.Info("Starting dispatch workers", zap.Int("workers", workers))
	for i := 0; i < workers; i++ {
		d.workers.Add(1)
		go func(id int) {
			defer d.workers.Done()
			d.work(id)
		}(i)
	}
	return d
}

func (d *LocalDispatcher) Submit(ctx context.Context, g Group) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	results := make(chan ChunkResult, len(g.Chunks))

	d.aggregators.Add(1)
	go func() {
		defer d.aggregators.Done()
		collected := make([]ChunkResult, 0, len(g.Chunks))
		for len(collected) < len(g.Chunks) {
			collected = append(collected, <-results)
		}
		d.finalizeSafely(g, collected)
	}()

	go func() {
		for _, c := range g.Chunks {
			select {
			case d.tasks <- task{chunk: c, run: g.Run, results: results}:
			case <-d.ctx.Done():
				results <- ChunkResult{Chunk: c, Counts: Counts{Failed: len(c.IDs)}, Err: ErrDispatcherClosed}
			}
		}
	}()
	return nil
}

func (d *LocalDispatcher) work(id int) {
	log := d.log.With(zap.Int("worker", id))
	for {
		select {
		case <-d.ctx.Done():
			return
		case t := <-d.tasks:
			t.results <- d.execute(log, t)
		}
	}
}

// execute runs a chunk with bounded retries. A chunk that keeps aborting is
// reported as failed in full.
func (d *LocalDispatcher) execute(log *zap.Logger, t task) ChunkResult {
	log = log.With(zap.String("job_id", t.chunk.JobID), zap.Int("chunk", t.chunk.Index))
	// Chunks already picked up run to completion during shutdown.
	ctx := context.WithoutCancel(d.ctx)
	attempt := 0
	counts, err := backoff.Retry(ctx, func() (Counts, error) {
		attempt++
		c, err := runSafely(ctx, t)
		if err != nil {
			log.Warn("Chunk aborted", zap.Int("attempt", attempt), zap.Error(err))
		}
		return c, err
	}, backoff.WithBackOff(d.backOff()), backoff.WithMaxTries(d.maxAttempts))
	if err != nil {
		log.Error("Chunk failed after retries", zap.Int("attempts", attempt), zap.Error(err))
		return ChunkResult{Chunk: t.chunk, Counts: Counts{Failed: len(t.chunk.IDs)}, Err: err}
	}
	return ChunkResult{Chunk: t.chunk, Counts: counts}
}

func runSafely(ctx context.Context, t task) (c Counts, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("chunk panicked: %v", p)
		}
	}()
	return t.run(ctx, t.chunk)
}

// finalizeSafely keeps a panicking aggregation from taking the process down.
func (d *LocalDispatcher) finalizeSafely(g Group, results []ChunkResult) {
	defer func() {
		if p := recover(); p != nil {
			jobID := ""
			if len(results) > 0 {
				jobID = results[0].Chunk.JobID
			}
			d.log.Error("Aggregation panicked", zap.String("job_id", jobID), zap.Any("panic", p))
		}
	}()
	g.Finalize(context.WithoutCancel(d.ctx), results)
}

// Shutdown stops accepting work and waits for running chunks and pending
// aggregations, bounded by ctx.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.cancel()
		d.workers.Wait()

		// Queued chunks that no worker picked up are reported as failed so
		// every aggregation still sees all of its results.
		aggregated := make(chan struct{})
		go func() {
			d.aggregators.Wait()
			close(aggregated)
		}()
		for {
			select {
			case t := <-d.tasks:
				t.results <- ChunkResult{Chunk: t.chunk, Counts: Counts{Failed: len(t.chunk.IDs)}, Err: ErrDispatcherClosed}
			case <-aggregated:
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
		d.log.Info("All dispatch workers exited cleanly")
		return nil
	case <-ctx.Done():
		d.log.Error("Dispatcher shutdown timed out, some chunks may still be running")
		return ctx.Err()
	}
}
