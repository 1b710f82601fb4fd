package batch

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"ledger-sync/internal/config"
	sync_feature "ledger-sync/internal/features/sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKind only answers CountByStatus; the orchestrator reaches records
// through the sync service.
type fakeKind struct {
	sync_feature.Kind
	counts sync_feature.StatusCounts
}

func (k *fakeKind) Name() string { return "invoice" }

func (k *fakeKind) CountByStatus(ctx context.Context) (sync_feature.StatusCounts, error) {
	return k.counts, nil
}

// fakeSyncService serves a fixed unsynced stream and scripted outcomes.
type fakeSyncService struct {
	sync_feature.SyncService

	kind     *fakeKind
	unsynced []string
	outcome  func(id string, attempt int) sync_feature.SyncResult

	mu    gosync.Mutex
	calls map[string]int
	order []string
}

func newFakeSyncService(unsynced ...string) *fakeSyncService {
	return &fakeSyncService{
		kind:     &fakeKind{},
		unsynced: unsynced,
		calls:    map[string]int{},
	}
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprint(i + 1)
	}
	return out
}

func (s *fakeSyncService) Kind(name string) (sync_feature.Kind, error) {
	if name != "invoice" {
		return nil, fmt.Errorf("%w: %s", sync_feature.ErrUnknownKind, name)
	}
	return s.kind, nil
}

func (s *fakeSyncService) SyncOne(ctx context.Context, kind, id string, force bool) (sync_feature.SyncResult, error) {
	s.mu.Lock()
	s.calls[id]++
	attempt := s.calls[id]
	s.order = append(s.order, id)
	s.mu.Unlock()

	res := sync_feature.SyncResult{Success: true, ActionTaken: sync_feature.ActionCreated, ExternalID: "qb-" + id}
	if s.outcome != nil {
		res = s.outcome(id, attempt)
	}
	res.RecordID = id
	res.Kind = kind
	return res, nil
}

func (s *fakeSyncService) ListUnsynced(ctx context.Context, kind string, limit, offset int) (*sync_feature.UnsyncedPage, error) {
	if limit < 1 || limit > sync_feature.MaxPageSize {
		return nil, fmt.Errorf("limit must be between 1 and %d", sync_feature.MaxPageSize)
	}
	page := &sync_feature.UnsyncedPage{Kind: kind, Limit: limit, Offset: offset, Items: []sync_feature.SyncableRecord{}}
	if offset < len(s.unsynced) {
		end := min(offset+limit, len(s.unsynced))
		for _, id := range s.unsynced[offset:end] {
			page.Items = append(page.Items, sync_feature.SyncableRecord{ID: id})
		}
		page.HasMore = end < len(s.unsynced)
	}
	page.Count = len(page.Items)
	return page, nil
}

func (s *fakeSyncService) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *fakeSyncService) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

type memJobStore struct {
	mu         gosync.Mutex
	jobs       map[string]*BatchJob
	increments int
	failInc    int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]*BatchJob{}}
}

func (s *memJobStore) Create(ctx context.Context, job *BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = jobKey(job.JobID)
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *memJobStore) Increment(ctx context.Context, jobID string, c Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInc > 0 {
		s.failInc--
		return fmt.Errorf("write conflict")
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	job.Counts = job.Counts.Add(c)
	s.increments++
	return nil
}

func (s *memJobStore) Finish(ctx context.Context, jobID string, status JobStatus, newOffset *int, errMsg string, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	job.Status = status
	job.NewOffset = newOffset
	job.Error = errMsg
	job.EndTime = &end
	return nil
}

func (s *memJobStore) Get(ctx context.Context, jobID string) (*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) EnsureIndexes(ctx context.Context) error { return nil }

func (s *memJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type memCursorStore struct {
	mu       gosync.Mutex
	offsets  map[string]int
	advances int

	advanceErr   error
	advancePanic any
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{offsets: map[string]int{}}
}

func (s *memCursorStore) Get(ctx context.Context, kind string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[kind], nil
}

func (s *memCursorStore) Advance(ctx context.Context, kind string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advancePanic != nil {
		panic(s.advancePanic)
	}
	if s.advanceErr != nil {
		return 0, s.advanceErr
	}
	s.offsets[kind] += delta
	s.advances++
	return s.offsets[kind], nil
}

func (s *memCursorStore) Reset(ctx context.Context, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[kind] = 0
	return nil
}

func testDispatcher(t *testing.T, workers, attempts int) *LocalDispatcher {
	t.Helper()
	d := NewLocalDispatcher(&config.Config{DispatchWorkers: workers, ChunkMaxAttempts: attempts}, zap.NewNop())
	d.backOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d
}

type harness struct {
	orch    *OrchestratorImpl
	sync    *fakeSyncService
	jobs    *memJobStore
	cursors *memCursorStore
}

func newHarness(t *testing.T, svc *fakeSyncService) *harness {
	t.Helper()
	h := &harness{sync: svc, jobs: newMemJobStore(), cursors: newMemCursorStore()}
	h.orch = newOrchestrator(&config.Config{DefaultBatchSize: 50}, svc, h.jobs, h.cursors, testDispatcher(t, 3, 3), zap.NewNop())
	h.orch.bulkBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return h
}

func (h *harness) waitForJob(t *testing.T, jobID string) *BatchJob {
	t.Helper()
	var job *BatchJob
	require.Eventually(t, func() bool {
		j, err := h.jobs.Get(context.Background(), jobID)
		if err != nil || j.Status == JobProcessing {
			return false
		}
		job = j
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return job
}
