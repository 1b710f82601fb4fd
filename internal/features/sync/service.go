package sync

import (
	"context"
	"fmt"
	"math"
)

type SyncService interface {
	Kinds() []string
	Kind(name string) (Kind, error)
	SyncOne(ctx context.Context, kind, id string, force bool) (SyncResult, error)
	UpdateOne(ctx context.Context, kind, id string) (SyncResult, error)
	ListUnsynced(ctx context.Context, kind string, limit, offset int) (*UnsyncedPage, error)
	Analyze(ctx context.Context, kind string) (*Analysis, error)
}

type UnsyncedPage struct {
	Kind    string           `json:"kind"`
	Items   []SyncableRecord `json:"items"`
	Count   int              `json:"count"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}

type Analysis struct {
	Kind           string       `json:"kind"`
	Counts         StatusCounts `json:"counts"`
	SyncPercentage float64      `json:"sync_percentage"`
	Recommendation string       `json:"recommendation"`
}

const MaxPageSize = 100

type SyncServiceImpl struct {
	registry *Registry
	executor Executor
}

func NewSyncService(registry *Registry, executor Executor) SyncService {
	return &SyncServiceImpl{
		registry: registry,
		executor: executor,
	}
}

func (s *SyncServiceImpl) Kinds() []string {
	return s.registry.Names()
}

func (s *SyncServiceImpl) Kind(name string) (Kind, error) {
	return s.registry.Get(name)
}

func (s *SyncServiceImpl) SyncOne(ctx context.Context, kind, id string, force bool) (SyncResult, error) {
	k, err := s.registry.Get(kind)
	if err != nil {
		return SyncResult{}, err
	}
	return s.executor.SyncOne(ctx, k, id, force), nil
}

func (s *SyncServiceImpl) UpdateOne(ctx context.Context, kind, id string) (SyncResult, error) {
	k, err := s.registry.Get(kind)
	if err != nil {
		return SyncResult{}, err
	}
	return s.executor.UpdateOne(ctx, k, id), nil
}

func (s *SyncServiceImpl) ListUnsynced(ctx context.Context, kind string, limit, offset int) (*UnsyncedPage, error) {
	k, err := s.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, fmt.Errorf("limit must be between 1 and %d", MaxPageSize)
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}

	// One extra row tells us whether another page exists.
	items, err := k.ListUnsynced(ctx, limit+1, offset)
	if err != nil {
		return nil, err
	}
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return &UnsyncedPage{
		Kind:    kind,
		Items:   items,
		Count:   len(items),
		Limit:   limit,
		Offset:  offset,
		HasMore: hasMore,
	}, nil
}

func (s *SyncServiceImpl) Analyze(ctx context.Context, kind string) (*Analysis, error) {
	k, err := s.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	counts, err := k.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	a := &Analysis{Kind: kind, Counts: counts}
	if counts.Total > 0 {
		a.SyncPercentage = math.Round(float64(counts.Synced)/float64(counts.Total)*10000) / 100
	}

	switch {
	case counts.Total == 0:
		a.Recommendation = "No records found"
	case counts.InProgress > 0:
		a.Recommendation = fmt.Sprintf("%d records in progress; stalled ones are retried after the staleness window", counts.InProgress)
	case counts.Failed > 0:
		a.Recommendation = fmt.Sprintf("%d records failed; review the audit log and resync", counts.Failed)
	case counts.Inconsistent > 0:
		a.Recommendation = fmt.Sprintf("%d records are marked synced without an external id; resync them", counts.Inconsistent)
	case counts.NotSynced > 0:
		a.Recommendation = fmt.Sprintf("%d records waiting; run a batch sync", counts.NotSynced)
	default:
		a.Recommendation = "All records synced"
	}
	return a, nil
}
