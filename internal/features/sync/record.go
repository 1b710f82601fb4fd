package sync

import "time"

// SyncableRecord is the sync-relevant projection of a source row.
type SyncableRecord struct {
	ID           string     `json:"id"`
	Status       SyncStatus `json:"status"`
	ExternalID   string     `json:"external_id,omitempty"`
	LastPushedAt *time.Time `json:"last_pushed_at,omitempty"`
	LastPushedBy string     `json:"last_pushed_by,omitempty"`
	Label        string     `json:"label,omitempty"`
}

// Record carries the projection plus the kind-specific row the mapper needs.
// RawStatus and RawPushedDate keep the column values exactly as read so a
// claim can compare against them.
type Record struct {
	SyncableRecord
	RawStatus     any
	RawPushedDate any
	Source        any
}

// StatusCounts is a per-status breakdown of a source table.
type StatusCounts struct {
	Total        int64 `json:"total"`
	NotSynced    int64 `json:"not_synced"`
	Synced       int64 `json:"synced"`
	Failed       int64 `json:"failed"`
	InProgress   int64 `json:"in_progress"`
	Inconsistent int64 `json:"synced_without_external_id"`
}
