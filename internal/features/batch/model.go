package batch

import (
	"time"

	sync_feature "ledger-sync/internal/features/sync"
)

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

const (
	MaxBatchSize     = 100
	DefaultBatchSize = 50
	JobRetention     = 24 * time.Hour
)

// Counts are the per-outcome tallies of a chunk or a whole job.
type Counts struct {
	Synced  int `bson:"synced" json:"synced"`
	Failed  int `bson:"failed" json:"failed"`
	Skipped int `bson:"skipped" json:"skipped"`
}

func (c Counts) Add(o Counts) Counts {
	return Counts{Synced: c.Synced + o.Synced, Failed: c.Failed + o.Failed, Skipped: c.Skipped + o.Skipped}
}

func (c Counts) Total() int {
	return c.Synced + c.Failed + c.Skipped
}

// Tally classifies one sync result.
func (c *Counts) Tally(res sync_feature.SyncResult) {
	switch {
	case res.Skipped():
		c.Skipped++
	case res.Success:
		c.Synced++
	default:
		c.Failed++
	}
}

// BatchJob is the pollable progress record of one dispatch.
type BatchJob struct {
	ID           string     `bson:"_id" json:"-"`
	JobID        string     `bson:"job_id" json:"job_id"`
	Kind         string     `bson:"kind" json:"kind"`
	Actor        string     `bson:"actor" json:"actor"`
	TotalItems   int        `bson:"total_items" json:"total_items"`
	TotalBatches int        `bson:"total_batches" json:"total_batches"`
	Counts       Counts     `bson:"counts" json:"counts"`
	Status       JobStatus  `bson:"status" json:"status"`
	CursorMode   bool       `bson:"cursor_mode" json:"cursor_mode"`
	CursorOffset int        `bson:"cursor_offset" json:"cursor_offset"`
	NewOffset    *int       `bson:"new_offset,omitempty" json:"new_offset,omitempty"`
	Error        string     `bson:"error,omitempty" json:"error,omitempty"`
	StartTime    time.Time  `bson:"start_time" json:"start_time"`
	EndTime      *time.Time `bson:"end_time,omitempty" json:"end_time,omitempty"`
	ExpiresAt    time.Time  `bson:"expires_at" json:"expires_at"`
}

type DispatchRequest struct {
	Kind      string
	IDs       []string
	BatchSize int
	// Limit caps how many unsynced candidates a cursor-mode run takes.
	// Zero means one batch.
	Limit       int
	Force       bool
	ResetCursor bool
}

type DispatchResponse struct {
	JobID        string    `json:"job_id,omitempty"`
	Kind         string    `json:"kind"`
	Total        int       `json:"total"`
	TotalBatches int       `json:"total_batches"`
	Status       JobStatus `json:"status"`
	Offset       *int      `json:"offset,omitempty"`
	Message      string    `json:"message,omitempty"`
}

type Progress struct {
	Kind          string `json:"kind"`
	CurrentOffset int    `json:"current_offset"`
	TotalUnsynced int    `json:"total_unsynced"`
	Remaining     int    `json:"remaining"`
}

// RunSummary reports a synchronous run over many records.
type RunSummary struct {
	Kind     string                    `json:"kind"`
	Batches  int                       `json:"batches"`
	Total    int                       `json:"total"`
	Counts   Counts                    `json:"counts"`
	Stopped  string                    `json:"stopped,omitempty"`
	Failures []sync_feature.SyncResult `json:"failures,omitempty"`
	Duration float64                   `json:"duration"`
}
