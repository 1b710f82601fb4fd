package cron_feature

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"

	RunDispatched = "dispatched"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

// Schedule is the cron entry driving cursor-mode syncs of one kind.
type Schedule struct {
	Kind       string     `json:"kind"`
	Expression string     `json:"expression"`
	Active     bool       `json:"active"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
}

// RunLog records one scheduled or manual dispatch.
type RunLog struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Kind      string             `json:"kind" bson:"kind"`
	Trigger   string             `json:"trigger" bson:"trigger"`
	Actor     string             `json:"actor" bson:"actor"`
	StartTime time.Time          `json:"start_time" bson:"start_time"`
	EndTime   *time.Time         `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Status    string             `json:"status" bson:"status"`
	JobID     string             `json:"job_id,omitempty" bson:"job_id,omitempty"`
	Total     int                `json:"total" bson:"total"`
	Offset    *int               `json:"offset,omitempty" bson:"offset,omitempty"`
	Error     string             `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
