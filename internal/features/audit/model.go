package audit

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	StatusSuccess = "200"
	StatusError   = "500"
)

// Entry is one append-only record of a ledger interaction.
type Entry struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ActionType      string             `bson:"action_type" json:"action_type"`
	OperationStatus string             `bson:"operation_status" json:"operation_status"`
	Kind            string             `bson:"kind,omitempty" json:"kind,omitempty"`
	RecordID        string             `bson:"record_id,omitempty" json:"record_id,omitempty"`
	ExternalID      string             `bson:"external_id,omitempty" json:"external_id,omitempty"`
	Stage           string             `bson:"stage,omitempty" json:"stage,omitempty"`
	Actor           string             `bson:"actor" json:"actor"`
	ErrorMessage    string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	RequestPayload  interface{}        `bson:"request_payload,omitempty" json:"request_payload,omitempty"`
	ResponsePayload interface{}        `bson:"response_payload,omitempty" json:"response_payload,omitempty"`
	Timestamp       time.Time          `bson:"timestamp" json:"timestamp"`
}

// FilterableFields may appear in search rules.
var FilterableFields = []string{
	"action_type", "operation_status", "kind", "record_id", "external_id",
	"stage", "actor", "error_message", "timestamp",
}
