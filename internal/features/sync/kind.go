package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-sync/internal/features/ledger"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownKind    = errors.New("unknown entity kind")
)

// MappingError means the record cannot be turned into a ledger payload
// without someone fixing the source data or configuration first.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping failed: %s: %s", e.Field, e.Reason)
}

func NewMappingError(field, format string, args ...any) *MappingError {
	return &MappingError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Kind is the per-entity capability set the executor drives.
type Kind interface {
	Name() string
	// ObjectType is the ledger object the kind is pushed as, e.g. "Account".
	ObjectType() string
	Fetch(ctx context.Context, id string) (*Record, error)
	// Claim moves rec to IN_PROGRESS only if the stored status and push date
	// still match what was read. force skips the comparison.
	Claim(ctx context.Context, rec *Record, actor string, now time.Time, force bool) (bool, error)
	MarkSynced(ctx context.Context, id, externalID, actor string, now time.Time) error
	MarkFailed(ctx context.Context, id, actor string, now time.Time) error
	MapPayload(ctx context.Context, client ledger.Client, rec *Record) (map[string]any, error)
	ListUnsynced(ctx context.Context, limit, offset int) ([]SyncableRecord, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
}
