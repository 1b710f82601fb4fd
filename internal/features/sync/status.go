package sync

import (
	"fmt"
	"strconv"
	"strings"
)

// SyncStatus is the closed set of push states a source record can be in.
type SyncStatus int

const (
	StatusNotSynced  SyncStatus = 0
	StatusSynced     SyncStatus = 1
	StatusFailed     SyncStatus = 2
	StatusInProgress SyncStatus = 3
)

func (s SyncStatus) String() string {
	switch s {
	case StatusNotSynced:
		return "NOT_SYNCED"
	case StatusSynced:
		return "SYNCED"
	case StatusFailed:
		return "FAILED"
	case StatusInProgress:
		return "IN_PROGRESS"
	default:
		return fmt.Sprintf("SyncStatus(%d)", int(s))
	}
}

// ParseStatus maps a raw column value onto SyncStatus. It never fails: values
// it does not recognise become NOT_SYNCED with ok=false so the caller can log them.
// Legacy "active"/"inactive" markers on bank rows and NULL count as not synced.
func ParseStatus(raw any) (SyncStatus, bool) {
	switch v := raw.(type) {
	case nil:
		return StatusNotSynced, true
	case SyncStatus:
		return fromInt(int64(v))
	case int:
		return fromInt(int64(v))
	case int8:
		return fromInt(int64(v))
	case int16:
		return fromInt(int64(v))
	case int32:
		return fromInt(int64(v))
	case int64:
		return fromInt(v)
	case uint8:
		return fromInt(int64(v))
	case []byte:
		return parseStatusString(string(v))
	case string:
		return parseStatusString(v)
	default:
		return StatusNotSynced, false
	}
}

func fromInt(v int64) (SyncStatus, bool) {
	if v >= 0 && v <= 3 {
		return SyncStatus(v), true
	}
	return StatusNotSynced, false
}

func parseStatusString(s string) (SyncStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "active", "inactive", "not_synced":
		return StatusNotSynced, true
	case "synced":
		return StatusSynced, true
	case "failed":
		return StatusFailed, true
	case "in_progress":
		return StatusInProgress, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromInt(n)
	}
	return StatusNotSynced, false
}
