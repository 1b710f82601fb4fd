package sync

import "time"

// DefaultStalenessWindow is how long an IN_PROGRESS claim is honoured.
const DefaultStalenessWindow = 5 * time.Minute

type Decision string

const (
	SkipAlreadySynced    Decision = "SKIP_ALREADY_SYNCED"
	VerifyOrResync       Decision = "VERIFY_OR_RESYNC"
	CheckProgressOrRetry Decision = "CHECK_PROGRESS_OR_RETRY"
	ProceedWithSync      Decision = "PROCEED_WITH_SYNC"
)

type Verdict struct {
	Decision   Decision
	Reason     string
	InProgress bool
}

// Decide chooses what to do with rec. SkipAlreadySynced is tentative: the
// caller must confirm the external object still exists. VerifyOrResync is
// followed by a push. Decide has no side effects.
func Decide(rec SyncableRecord, force bool, now time.Time, window time.Duration) Verdict {
	if window <= 0 {
		window = DefaultStalenessWindow
	}

	if force {
		return Verdict{Decision: ProceedWithSync, Reason: "forced sync, duplicate creation possible"}
	}

	switch rec.Status {
	case StatusSynced:
		if rec.ExternalID != "" {
			return Verdict{Decision: SkipAlreadySynced, Reason: "synced with external id " + rec.ExternalID}
		}
		return Verdict{Decision: VerifyOrResync, Reason: "marked synced without an external id"}
	case StatusInProgress:
		if rec.LastPushedAt == nil {
			return Verdict{Decision: ProceedWithSync, Reason: "in progress without a timestamp, treating as stalled"}
		}
		age := now.Sub(*rec.LastPushedAt)
		if age < window {
			return Verdict{Decision: CheckProgressOrRetry, Reason: "sync already in progress", InProgress: true}
		}
		return Verdict{Decision: ProceedWithSync, Reason: "in progress for " + age.Round(time.Second).String() + ", treating as stalled"}
	case StatusFailed:
		return Verdict{Decision: ProceedWithSync, Reason: "retrying failed record"}
	default:
		return Verdict{Decision: ProceedWithSync, Reason: "not synced"}
	}
}
