package usage

import (
	"context"

	"github.com/goodtune/timeledger/internal/ledger"
)

// LimitsSource resolves today's limits.
type LimitsSource interface {
	Today(ctx context.Context) ledger.Limits
}

// Syncer pushes local changes to the remote store. SyncNow makes one
// synchronous attempt; Submit schedules a background attempt and never
// blocks.
type Syncer interface {
	SyncNow(ctx context.Context) error
	Submit(reason string)
}

// SessionResult describes a logged device session.
type SessionResult struct {
	Category         string           `json:"category"`
	ActualMinutes    int              `json:"actualMinutes"`
	EstimatedMinutes int              `json:"estimatedMinutes"`
	Difference       int              `json:"difference"`
	NewTimeRemaining int              `json:"newTimeRemaining"`
	WentOverLimit    bool             `json:"wentOverLimit"`
	OverageMinutes   int              `json:"overageMinutes"`
	SyncedToRemote   bool             `json:"syncedToRemote"`
	Deduction        ledger.Deduction `json:"-"`
	Completed        ledger.Activity  `json:"completed"`
}
