package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncDirection is import (remote to local) or export (local to remote)
type SyncDirection string

const (
	DirectionImport SyncDirection = "import"
	DirectionExport SyncDirection = "export"
)

// IsValid returns true if the direction is known
func (d SyncDirection) IsValid() bool {
	return d == DirectionImport || d == DirectionExport
}

// SyncCursor is the high-water mark of the last completed sweep
type SyncCursor struct {
	System     SystemCode
	EntityType EntityType
	Principal  uuid.UUID
	Direction  SyncDirection
	LastRunAt  time.Time
	UpdatedAt  time.Time
}

// Since returns the lower bound for the next sweep: the last run minus
// lookback, or now minus initialWindow when no sweep has run yet
func (c *SyncCursor) Since(now time.Time, lookback, initialWindow time.Duration) time.Time {
	if c == nil || c.LastRunAt.IsZero() {
		return now.Add(-initialWindow)
	}
	return c.LastRunAt.Add(-lookback)
}

// SyncCursorRepository persists high-water marks
type SyncCursorRepository interface {
	// Get returns the cursor or nil when none exists
	Get(ctx context.Context, system SystemCode, entityType EntityType, principal uuid.UUID, direction SyncDirection) (*SyncCursor, error)
	// Advance upserts the cursor to lastRunAt
	Advance(ctx context.Context, cursor *SyncCursor) error
}

// SyncSubscription holds the per-principal sync flags for one entity type
type SyncSubscription struct {
	ID            uuid.UUID
	System        SystemCode
	Principal     uuid.UUID
	EntityType    EntityType
	ImportEnabled bool
	ExportEnabled bool
	// Mailbox is the remote container (address book, calendar) of the principal
	Mailbox   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Enabled reports whether the subscription syncs in the given direction
func (s SyncSubscription) Enabled(direction SyncDirection) bool {
	switch direction {
	case DirectionImport:
		return s.ImportEnabled
	case DirectionExport:
		return s.ExportEnabled
	}
	return false
}

// SyncSubscriptionRepository lists subscriptions
type SyncSubscriptionRepository interface {
	FindEnabled(ctx context.Context, system SystemCode, direction SyncDirection) ([]SyncSubscription, error)
	Find(ctx context.Context, system SystemCode, principal uuid.UUID, entityType EntityType) (*SyncSubscription, error)
	Save(ctx context.Context, subscription *SyncSubscription) error
}
