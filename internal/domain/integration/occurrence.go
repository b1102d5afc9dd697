package integration

import (
	"context"
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// Occurrence is one instance of a recurring calendar event
type Occurrence struct {
	shared.BaseEntity
	ParentID      uuid.UUID
	OriginalStart time.Time
	Start         time.Time
	End           time.Time
	Subject       string
	Active        bool
}

// OccurrenceKey is the natural key of an occurrence.
// Matching is by parent and original start only; an occurrence whose original
// start is rewritten remotely is seen as one deletion plus one creation.
type OccurrenceKey struct {
	ParentID      uuid.UUID
	OriginalStart time.Time
}

// NewOccurrenceKey normalizes the original start to UTC, truncated to the second
func NewOccurrenceKey(parentID uuid.UUID, originalStart time.Time) OccurrenceKey {
	return OccurrenceKey{
		ParentID:      parentID,
		OriginalStart: originalStart.UTC().Truncate(time.Second),
	}
}

// NewOccurrence creates an active occurrence
func NewOccurrence(parentID uuid.UUID, originalStart, start, end time.Time, subject string) *Occurrence {
	key := NewOccurrenceKey(parentID, originalStart)
	return &Occurrence{
		BaseEntity:    shared.NewBaseEntity(),
		ParentID:      parentID,
		OriginalStart: key.OriginalStart,
		Start:         start.UTC(),
		End:           end.UTC(),
		Subject:       subject,
		Active:        true,
	}
}

// Key returns the natural key
func (o *Occurrence) Key() OccurrenceKey {
	return NewOccurrenceKey(o.ParentID, o.OriginalStart)
}

// Apply copies times and subject from the remote occurrence; returns true if anything changed
func (o *Occurrence) Apply(start, end time.Time, subject string) bool {
	start, end = start.UTC(), end.UTC()
	if o.Active && o.Start.Equal(start) && o.End.Equal(end) && o.Subject == subject {
		return false
	}
	o.Start = start
	o.End = end
	o.Subject = subject
	o.Active = true
	o.Touch()
	return true
}

// Deactivate marks the occurrence inactive; returns false if it already was
func (o *Occurrence) Deactivate() bool {
	if !o.Active {
		return false
	}
	o.Active = false
	o.Touch()
	return true
}

// OccurrenceRepository persists occurrences
type OccurrenceRepository interface {
	FindByParent(ctx context.Context, parentID uuid.UUID) ([]Occurrence, error)
	Save(ctx context.Context, occurrence *Occurrence) error
}
