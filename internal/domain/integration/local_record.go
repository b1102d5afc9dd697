package integration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// LocalRecord is a record held by the local store
type LocalRecord struct {
	shared.BaseEntity

	EntityType EntityType
	OwnerID    uuid.UUID

	// Active is false once the remote counterpart disappeared
	Active bool

	// SyncEnabled flags the record for export
	SyncEnabled bool

	Fields Fields
}

// NewLocalRecord creates an active record
func NewLocalRecord(entityType EntityType, ownerID uuid.UUID, fields Fields, syncEnabled bool) (*LocalRecord, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: entity type %q", shared.ErrInvalidInput, entityType)
	}
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", shared.ErrInvalidInput)
	}
	if fields == nil {
		fields = Fields{}
	}
	return &LocalRecord{
		BaseEntity:  shared.NewBaseEntity(),
		EntityType:  entityType,
		OwnerID:     ownerID,
		Active:      true,
		SyncEnabled: syncEnabled,
		Fields:      fields.Clone(),
	}, nil
}

// Merge overwrites the given fields and returns the names that actually changed, sorted
func (r *LocalRecord) Merge(values Fields) []string {
	if r.Fields == nil {
		r.Fields = Fields{}
	}
	var changed []string
	for k, v := range values {
		if cur, ok := r.Fields[k]; ok && cur == v {
			continue
		}
		r.Fields[k] = v
		changed = append(changed, k)
	}
	if len(changed) > 0 {
		sort.Strings(changed)
		r.Touch()
	}
	return changed
}

// Deactivate marks the record inactive; returns false if it already was
func (r *LocalRecord) Deactivate() bool {
	if !r.Active {
		return false
	}
	r.Active = false
	r.Touch()
	return true
}

// Reactivate marks the record active; returns false if it already was
func (r *LocalRecord) Reactivate() bool {
	if r.Active {
		return false
	}
	r.Active = true
	r.Touch()
	return true
}

// LocalRecordRepository persists local records
type LocalRecordRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*LocalRecord, error)
	// FindSyncEnabledModifiedSince lists records flagged for export changed after since
	FindSyncEnabledModifiedSince(ctx context.Context, entityType EntityType, owner uuid.UUID, since time.Time, limit int) ([]LocalRecord, error)
	List(ctx context.Context, entityType EntityType, filter shared.Filter) ([]LocalRecord, int64, error)
	Save(ctx context.Context, record *LocalRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
}
