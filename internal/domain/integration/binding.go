package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// SyncStatus is the externally visible synchronization state of a binding
type SyncStatus string

const (
	// SyncStatusUnbound means the binding exists but no remote counterpart is known yet
	SyncStatusUnbound SyncStatus = "unbound"
	// SyncStatusCreated means the remote entity was created by the last export
	SyncStatusCreated SyncStatus = "created"
	// SyncStatusSynced means both sides agreed at the last exchange
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusConflictDeferred means the remote changed since our last exchange; an import is pending
	SyncStatusConflictDeferred SyncStatus = "conflict_deferred"
	// SyncStatusStale means the remote entity vanished under a bound export
	SyncStatusStale SyncStatus = "stale"
)

// IsValid returns true if the status is a known value
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusUnbound, SyncStatusCreated, SyncStatusSynced, SyncStatusConflictDeferred, SyncStatusStale:
		return true
	}
	return false
}

// String returns the string representation
func (s SyncStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Binding Entity
// ---------------------------------------------------------------------------

// Binding links one local record to its counterpart in a remote directory.
// The binding holds a reference to the local record; it never embeds it.
type Binding struct {
	shared.BaseEntity

	// System is the remote system the counterpart lives in
	System SystemCode

	// EntityType is the kind of record bound
	EntityType EntityType

	// LocalID references local_records.id
	LocalID uuid.UUID

	// RemoteID is the remote system's identifier; empty until the first export or import
	RemoteID string

	// VersionToken is the remote stamp seen at the last exchange; empty until then
	VersionToken VersionToken

	// OwningPrincipal is the principal whose credentials reach the remote entity
	OwningPrincipal uuid.UUID

	// Status is the current sync status
	Status SyncStatus

	// LastSyncAt is when the binding last exchanged data with the remote
	LastSyncAt *time.Time
}

// NewBinding creates an unbound binding for a local record
func NewBinding(system SystemCode, entityType EntityType, localID, principal uuid.UUID) (*Binding, error) {
	if !system.IsValid() {
		return nil, fmt.Errorf("%w: system code %q", ErrBindingInvalid, system)
	}
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: entity type %q", ErrBindingInvalid, entityType)
	}
	if localID == uuid.Nil {
		return nil, fmt.Errorf("%w: local id is required", ErrBindingInvalid)
	}
	if principal == uuid.Nil {
		return nil, fmt.Errorf("%w: owning principal is required", ErrBindingInvalid)
	}

	return &Binding{
		BaseEntity:      shared.NewBaseEntity(),
		System:          system,
		EntityType:      entityType,
		LocalID:         localID,
		OwningPrincipal: principal,
		Status:          SyncStatusUnbound,
	}, nil
}

// IsBound returns true if the binding carries a remote id
func (b *Binding) IsBound() bool {
	return b.RemoteID != ""
}

// Bind records the remote id and token returned by a remote create or read.
// A binding that already carries a different remote id cannot be rebound this way.
func (b *Binding) Bind(remoteID string, token VersionToken, status SyncStatus) error {
	if remoteID == "" {
		return fmt.Errorf("%w: remote id is required", ErrBindingInvalid)
	}
	if b.IsBound() && b.RemoteID != remoteID {
		return fmt.Errorf("%w: already bound to %s", ErrBindingInvalid, b.RemoteID)
	}
	b.RemoteID = remoteID
	b.VersionToken = token
	b.markSynced(status)
	return nil
}

// Rebind points the binding at a freshly created remote entity
func (b *Binding) Rebind(remoteID string, token VersionToken) error {
	if remoteID == "" {
		return fmt.Errorf("%w: remote id is required", ErrBindingInvalid)
	}
	b.RemoteID = remoteID
	b.VersionToken = token
	b.markSynced(SyncStatusCreated)
	return nil
}

// MarkSynced records a token returned by a successful remote write or read
func (b *Binding) MarkSynced(token VersionToken) error {
	if !b.IsBound() {
		return fmt.Errorf("%w: cannot update token of unbound binding", ErrBindingInvalid)
	}
	b.VersionToken = token
	b.markSynced(SyncStatusSynced)
	return nil
}

func (b *Binding) markSynced(status SyncStatus) {
	now := time.Now()
	b.Status = status
	b.LastSyncAt = &now
	b.UpdatedAt = now
}

// MarkDeferred flags the binding as diverged; the stored token is left untouched
func (b *Binding) MarkDeferred() {
	b.Status = SyncStatusConflictDeferred
	b.Touch()
}

// MarkStale flags the binding as pointing at a remote entity that no longer exists
func (b *Binding) MarkStale() {
	b.Status = SyncStatusStale
	b.Touch()
}

// Key returns the lookup key of the binding
func (b *Binding) Key() BindingKey {
	return BindingKey{
		System:     b.System,
		EntityType: b.EntityType,
		RemoteID:   b.RemoteID,
		Principal:  b.OwningPrincipal,
	}
}

// BindingKey is the uniqueness key of bound rows
type BindingKey struct {
	System     SystemCode
	EntityType EntityType
	RemoteID   string
	Principal  uuid.UUID
}

// AdvisoryKey returns the advisory lock key for this remote entity
func (k BindingKey) AdvisoryKey() AdvisoryKey {
	return AdvisoryKey{System: k.System, EntityType: k.EntityType, RemoteID: k.RemoteID}
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// BindingReader reads bindings
type BindingReader interface {
	// FindByID finds a binding by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Binding, error)

	// FindByRemoteID finds the binding for a remote entity owned by a principal
	FindByRemoteID(ctx context.Context, key BindingKey) (*Binding, error)

	// FindByLocalID finds all bindings of a local record (one per system)
	FindByLocalID(ctx context.Context, localID uuid.UUID) ([]Binding, error)
}

// BindingFinder supports sweep queries
type BindingFinder interface {
	// ListRemoteIDs returns every bound remote id for a system, type and principal
	ListRemoteIDs(ctx context.Context, system SystemCode, entityType EntityType, principal uuid.UUID) ([]string, error)

	// FindByStatus lists bindings in a given status with paging
	FindByStatus(ctx context.Context, status SyncStatus, filter shared.Filter) ([]Binding, int64, error)
}

// BindingWriter persists bindings
type BindingWriter interface {
	// Save creates or updates a binding; a duplicate bound key yields ErrBindingConflict
	Save(ctx context.Context, binding *Binding) error

	// Delete deletes a binding by ID
	Delete(ctx context.Context, id uuid.UUID) error
}

// BindingRepository combines the binding ports
type BindingRepository interface {
	BindingReader
	BindingFinder
	BindingWriter
}
