package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RemoteOccurrence is one instance of a recurring remote event
type RemoteOccurrence struct {
	OriginalStart time.Time
	Start         time.Time
	End           time.Time
	Subject       string
	Cancelled     bool
}

// RemoteAttachment is file content attached to a remote entity
type RemoteAttachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// RemoteEntity is a remote record as read from the directory
type RemoteEntity struct {
	RemoteID    string
	Token       VersionToken
	Fields      Representation
	Occurrences []RemoteOccurrence
	Attachments []RemoteAttachment
}

// Sensitivity returns the visibility marker of the entity, if any
func (e *RemoteEntity) Sensitivity() string {
	return e.Fields[FieldSensitivity]
}

// FieldSensitivity is the remote field carrying the visibility marker
const FieldSensitivity = "sensitivity"

// EnumerateFilter narrows an enumeration
type EnumerateFilter struct {
	// ModifiedSince restricts results to entities changed after the instant; nil means all
	ModifiedSince *time.Time
	// ExcludeSensitivities drops entities carrying one of these markers
	ExcludeSensitivities []string
}

// RemotePage is one page of an enumeration
type RemotePage struct {
	IDs []string
	// NextPageToken is empty on the last page
	NextPageToken string
}

// RemoteDirectory is the port to the remote system.
// Read and Delete return ErrRemoteNotFound for a missing entity.
// Update is conditional on expected and returns ErrRemoteVersionMismatch when
// the remote entity carries another version.
type RemoteDirectory interface {
	Create(ctx context.Context, principal uuid.UUID, entityType EntityType, rep Representation) (string, VersionToken, error)
	Read(ctx context.Context, principal uuid.UUID, entityType EntityType, remoteID string) (*RemoteEntity, error)
	Update(ctx context.Context, principal uuid.UUID, entityType EntityType, remoteID string, expected VersionToken, rep Representation) (VersionToken, error)
	Delete(ctx context.Context, principal uuid.UUID, entityType EntityType, remoteID string) error
	Enumerate(ctx context.Context, principal uuid.UUID, entityType EntityType, filter EnumerateFilter, pageToken string) (*RemotePage, error)
}

// AdvisoryKey identifies a remote entity for advisory locking
type AdvisoryKey struct {
	System     SystemCode
	EntityType EntityType
	RemoteID   string
}

// String returns the canonical form hashed into the lock key
func (k AdvisoryKey) String() string {
	return string(k.System) + "/" + string(k.EntityType) + "/" + k.RemoteID
}

// LockManager acquires transaction-scoped locks.
// Implementations are bound to one transaction; locks release at commit or rollback.
type LockManager interface {
	// TryLockRow locks the local record row without waiting; ErrLockBusy if held elsewhere
	TryLockRow(ctx context.Context, localID uuid.UUID) error
	// AcquireAdvisory waits up to timeout for the remote key; ErrLockTimeout on expiry
	AcquireAdvisory(ctx context.Context, key AdvisoryKey, timeout time.Duration) error
}

// AttachmentStore stores attachment content
type AttachmentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// EnqueueGuard deduplicates job enqueues across overlapping sweeps
type EnqueueGuard interface {
	// Claim returns true if key was not claimed within ttl
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a claim so the key can be enqueued again
	Release(ctx context.Context, key string) error
	Close() error
}

// Mapper converts between local fields and remote representations for one entity type
type Mapper interface {
	EntityType() EntityType
	// ToRemote maps local values; a non-empty subset restricts output to those local fields
	ToRemote(values Fields, subset []string) (Representation, error)
	// ToLocal maps a remote representation; fails with ErrMalformedRepresentation
	ToLocal(rep Representation) (Fields, error)
}

// MapperRegistry resolves mappers by entity type
type MapperRegistry interface {
	Mapper(entityType EntityType) (Mapper, error)
}
