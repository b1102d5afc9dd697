package integration

import (
	"context"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to integration repositories.
// Every repository and the lock manager handed to fn share one database transaction,
// so row and advisory locks are released exactly when fn's writes commit or roll back.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all integration repositories within a transaction.
type TransactionalRepositories interface {
	// Bindings returns the binding store scoped to the current transaction
	Bindings() integration.BindingRepository
	// Records returns the local record store scoped to the current transaction
	Records() integration.LocalRecordRepository
	// Occurrences returns the occurrence store scoped to the current transaction
	Occurrences() integration.OccurrenceRepository
	// Attachments returns the attachment metadata store scoped to the current transaction
	Attachments() integration.AttachmentRepository
	// Jobs returns the job queue scoped to the current transaction
	Jobs() integration.SyncJobRepository
	// Cursors returns the high-water mark store scoped to the current transaction
	Cursors() integration.SyncCursorRepository
	// Locks returns the lock manager bound to the current transaction
	Locks() integration.LockManager
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	bindings    integration.BindingRepository
	records     integration.LocalRecordRepository
	occurrences integration.OccurrenceRepository
	attachments integration.AttachmentRepository
	jobs        integration.SyncJobRepository
	cursors     integration.SyncCursorRepository
	locks       integration.LockManager
}

// NoOpRepositories lists the repositories a NoOpTransactionScope hands out
type NoOpRepositories struct {
	Bindings    integration.BindingRepository
	Records     integration.LocalRecordRepository
	Occurrences integration.OccurrenceRepository
	Attachments integration.AttachmentRepository
	Jobs        integration.SyncJobRepository
	Cursors     integration.SyncCursorRepository
	Locks       integration.LockManager
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
// A nil lock manager is replaced by one that always grants.
func NewNoOpTransactionScope(r NoOpRepositories) *NoOpTransactionScope {
	locks := r.Locks
	if locks == nil {
		locks = grantingLockManager{}
	}
	return &NoOpTransactionScope{
		bindings:    r.Bindings,
		records:     r.Records,
		occurrences: r.Occurrences,
		attachments: r.Attachments,
		jobs:        r.Jobs,
		cursors:     r.Cursors,
		locks:       locks,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Bindings returns the binding repository.
func (s *NoOpTransactionScope) Bindings() integration.BindingRepository { return s.bindings }

// Records returns the local record repository.
func (s *NoOpTransactionScope) Records() integration.LocalRecordRepository { return s.records }

// Occurrences returns the occurrence repository.
func (s *NoOpTransactionScope) Occurrences() integration.OccurrenceRepository { return s.occurrences }

// Attachments returns the attachment repository.
func (s *NoOpTransactionScope) Attachments() integration.AttachmentRepository { return s.attachments }

// Jobs returns the job repository.
func (s *NoOpTransactionScope) Jobs() integration.SyncJobRepository { return s.jobs }

// Cursors returns the cursor repository.
func (s *NoOpTransactionScope) Cursors() integration.SyncCursorRepository { return s.cursors }

// Locks returns the lock manager.
func (s *NoOpTransactionScope) Locks() integration.LockManager { return s.locks }

type grantingLockManager struct{}

func (grantingLockManager) TryLockRow(context.Context, uuid.UUID) error { return nil }

func (grantingLockManager) AcquireAdvisory(context.Context, integration.AdvisoryKey, time.Duration) error {
	return nil
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
