package persistence

import (
	"context"
	"time"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Row locks and transaction-scoped advisory locks taken through Locks() are
// released when the transaction commits or rolls back.
type GormTransactionScope struct {
	db    *gorm.DB
	locks LockManagerOptions
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, opts ...LockManagerOption) *GormTransactionScope {
	locks := defaultLockManagerOptions()
	for _, opt := range opts {
		opt(&locks)
	}
	return &GormTransactionScope{db: db, locks: locks}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appintegration.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx, locks: s.locks}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx    *gorm.DB
	locks LockManagerOptions
}

func (r *gormTransactionalRepositories) Bindings() integration.BindingRepository {
	return NewGormBindingRepository(r.tx)
}

func (r *gormTransactionalRepositories) Records() integration.LocalRecordRepository {
	return NewGormLocalRecordRepository(r.tx)
}

func (r *gormTransactionalRepositories) Occurrences() integration.OccurrenceRepository {
	return NewGormOccurrenceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Attachments() integration.AttachmentRepository {
	return NewGormAttachmentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Jobs() integration.SyncJobRepository {
	return NewGormSyncJobRepository(r.tx)
}

func (r *gormTransactionalRepositories) Cursors() integration.SyncCursorRepository {
	return NewGormSyncCursorRepository(r.tx)
}

// Locks returns a lock manager bound to the current transaction's connection.
func (r *gormTransactionalRepositories) Locks() integration.LockManager {
	return &PostgresLockManager{db: r.tx, opts: r.locks}
}

// LockManagerOptions tunes advisory lock polling
type LockManagerOptions struct {
	// PollInterval is the first wait between pg_try_advisory_xact_lock attempts
	PollInterval time.Duration
	// MaxPollInterval caps the doubling wait
	MaxPollInterval time.Duration
}

// LockManagerOption configures a LockManagerOptions
type LockManagerOption func(*LockManagerOptions)

// WithAdvisoryPolling sets the advisory lock poll backoff bounds
func WithAdvisoryPolling(initial, max time.Duration) LockManagerOption {
	return func(o *LockManagerOptions) {
		if initial > 0 {
			o.PollInterval = initial
		}
		if max >= o.PollInterval {
			o.MaxPollInterval = max
		}
	}
}

func defaultLockManagerOptions() LockManagerOptions {
	return LockManagerOptions{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 250 * time.Millisecond,
	}
}

// Ensure GormTransactionScope implements TransactionScope
var _ appintegration.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appintegration.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
