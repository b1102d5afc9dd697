package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresLockManager implements LockManager on the connection of one transaction.
//
// TryLockRow uses SELECT ... FOR UPDATE NOWAIT on the local record row.
// AcquireAdvisory polls pg_try_advisory_xact_lock on a 64-bit hash of the remote key,
// so both kinds of lock are released with the transaction.
type PostgresLockManager struct {
	db   *gorm.DB
	opts LockManagerOptions
}

// NewPostgresLockManager creates a lock manager for the given transaction
func NewPostgresLockManager(tx *gorm.DB, opts ...LockManagerOption) *PostgresLockManager {
	o := defaultLockManagerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &PostgresLockManager{db: tx, opts: o}
}

// TryLockRow locks the local record row without waiting
func (m *PostgresLockManager) TryLockRow(ctx context.Context, localID uuid.UUID) error {
	var model models.LocalRecordModel
	err := m.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Select("id").
		Where("id = ?", localID).
		Take(&model).Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return integration.ErrRecordNotFound
	case isLockNotAvailable(err):
		return fmt.Errorf("%w: record %s", integration.ErrLockBusy, localID)
	default:
		return err
	}
}

// AcquireAdvisory waits up to timeout for the transaction-scoped advisory lock on key.
// Re-acquiring a key already held by this transaction succeeds immediately.
func (m *PostgresLockManager) AcquireAdvisory(ctx context.Context, key integration.AdvisoryKey, timeout time.Duration) error {
	lockID := AdvisoryLockID(key)
	deadline := time.Now().Add(timeout)
	wait := m.opts.PollInterval

	for {
		var acquired bool
		if err := m.db.WithContext(ctx).
			Raw("SELECT pg_try_advisory_xact_lock(?)", lockID).
			Scan(&acquired).Error; err != nil {
			return err
		}
		if acquired {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s after %s", integration.ErrLockTimeout, key, timeout)
		}
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %v", integration.ErrLockTimeout, key, ctx.Err())
		case <-timer.C:
		}

		wait *= 2
		if wait > m.opts.MaxPollInterval {
			wait = m.opts.MaxPollInterval
		}
	}
}

// AdvisoryLockID hashes a remote key into the bigint space of pg advisory locks
func AdvisoryLockID(key integration.AdvisoryKey) int64 {
	return int64(xxhash.Sum64String(key.String()))
}

var _ integration.LockManager = (*PostgresLockManager)(nil)
