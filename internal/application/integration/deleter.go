package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"go.uber.org/zap"
)

// Deleter removes remote entities whose local records were deleted
type Deleter struct {
	remote      integration.RemoteDirectory
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewDeleter creates a Deleter
func NewDeleter(remote integration.RemoteDirectory, lockTimeout time.Duration, logger *zap.Logger) *Deleter {
	if lockTimeout <= 0 {
		lockTimeout = DefaultAdvisoryLockTimeout
	}
	return &Deleter{remote: remote, lockTimeout: lockTimeout, logger: logger}
}

// Delete deletes one remote entity under its advisory lock.
// An entity that is already gone counts as deleted.
func (d *Deleter) Delete(ctx context.Context, rc RequestContext, entityType integration.EntityType, remoteID string) (integration.SyncResult, error) {
	const op = "delete"

	key := integration.AdvisoryKey{System: rc.System, EntityType: entityType, RemoteID: remoteID}
	if err := rc.Tx.Locks().AcquireAdvisory(ctx, key, d.lockTimeout); err != nil {
		return "", classifyLock(op, err)
	}

	err := d.remote.Delete(ctx, rc.Principal, entityType, remoteID)
	if err != nil && !errors.Is(err, integration.ErrRemoteNotFound) {
		return "", classifyRemote(op, err, nil)
	}

	d.logger.Info("deleted remote entity",
		zap.String("remote_id", remoteID),
		zap.String("entity_type", entityType.String()),
		zap.Bool("already_gone", err != nil),
	)
	return integration.ResultDeleted, nil
}
