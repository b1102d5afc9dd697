package integration

import (
	"context"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"go.uber.org/zap"
)

// ChangeTrigger turns local store writes into sync jobs.
// Jobs are enqueued in the writing transaction, so a rolled-back write enqueues nothing.
type ChangeTrigger struct {
	system integration.SystemCode
	logger *zap.Logger
}

// NewChangeTrigger creates a ChangeTrigger for one remote system
func NewChangeTrigger(system integration.SystemCode, logger *zap.Logger) *ChangeTrigger {
	return &ChangeTrigger{system: system, logger: logger}
}

// AfterLocalWrite enqueues an export for the written record, or delete jobs
// for every bound remote counterpart when the record is being deleted.
// Writes tagged NoExport are ignored.
func (t *ChangeTrigger) AfterLocalWrite(ctx context.Context, repos TransactionalRepositories, change integration.LocalChange) error {
	if change.NoExport {
		return nil
	}
	if change.Deleted {
		return t.onDelete(ctx, repos, change)
	}

	record, err := repos.Records().FindByID(ctx, change.LocalID)
	if err != nil {
		return err
	}
	if !record.SyncEnabled || !record.Active {
		return nil
	}

	job := integration.NewExportJob(t.system, record.EntityType, record.OwnerID, record.ID, change.ChangedFields)
	if err := repos.Jobs().Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}

	t.logger.Debug("export enqueued",
		zap.String("local_id", record.ID.String()),
		zap.Strings("fields", change.ChangedFields),
		zap.String("job_id", job.ID.String()),
	)
	return nil
}

func (t *ChangeTrigger) onDelete(ctx context.Context, repos TransactionalRepositories, change integration.LocalChange) error {
	bindings, err := repos.Bindings().FindByLocalID(ctx, change.LocalID)
	if err != nil {
		return err
	}

	var jobs []*integration.SyncJob
	for _, b := range bindings {
		if b.IsBound() {
			jobs = append(jobs, integration.NewDeleteJob(b.System, b.EntityType, b.OwningPrincipal, b.RemoteID))
		}
		if err := repos.Bindings().Delete(ctx, b.ID); err != nil {
			return fmt.Errorf("unbind %s: %w", b.ID, err)
		}
	}
	if len(jobs) == 0 {
		return nil
	}
	if err := repos.Jobs().Enqueue(ctx, jobs...); err != nil {
		return fmt.Errorf("enqueue delete: %w", err)
	}

	t.logger.Info("remote delete enqueued for deleted record",
		zap.String("local_id", change.LocalID.String()),
		zap.Int("remote_entities", len(jobs)),
	)
	return nil
}

// Ensure ChangeTrigger implements ChangeHook
var _ ChangeHook = (*ChangeTrigger)(nil)
