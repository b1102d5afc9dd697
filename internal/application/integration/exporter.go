package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StalePolicy decides what an export does when the bound remote entity vanished
type StalePolicy string

const (
	// StalePolicyMark flags the binding stale and writes nothing remotely
	StalePolicyMark StalePolicy = "mark"
	// StalePolicyRecreate creates a fresh remote entity and rebinds
	StalePolicyRecreate StalePolicy = "recreate"
	// StalePolicyUnlink deletes the binding and deactivates the local record
	StalePolicyUnlink StalePolicy = "unlink"
)

// IsValid returns true if the policy is known
func (p StalePolicy) IsValid() bool {
	switch p {
	case StalePolicyMark, StalePolicyRecreate, StalePolicyUnlink:
		return true
	}
	return false
}

// Exporter pushes local records to the remote directory.
// It must run inside a transaction: the row lock taken in step one is held
// until rc.Tx commits or rolls back.
type Exporter struct {
	remote      integration.RemoteDirectory
	mappers     integration.MapperRegistry
	binder      *Binder
	store       *LocalStore
	stalePolicy StalePolicy
	logger      *zap.Logger
}

// NewExporter creates an Exporter
func NewExporter(
	remote integration.RemoteDirectory,
	mappers integration.MapperRegistry,
	binder *Binder,
	store *LocalStore,
	stalePolicy StalePolicy,
	logger *zap.Logger,
) *Exporter {
	if !stalePolicy.IsValid() {
		stalePolicy = StalePolicyMark
	}
	return &Exporter{
		remote:      remote,
		mappers:     mappers,
		binder:      binder,
		store:       store,
		stalePolicy: stalePolicy,
		logger:      logger,
	}
}

// Export synchronizes one local record to the remote side.
// changeset restricts an update to the named local fields; nil exports all mapped fields.
// A divergent remote version is not an error: the binding is marked deferred,
// an import is enqueued in the same transaction and ResultDeferred is returned.
func (e *Exporter) Export(
	ctx context.Context,
	rc RequestContext,
	entityType integration.EntityType,
	localID uuid.UUID,
	changeset []string,
) (integration.SyncResult, error) {
	const op = "export"

	if err := rc.Tx.Locks().TryLockRow(ctx, localID); err != nil {
		return "", classifyLock(op, err)
	}

	record, err := rc.Tx.Records().FindByID(ctx, localID)
	if err != nil {
		return "", classifyLocal(op, err)
	}
	if record.EntityType != entityType {
		return "", integration.Fatal(op, fmt.Errorf("%w: record %s is %s, not %s",
			integration.ErrUnsupportedEntityType, localID, record.EntityType, entityType))
	}

	mapper, err := e.mappers.Mapper(entityType)
	if err != nil {
		return "", integration.Fatal(op, err)
	}

	binding, err := e.binder.ResolveLocal(ctx, rc, localID)
	if err != nil {
		return "", classifyLocal(op, err)
	}
	if binding == nil {
		if binding, err = e.binder.Autobind(ctx, rc, entityType, localID); err != nil {
			return "", classifyLocal(op, err)
		}
	}

	if !binding.IsBound() {
		return e.create(ctx, rc, mapper, record, binding)
	}

	current, err := e.remote.Read(ctx, binding.OwningPrincipal, entityType, binding.RemoteID)
	if errors.Is(err, integration.ErrRemoteNotFound) {
		return e.handleStale(ctx, rc, mapper, record, binding)
	}
	if err != nil {
		return "", classifyRemote(op, err, nil)
	}

	if !current.Token.Equal(binding.VersionToken) {
		return e.deferToImport(ctx, rc, binding)
	}

	rep, err := mapper.ToRemote(record.Fields, changeset)
	if err != nil {
		return "", integration.FatalWithPayload(op, err, record.Fields)
	}
	if len(rep) == 0 {
		// changeset touched no mapped field
		return integration.ResultSkipped, nil
	}

	token, err := e.remote.Update(ctx, binding.OwningPrincipal, entityType, binding.RemoteID, binding.VersionToken, rep)
	switch {
	case errors.Is(err, integration.ErrRemoteVersionMismatch):
		return e.deferToImport(ctx, rc, binding)
	case errors.Is(err, integration.ErrRemoteNotFound):
		return e.handleStale(ctx, rc, mapper, record, binding)
	case err != nil:
		return "", classifyRemote(op, err, rep)
	}

	if err := e.binder.UpdateToken(ctx, rc, binding, token); err != nil {
		return "", classifyLocal(op, err)
	}

	e.logger.Debug("exported record",
		zap.String("local_id", localID.String()),
		zap.String("remote_id", binding.RemoteID),
		zap.Int("fields", len(rep)),
	)
	return integration.ResultUpdated, nil
}

func (e *Exporter) create(
	ctx context.Context,
	rc RequestContext,
	mapper integration.Mapper,
	record *integration.LocalRecord,
	binding *integration.Binding,
) (integration.SyncResult, error) {
	const op = "export.create"

	rep, err := mapper.ToRemote(record.Fields, nil)
	if err != nil {
		return "", integration.FatalWithPayload(op, err, record.Fields)
	}

	remoteID, token, err := e.remote.Create(ctx, binding.OwningPrincipal, record.EntityType, rep)
	if err != nil {
		return "", classifyRemote(op, err, rep)
	}

	if err := e.binder.Bind(ctx, rc, binding, remoteID, token, integration.SyncStatusCreated); err != nil {
		return "", classifyLocal(op, err)
	}

	e.logger.Info("created remote entity",
		zap.String("local_id", record.ID.String()),
		zap.String("remote_id", remoteID),
		zap.String("entity_type", record.EntityType.String()),
	)
	return integration.ResultCreated, nil
}

func (e *Exporter) deferToImport(ctx context.Context, rc RequestContext, binding *integration.Binding) (integration.SyncResult, error) {
	const op = "export.defer"

	if err := e.binder.MarkDeferred(ctx, rc, binding); err != nil {
		return "", classifyLocal(op, err)
	}

	job := integration.NewImportJob(binding.System, binding.EntityType, binding.OwningPrincipal, binding.RemoteID).
		WithPriority(integration.PriorityImportDeferred).
		WithCorrelationID(rc.CorrelationID)
	if err := rc.Tx.Jobs().Enqueue(ctx, job); err != nil {
		return "", classifyLocal(op, err)
	}

	e.logger.Info("remote changed since last exchange, import enqueued",
		zap.String("local_id", binding.LocalID.String()),
		zap.String("remote_id", binding.RemoteID),
		zap.String("import_job_id", job.ID.String()),
	)
	return integration.ResultDeferred, nil
}

func (e *Exporter) handleStale(
	ctx context.Context,
	rc RequestContext,
	mapper integration.Mapper,
	record *integration.LocalRecord,
	binding *integration.Binding,
) (integration.SyncResult, error) {
	const op = "export.stale"

	e.logger.Warn("bound remote entity no longer exists",
		zap.String("local_id", record.ID.String()),
		zap.String("remote_id", binding.RemoteID),
		zap.String("policy", string(e.stalePolicy)),
	)

	switch e.stalePolicy {
	case StalePolicyRecreate:
		rep, err := mapper.ToRemote(record.Fields, nil)
		if err != nil {
			return "", integration.FatalWithPayload(op, err, record.Fields)
		}
		remoteID, token, err := e.remote.Create(ctx, binding.OwningPrincipal, record.EntityType, rep)
		if err != nil {
			return "", classifyRemote(op, err, rep)
		}
		if err := e.binder.Rebind(ctx, rc, binding, remoteID, token); err != nil {
			return "", classifyLocal(op, err)
		}
		return integration.ResultCreated, nil

	case StalePolicyUnlink:
		if err := e.binder.Unbind(ctx, rc, binding); err != nil {
			return "", classifyLocal(op, err)
		}
		if record.Deactivate() {
			if err := e.store.SaveInTx(ctx, rc.Tx, record, nil, true); err != nil {
				return "", classifyLocal(op, err)
			}
		}
		return integration.ResultStale, nil

	default:
		if err := e.binder.MarkStale(ctx, rc, binding); err != nil {
			return "", classifyLocal(op, err)
		}
		return integration.ResultStale, nil
	}
}
