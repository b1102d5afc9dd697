package integration

import (
	"context"
	"errors"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImporterConfig holds importer tunables
type ImporterConfig struct {
	// AdvisoryLockTimeout bounds the wait for the per-remote-entity lock
	AdvisoryLockTimeout time.Duration
	// SkipSensitivities lists visibility markers that are never imported
	SkipSensitivities []string
	// SkipRemoteIDs lists remote ids that are never imported
	SkipRemoteIDs []string
}

// DefaultAdvisoryLockTimeout is the advisory lock wait when none is configured
const DefaultAdvisoryLockTimeout = 5 * time.Second

// Importer pulls remote entities into the local store.
// It must run inside a transaction; the advisory lock is held until rc.Tx ends.
type Importer struct {
	remote       integration.RemoteDirectory
	mappers      integration.MapperRegistry
	binder       *Binder
	store        *LocalStore
	attachments  integration.AttachmentStore
	lockTimeout  time.Duration
	skipSens     map[string]struct{}
	skipRemoteID map[string]struct{}
	logger       *zap.Logger
}

// NewImporter creates an Importer; attachments may be nil to ignore remote attachments
func NewImporter(
	remote integration.RemoteDirectory,
	mappers integration.MapperRegistry,
	binder *Binder,
	store *LocalStore,
	attachments integration.AttachmentStore,
	cfg ImporterConfig,
	logger *zap.Logger,
) *Importer {
	timeout := cfg.AdvisoryLockTimeout
	if timeout <= 0 {
		timeout = DefaultAdvisoryLockTimeout
	}
	return &Importer{
		remote:       remote,
		mappers:      mappers,
		binder:       binder,
		store:        store,
		attachments:  attachments,
		lockTimeout:  timeout,
		skipSens:     toSet(cfg.SkipSensitivities),
		skipRemoteID: toSet(cfg.SkipRemoteIDs),
		logger:       logger,
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Import synchronizes one remote entity into the local store.
// All local writes are tagged no-export. Importing an unchanged entity writes nothing.
func (i *Importer) Import(
	ctx context.Context,
	rc RequestContext,
	entityType integration.EntityType,
	remoteID string,
) (integration.SyncResult, error) {
	const op = "import"

	key := integration.AdvisoryKey{System: rc.System, EntityType: entityType, RemoteID: remoteID}
	if err := rc.Tx.Locks().AcquireAdvisory(ctx, key, i.lockTimeout); err != nil {
		return "", classifyLock(op, err)
	}

	if _, skip := i.skipRemoteID[remoteID]; skip {
		return integration.ResultSkipped, nil
	}

	entity, err := i.remote.Read(ctx, rc.Principal, entityType, remoteID)
	if errors.Is(err, integration.ErrRemoteNotFound) {
		return i.gone(ctx, rc, entityType, remoteID)
	}
	if err != nil {
		return "", classifyRemote(op, err, nil)
	}

	if _, skip := i.skipSens[entity.Sensitivity()]; skip && entity.Sensitivity() != "" {
		i.logger.Debug("skipping remote entity by sensitivity",
			zap.String("remote_id", remoteID),
			zap.String("sensitivity", entity.Sensitivity()),
		)
		return integration.ResultSkipped, nil
	}

	mapper, err := i.mappers.Mapper(entityType)
	if err != nil {
		return "", integration.Fatal(op, err)
	}
	fields, err := mapper.ToLocal(entity.Fields)
	if err != nil {
		return "", integration.FatalWithPayload(op, err, entity.Fields)
	}

	binding, err := i.binder.Resolve(ctx, rc, entityType, remoteID)
	if err != nil {
		return "", classifyLocal(op, err)
	}

	var record *integration.LocalRecord
	if binding == nil {
		record, err = i.createLocal(ctx, rc, entityType, remoteID, entity.Token, fields)
	} else {
		record, err = i.mergeLocal(ctx, rc, binding, entity.Token, fields)
	}
	if err != nil {
		return "", err
	}

	if entityType == integration.EntityTypeCalendarEvent {
		if err := i.reconcileOccurrences(ctx, rc, record.ID, entity.Occurrences); err != nil {
			return "", classifyLocal(op+".occurrences", err)
		}
	}
	if i.attachments != nil && len(entity.Attachments) > 0 {
		if err := i.syncAttachments(ctx, rc, record.ID, entity.Attachments); err != nil {
			return "", err
		}
	}

	return integration.ResultImported, nil
}

func (i *Importer) createLocal(
	ctx context.Context,
	rc RequestContext,
	entityType integration.EntityType,
	remoteID string,
	token integration.VersionToken,
	fields integration.Fields,
) (*integration.LocalRecord, error) {
	const op = "import.create"

	record, err := integration.NewLocalRecord(entityType, rc.Principal, fields, true)
	if err != nil {
		return nil, integration.Fatal(op, err)
	}
	if err := i.store.SaveInTx(ctx, rc.Tx, record, record.Fields.Keys(), true); err != nil {
		return nil, classifyLocal(op, err)
	}

	binding, err := integration.NewBinding(rc.System, entityType, record.ID, rc.Principal)
	if err != nil {
		return nil, integration.Fatal(op, err)
	}
	if err := i.binder.Bind(ctx, rc, binding, remoteID, token, integration.SyncStatusSynced); err != nil {
		return nil, classifyLocal(op, err)
	}

	i.logger.Info("imported new remote entity",
		zap.String("remote_id", remoteID),
		zap.String("local_id", record.ID.String()),
		zap.String("entity_type", entityType.String()),
	)
	return record, nil
}

func (i *Importer) mergeLocal(
	ctx context.Context,
	rc RequestContext,
	binding *integration.Binding,
	token integration.VersionToken,
	fields integration.Fields,
) (*integration.LocalRecord, error) {
	const op = "import.merge"

	record, err := rc.Tx.Records().FindByID(ctx, binding.LocalID)
	if err != nil {
		return nil, classifyLocal(op, err)
	}

	changed := record.Merge(fields)
	reactivated := record.Reactivate()
	if len(changed) > 0 || reactivated {
		if err := i.store.SaveInTx(ctx, rc.Tx, record, changed, true); err != nil {
			return nil, classifyLocal(op, err)
		}
	}

	if !token.Equal(binding.VersionToken) || binding.Status != integration.SyncStatusSynced {
		if err := i.binder.UpdateToken(ctx, rc, binding, token); err != nil {
			return nil, classifyLocal(op, err)
		}
	}
	return record, nil
}

// gone handles a remote entity that no longer exists: unbind and deactivate
func (i *Importer) gone(ctx context.Context, rc RequestContext, entityType integration.EntityType, remoteID string) (integration.SyncResult, error) {
	const op = "import.gone"

	binding, err := i.binder.Resolve(ctx, rc, entityType, remoteID)
	if err != nil {
		return "", classifyLocal(op, err)
	}
	if binding == nil {
		return integration.ResultGone, nil
	}

	record, err := rc.Tx.Records().FindByID(ctx, binding.LocalID)
	if err != nil && !errors.Is(err, integration.ErrRecordNotFound) {
		return "", classifyLocal(op, err)
	}
	if err := i.binder.Unbind(ctx, rc, binding); err != nil {
		return "", classifyLocal(op, err)
	}
	if record != nil && record.Deactivate() {
		if err := i.store.SaveInTx(ctx, rc.Tx, record, nil, true); err != nil {
			return "", classifyLocal(op, err)
		}
	}

	i.logger.Info("remote entity gone, local record deactivated",
		zap.String("remote_id", remoteID),
		zap.String("local_id", binding.LocalID.String()),
	)
	return integration.ResultGone, nil
}

// reconcileOccurrences matches remote occurrences to local ones by natural key.
// Cancelled and no-longer-reported occurrences are deactivated.
func (i *Importer) reconcileOccurrences(ctx context.Context, rc RequestContext, parentID uuid.UUID, remote []integration.RemoteOccurrence) error {
	repo := rc.Tx.Occurrences()

	existing, err := repo.FindByParent(ctx, parentID)
	if err != nil {
		return err
	}
	byKey := make(map[integration.OccurrenceKey]*integration.Occurrence, len(existing))
	for idx := range existing {
		byKey[existing[idx].Key()] = &existing[idx]
	}

	seen := make(map[integration.OccurrenceKey]struct{}, len(remote))
	for _, ro := range remote {
		key := integration.NewOccurrenceKey(parentID, ro.OriginalStart)
		seen[key] = struct{}{}
		occ, ok := byKey[key]

		switch {
		case ro.Cancelled:
			if ok && occ.Deactivate() {
				if err := repo.Save(ctx, occ); err != nil {
					return err
				}
			}
		case !ok:
			created := integration.NewOccurrence(parentID, ro.OriginalStart, ro.Start, ro.End, ro.Subject)
			if err := repo.Save(ctx, created); err != nil {
				return err
			}
			byKey[key] = created
		default:
			if occ.Apply(ro.Start, ro.End, ro.Subject) {
				if err := repo.Save(ctx, occ); err != nil {
					return err
				}
			}
		}
	}

	for key, occ := range byKey {
		if _, ok := seen[key]; ok {
			continue
		}
		if occ.Deactivate() {
			if err := repo.Save(ctx, occ); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncAttachments writes remote attachments by name, comparing content digests.
// Local attachments without a remote counterpart are left alone.
func (i *Importer) syncAttachments(ctx context.Context, rc RequestContext, recordID uuid.UUID, remote []integration.RemoteAttachment) error {
	const op = "import.attachments"
	repo := rc.Tx.Attachments()

	existing, err := repo.FindByRecord(ctx, recordID)
	if err != nil {
		return classifyLocal(op, err)
	}
	byName := make(map[string]*integration.Attachment, len(existing))
	for idx := range existing {
		byName[existing[idx].Name] = &existing[idx]
	}

	for _, ra := range remote {
		att, ok := byName[ra.Name]
		if ok && att.SameContent(ra.Content) {
			continue
		}
		if ok {
			att.SetContent(ra.ContentType, ra.Content)
		} else {
			att = integration.NewAttachment(recordID, ra.Name, ra.ContentType, ra.Content)
			byName[ra.Name] = att
		}
		if err := i.attachments.Put(ctx, att.StorageKey, ra.Content, ra.ContentType); err != nil {
			return integration.Retryable(op, err)
		}
		if err := repo.Save(ctx, att); err != nil {
			return classifyLocal(op, err)
		}
	}
	return nil
}
