package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"go.uber.org/zap"
)

// OrchestratorConfig holds sweep tunables
type OrchestratorConfig struct {
	System integration.SystemCode
	// LookbackWindow is subtracted from the cursor to absorb remote clock skew
	LookbackWindow time.Duration
	// InitialWindow bounds the first incremental sweep of a subscription
	InitialWindow time.Duration
	// ExportBatchSize caps the records one export sweep enqueues
	ExportBatchSize int
	// GuardTTL is how long an enqueued key suppresses duplicates from overlapping sweeps
	GuardTTL time.Duration
	// ExcludeSensitivities are passed to the remote enumeration
	ExcludeSensitivities []string
}

// CycleStats summarizes one or more sweeps
type CycleStats struct {
	Enumerated int `json:"enumerated"`
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
	Vanished   int `json:"vanished"`
}

func (s *CycleStats) add(o CycleStats) {
	s.Enumerated += o.Enumerated
	s.Enqueued += o.Enqueued
	s.Duplicates += o.Duplicates
	s.Vanished += o.Vanished
}

// Orchestrator runs import and export sweeps per subscription
type Orchestrator struct {
	scope         TransactionScope
	remote        integration.RemoteDirectory
	subscriptions integration.SyncSubscriptionRepository
	guard         integration.EnqueueGuard
	cfg           OrchestratorConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(
	scope TransactionScope,
	remote integration.RemoteDirectory,
	subscriptions integration.SyncSubscriptionRepository,
	guard integration.EnqueueGuard,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.ExportBatchSize <= 0 {
		cfg.ExportBatchSize = 500
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = 10 * time.Minute
	}
	return &Orchestrator{
		scope:         scope,
		remote:        remote,
		subscriptions: subscriptions,
		guard:         guard,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// RunImportCycle enumerates the remote side of a subscription and enqueues one
// import per changed entity. A full cycle enumerates everything and also
// enqueues bound remote ids missing from the enumeration, which the importer
// resolves to Gone. The cursor advances to the cycle start only on success.
func (o *Orchestrator) RunImportCycle(ctx context.Context, sub integration.SyncSubscription, full bool) (CycleStats, error) {
	var stats CycleStats
	start := o.now()

	cursor, err := o.loadCursor(ctx, sub, integration.DirectionImport)
	if err != nil {
		return stats, err
	}

	filter := integration.EnumerateFilter{ExcludeSensitivities: o.cfg.ExcludeSensitivities}
	if !full {
		since := cursor.Since(start, o.cfg.LookbackWindow, o.cfg.InitialWindow)
		filter.ModifiedSince = &since
	}

	seen := make(map[string]struct{})
	pageToken := ""
	for {
		page, err := o.remote.Enumerate(ctx, sub.Principal, sub.EntityType, filter, pageToken)
		if err != nil {
			return stats, fmt.Errorf("enumerate %s for %s: %w", sub.EntityType, sub.Principal, err)
		}
		stats.Enumerated += len(page.IDs)

		jobs := make([]*integration.SyncJob, 0, len(page.IDs))
		for _, id := range page.IDs {
			seen[id] = struct{}{}
			jobs = append(jobs, integration.NewImportJob(o.cfg.System, sub.EntityType, sub.Principal, id))
		}
		if err := o.enqueueGuarded(ctx, jobs, &stats); err != nil {
			return stats, err
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if full {
		if err := o.collectVanished(ctx, sub, seen, &stats); err != nil {
			return stats, err
		}
	}

	if err := o.advanceCursor(ctx, sub, integration.DirectionImport, start); err != nil {
		return stats, err
	}

	o.logger.Info("import sweep finished",
		zap.String("principal", sub.Principal.String()),
		zap.String("entity_type", sub.EntityType.String()),
		zap.Bool("full", full),
		zap.Int("enumerated", stats.Enumerated),
		zap.Int("enqueued", stats.Enqueued),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("vanished", stats.Vanished),
	)
	return stats, nil
}

// collectVanished enqueues imports for bound ids the full enumeration did not return
func (o *Orchestrator) collectVanished(ctx context.Context, sub integration.SyncSubscription, seen map[string]struct{}, stats *CycleStats) error {
	var bound []string
	err := o.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		bound, err = repos.Bindings().ListRemoteIDs(ctx, o.cfg.System, sub.EntityType, sub.Principal)
		return err
	})
	if err != nil {
		return fmt.Errorf("list bound remote ids: %w", err)
	}

	var jobs []*integration.SyncJob
	for _, id := range bound {
		if _, ok := seen[id]; ok {
			continue
		}
		jobs = append(jobs, integration.NewImportJob(o.cfg.System, sub.EntityType, sub.Principal, id))
	}
	stats.Vanished = len(jobs)
	return o.enqueueGuarded(ctx, jobs, stats)
}

// RunExportCycle enqueues an export for every flagged record changed since the cursor
func (o *Orchestrator) RunExportCycle(ctx context.Context, sub integration.SyncSubscription) (CycleStats, error) {
	var stats CycleStats
	start := o.now()

	cursor, err := o.loadCursor(ctx, sub, integration.DirectionExport)
	if err != nil {
		return stats, err
	}
	since := cursor.Since(start, o.cfg.LookbackWindow, o.cfg.InitialWindow)

	var records []integration.LocalRecord
	err = o.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		records, err = repos.Records().FindSyncEnabledModifiedSince(ctx, sub.EntityType, sub.Principal, since, o.cfg.ExportBatchSize)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("find modified records: %w", err)
	}
	stats.Enumerated = len(records)

	jobs := make([]*integration.SyncJob, 0, len(records))
	for _, r := range records {
		jobs = append(jobs, integration.NewExportJob(o.cfg.System, r.EntityType, r.OwnerID, r.ID, nil))
	}
	if err := o.enqueueGuarded(ctx, jobs, &stats); err != nil {
		return stats, err
	}

	// a full batch means more records may be waiting; resume after the last one seen
	mark := start
	if len(records) >= o.cfg.ExportBatchSize && len(records) > 0 {
		mark = records[len(records)-1].UpdatedAt.Add(o.cfg.LookbackWindow)
	}
	if err := o.advanceCursor(ctx, sub, integration.DirectionExport, mark); err != nil {
		return stats, err
	}
	return stats, nil
}

// RunAll runs one sweep direction for every enabled subscription.
// A failing subscription does not stop the others; all errors are joined.
func (o *Orchestrator) RunAll(ctx context.Context, direction integration.SyncDirection, full bool) (CycleStats, error) {
	var total CycleStats

	subs, err := o.subscriptions.FindEnabled(ctx, o.cfg.System, direction)
	if err != nil {
		return total, fmt.Errorf("find subscriptions: %w", err)
	}

	var errs []error
	for _, sub := range subs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		var (
			stats CycleStats
			err   error
		)
		if direction == integration.DirectionImport {
			stats, err = o.RunImportCycle(ctx, sub, full)
		} else {
			stats, err = o.RunExportCycle(ctx, sub)
		}
		total.add(stats)
		if err != nil {
			o.logger.Error("sync sweep failed",
				zap.String("direction", string(direction)),
				zap.String("principal", sub.Principal.String()),
				zap.String("entity_type", sub.EntityType.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// EnqueueImport enqueues an import for one remote id, e.g. on a push notification
func (o *Orchestrator) EnqueueImport(ctx context.Context, sub integration.SyncSubscription, remoteID string) (bool, error) {
	var stats CycleStats
	job := integration.NewImportJob(o.cfg.System, sub.EntityType, sub.Principal, remoteID)
	if err := o.enqueueGuarded(ctx, []*integration.SyncJob{job}, &stats); err != nil {
		return false, err
	}
	return stats.Enqueued == 1, nil
}

func (o *Orchestrator) enqueueGuarded(ctx context.Context, jobs []*integration.SyncJob, stats *CycleStats) error {
	claimed := make([]*integration.SyncJob, 0, len(jobs))
	keys := make([]string, 0, len(jobs))
	for _, job := range jobs {
		key := guardKey(job)
		ok, err := o.guard.Claim(ctx, key, o.cfg.GuardTTL)
		if err != nil {
			// an unavailable guard only costs a duplicate job; imports are idempotent
			o.logger.Warn("enqueue guard unavailable", zap.String("key", key), zap.Error(err))
			ok = true
		}
		if !ok {
			stats.Duplicates++
			continue
		}
		claimed = append(claimed, job)
		keys = append(keys, key)
	}
	if len(claimed) == 0 {
		return nil
	}

	err := o.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Jobs().Enqueue(ctx, claimed...)
	})
	if err != nil {
		for _, key := range keys {
			_ = o.guard.Release(ctx, key)
		}
		return fmt.Errorf("enqueue jobs: %w", err)
	}
	stats.Enqueued += len(claimed)
	return nil
}

func guardKey(job *integration.SyncJob) string {
	target := job.RemoteID
	if job.LocalID != nil {
		target = job.LocalID.String()
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", job.Operation, job.System, job.EntityType, job.Principal, target)
}

func (o *Orchestrator) loadCursor(ctx context.Context, sub integration.SyncSubscription, direction integration.SyncDirection) (*integration.SyncCursor, error) {
	var cursor *integration.SyncCursor
	err := o.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		cursor, err = repos.Cursors().Get(ctx, o.cfg.System, sub.EntityType, sub.Principal, direction)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load %s cursor: %w", direction, err)
	}
	return cursor, nil
}

func (o *Orchestrator) advanceCursor(ctx context.Context, sub integration.SyncSubscription, direction integration.SyncDirection, at time.Time) error {
	cursor := &integration.SyncCursor{
		System:     o.cfg.System,
		EntityType: sub.EntityType,
		Principal:  sub.Principal,
		Direction:  direction,
		LastRunAt:  at,
		UpdatedAt:  o.now(),
	}
	err := o.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Cursors().Advance(ctx, cursor)
	})
	if err != nil {
		return fmt.Errorf("advance %s cursor: %w", direction, err)
	}
	return nil
}
