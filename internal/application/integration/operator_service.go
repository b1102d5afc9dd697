package integration

import (
	"context"
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OperatorService backs the operator API: binding status, job queues and manual triggers
type OperatorService struct {
	scope         TransactionScope
	binder        *Binder
	orchestrator  *Orchestrator
	subscriptions integration.SyncSubscriptionRepository
	system        integration.SystemCode
	logger        *zap.Logger
}

// NewOperatorService creates an OperatorService
func NewOperatorService(
	scope TransactionScope,
	binder *Binder,
	orchestrator *Orchestrator,
	subscriptions integration.SyncSubscriptionRepository,
	system integration.SystemCode,
	logger *zap.Logger,
) *OperatorService {
	return &OperatorService{
		scope:         scope,
		binder:        binder,
		orchestrator:  orchestrator,
		subscriptions: subscriptions,
		system:        system,
		logger:        logger,
	}
}

// BindingStatus returns the binding of a local record and its sync status
func (s *OperatorService) BindingStatus(ctx context.Context, localID uuid.UUID) (*BindingStatusResponse, error) {
	resp := &BindingStatusResponse{LocalID: localID, System: s.system, Status: integration.SyncStatusUnbound}
	rc := NewRequestContext(uuid.Nil, s.system, "")
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Records().FindByID(ctx, localID); err != nil {
			return err
		}
		binding, err := s.binder.ResolveLocal(ctx, rc.WithTx(repos), localID)
		if err != nil || binding == nil {
			return err
		}
		resp.fill(binding)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListBindings lists bindings in a status
func (s *OperatorService) ListBindings(ctx context.Context, status integration.SyncStatus, filter shared.Filter) ([]BindingStatusResponse, int64, error) {
	if !status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, status)
	}
	var (
		bindings []integration.Binding
		total    int64
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		bindings, total, err = repos.Bindings().FindByStatus(ctx, status, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]BindingStatusResponse, len(bindings))
	for i := range bindings {
		out[i].LocalID = bindings[i].LocalID
		out[i].fill(&bindings[i])
	}
	return out, total, nil
}

// ListJobs lists jobs in a status
func (s *OperatorService) ListJobs(ctx context.Context, status integration.JobStatus, filter shared.Filter) ([]JobResponse, int64, error) {
	if !status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown job status %q", shared.ErrInvalidInput, status)
	}
	var (
		jobs  []*integration.SyncJob
		total int64
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		jobs, total, err = repos.Jobs().FindByStatus(ctx, status, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		out[i] = ToJobResponse(job)
	}
	return out, total, nil
}

// GetJob returns one job
func (s *OperatorService) GetJob(ctx context.Context, id uuid.UUID) (*JobResponse, error) {
	var job *integration.SyncJob
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		job, err = repos.Jobs().FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	resp := ToJobResponse(job)
	return &resp, nil
}

// RetryJob puts a failed or dead job back in the queue
func (s *OperatorService) RetryJob(ctx context.Context, id uuid.UUID) (*JobResponse, error) {
	var job *integration.SyncJob
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		job, err = repos.Jobs().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := job.ResetForRetry(); err != nil {
			return err
		}
		return repos.Jobs().Update(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sync job requeued by operator", zap.String("job_id", id.String()))
	resp := ToJobResponse(job)
	return &resp, nil
}

// JobStats returns job counts per status
func (s *OperatorService) JobStats(ctx context.Context) (map[integration.JobStatus]int64, error) {
	var counts map[integration.JobStatus]int64
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		counts, err = repos.Jobs().CountByStatus(ctx)
		return err
	})
	return counts, err
}

// TriggerSync starts a sweep for every enabled subscription
func (s *OperatorService) TriggerSync(ctx context.Context, req TriggerSyncRequest) (CycleStats, error) {
	direction := integration.SyncDirection(req.Direction)
	if !direction.IsValid() {
		return CycleStats{}, fmt.Errorf("%w: unknown direction %q", shared.ErrInvalidInput, req.Direction)
	}
	return s.orchestrator.RunAll(ctx, direction, req.Full)
}

// TriggerImport enqueues an import for one remote entity of a principal
func (s *OperatorService) TriggerImport(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, remoteID string) (bool, error) {
	sub, err := s.subscriptions.Find(ctx, s.system, principal, entityType)
	if err != nil {
		return false, err
	}
	return s.orchestrator.EnqueueImport(ctx, *sub, remoteID)
}

// SaveSubscription creates or updates a principal's sync flags
func (s *OperatorService) SaveSubscription(ctx context.Context, req SubscriptionRequest) (*integration.SyncSubscription, error) {
	entityType := integration.EntityType(req.EntityType)
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnsupportedEntityType, req.EntityType)
	}
	sub := &integration.SyncSubscription{
		ID:            uuid.New(),
		System:        s.system,
		Principal:     req.Principal,
		EntityType:    entityType,
		ImportEnabled: req.ImportEnabled,
		ExportEnabled: req.ExportEnabled,
		Mailbox:       req.Mailbox,
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}
