package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/erp/connector/sync"

// SyncRecorder records job attempt metrics
type SyncRecorder interface {
	RecordAttempt(ctx context.Context, op integration.JobOperation, entityType integration.EntityType, outcome AttemptOutcome, result integration.SyncResult, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(context.Context, integration.JobOperation, integration.EntityType, AttemptOutcome, integration.SyncResult, time.Duration) {
}

// JobRunner executes one claimed job: it dispatches by operation inside a
// transaction, applies the retry policy and persists the resulting job state.
type JobRunner struct {
	scope    TransactionScope
	exporter *Exporter
	importer *Importer
	deleter  *Deleter
	policy   RetryPolicy
	recorder SyncRecorder
	guard    integration.EnqueueGuard
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewJobRunner creates a JobRunner; recorder may be nil
func NewJobRunner(
	scope TransactionScope,
	exporter *Exporter,
	importer *Importer,
	deleter *Deleter,
	policy RetryPolicy,
	recorder SyncRecorder,
	logger *zap.Logger,
) *JobRunner {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &JobRunner{
		scope:    scope,
		exporter: exporter,
		importer: importer,
		deleter:  deleter,
		policy:   policy,
		recorder: recorder,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// WithTracer replaces the tracer taken from the global provider
func (r *JobRunner) WithTracer(tracer trace.Tracer) *JobRunner {
	r.tracer = tracer
	return r
}

// WithEnqueueGuard makes the runner release a job's enqueue claim once the job
// is finished, so the next sweep can enqueue the same entity again
func (r *JobRunner) WithEnqueueGuard(guard integration.EnqueueGuard) *JobRunner {
	r.guard = guard
	return r
}

// Run executes the job and persists its new state.
// The returned error is only non-nil when the job state could not be persisted.
func (r *JobRunner) Run(ctx context.Context, job *integration.SyncJob) (AttemptOutcome, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "sync.job."+string(job.Operation), trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("sync.operation", string(job.Operation)),
		attribute.String("sync.entity_type", job.EntityType.String()),
		attribute.String("sync.system", string(job.System)),
		attribute.Int("job.retry_count", job.RetryCount),
	))
	defer span.End()

	if err := job.Start(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return OutcomeFatal, err
	}

	correlationID := job.CorrelationID
	if correlationID == "" {
		correlationID = job.ID.String()
	}
	rc := NewRequestContext(job.Principal, job.System, correlationID)

	var result integration.SyncResult
	err := job.Validate()
	if err != nil {
		err = integration.Fatal(string(job.Operation), err)
	} else {
		err = r.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var runErr error
			result, runErr = r.dispatch(ctx, rc.WithTx(repos), job)
			return runErr
		})
	}

	outcome := r.policy.Apply(job, result, err)
	duration := time.Since(start)
	r.recorder.RecordAttempt(ctx, job.Operation, job.EntityType, outcome, result, duration)
	span.SetAttributes(
		attribute.String("sync.outcome", string(outcome)),
		attribute.String("sync.result", string(result)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("correlation_id", correlationID),
		zap.String("operation", string(job.Operation)),
		zap.String("entity_type", job.EntityType.String()),
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", duration),
	}
	switch outcome {
	case OutcomeFatal:
		r.logger.Error("sync job failed permanently", append(fields, zap.Error(err))...)
	case OutcomeRetryable:
		if job.IsDead() {
			r.logger.Warn("sync job exhausted retries, moved to dead letter", append(fields,
				zap.Int("retry_count", job.RetryCount), zap.Error(err))...)
		} else {
			r.logger.Warn("sync job will be retried", append(fields,
				zap.Int("retry_count", job.RetryCount), zap.Time("not_before", job.NotBefore), zap.Error(err))...)
		}
	default:
		r.logger.Debug("sync job finished", append(fields, zap.String("result", string(result)))...)
	}

	if perr := r.persist(ctx, job); perr != nil {
		span.RecordError(perr)
		return outcome, fmt.Errorf("persist job %s: %w", job.ID, perr)
	}
	r.release(ctx, job)
	return outcome, nil
}

// release drops the sweep claim of a finished job. A job waiting for a retry
// keeps its claim: the retry reads the latest remote state anyway.
func (r *JobRunner) release(ctx context.Context, job *integration.SyncJob) {
	if r.guard == nil || !job.IsFinished() {
		return
	}
	key := guardKey(job)
	if err := r.guard.Release(context.WithoutCancel(ctx), key); err != nil {
		r.logger.Warn("failed to release enqueue claim", zap.String("key", key), zap.Error(err))
	}
}

func (r *JobRunner) dispatch(ctx context.Context, rc RequestContext, job *integration.SyncJob) (integration.SyncResult, error) {
	switch job.Operation {
	case integration.JobOperationExport:
		return r.exporter.Export(ctx, rc, job.EntityType, *job.LocalID, job.Fields)
	case integration.JobOperationImport:
		return r.importer.Import(ctx, rc, job.EntityType, job.RemoteID)
	case integration.JobOperationDelete:
		return r.deleter.Delete(ctx, rc, job.EntityType, job.RemoteID)
	}
	return "", integration.Fatal("dispatch", fmt.Errorf("unknown operation %q", job.Operation))
}

// persist writes the job state outside the work transaction so a rolled-back
// attempt still records its failure. It uses a fresh context so that a job
// timeout does not prevent the state from being saved.
func (r *JobRunner) persist(ctx context.Context, job *integration.SyncJob) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return r.scope.Execute(saveCtx, func(repos TransactionalRepositories) error {
		return repos.Jobs().Update(saveCtx, job)
	})
}
