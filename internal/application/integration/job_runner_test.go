package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []AttemptOutcome
}

func (c *countingRecorder) RecordAttempt(_ context.Context, _ integration.JobOperation, _ integration.EntityType, outcome AttemptOutcome, _ integration.SyncResult, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func newTestRunner(h *harness, rec SyncRecorder) *JobRunner {
	exp := NewExporter(h.remote, fakeRegistry{}, h.binder, h.store, StalePolicyMark, zapNop)
	imp := NewImporter(h.remote, fakeRegistry{}, h.binder, h.store, h.objects, ImporterConfig{}, zapNop)
	del := NewDeleter(h.remote, time.Second, zapNop)
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	return NewJobRunner(h.scope, exp, imp, del, policy, rec, zapNop)
}

func enqueue(t *testing.T, h *harness, job *integration.SyncJob) *integration.SyncJob {
	t.Helper()
	require.NoError(t, h.jobs.Enqueue(context.Background(), job))
	claimed, err := h.jobs.ClaimDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	return claimed[0]
}

func TestJobRunner_Dispatch(t *testing.T) {
	t.Run("export", func(t *testing.T) {
		h := newHarness()
		rec := h.seedRecord(integration.Fields{"name": "Ada"})
		recorder := &countingRecorder{}
		job := enqueue(t, h, integration.NewExportJob(testSystem, integration.EntityTypeContact, h.principal, rec.ID, nil))

		outcome, err := newTestRunner(h, recorder).Run(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, outcome)

		stored, err := h.jobs.FindByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusDone, stored.Status)
		assert.Equal(t, integration.ResultCreated, stored.Result)
		assert.Equal(t, []AttemptOutcome{OutcomeSuccess}, recorder.outcomes)
	})

	t.Run("delete treats missing remote as deleted", func(t *testing.T) {
		h := newHarness()
		job := enqueue(t, h, integration.NewDeleteJob(testSystem, integration.EntityTypeContact, h.principal, "R-missing"))

		outcome, err := newTestRunner(h, nil).Run(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, outcome)

		stored, _ := h.jobs.FindByID(context.Background(), job.ID)
		assert.Equal(t, integration.ResultDeleted, stored.Result)
	})

	t.Run("delete removes the remote entity", func(t *testing.T) {
		h := newHarness()
		h.remote.put("R1", integration.Representation{"name": "Ada"})
		job := enqueue(t, h, integration.NewDeleteJob(testSystem, integration.EntityTypeContact, h.principal, "R1"))

		_, err := newTestRunner(h, nil).Run(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, 1, h.remote.deletes)
		assert.NotContains(t, h.remote.entities, "R1")
	})
}

func TestJobRunner_RetryableFailurePersistsSchedule(t *testing.T) {
	h := newHarness()
	h.locks.advisoryErr = integration.ErrLockTimeout
	job := enqueue(t, h, integration.NewImportJob(testSystem, integration.EntityTypeContact, h.principal, "R1"))

	outcome, err := newTestRunner(h, nil).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetryable, outcome)

	stored, err := h.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, integration.JobStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.True(t, stored.NotBefore.After(time.Now()))
	assert.Contains(t, stored.LastError, "lock wait timed out")
}

func TestJobRunner_InvalidJobIsFatal(t *testing.T) {
	h := newHarness()
	job := enqueue(t, h, integration.NewImportJob(testSystem, integration.EntityTypeContact, uuid.New(), ""))

	outcome, err := newTestRunner(h, nil).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFatal, outcome)

	stored, _ := h.jobs.FindByID(context.Background(), job.ID)
	assert.Equal(t, integration.JobStatusFailed, stored.Status)
}

func TestJobRunner_DeferredExportRunsImport(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	rec := h.seedRecord(integration.Fields{"name": "Local"})
	h.remote.put("R1", integration.Representation{"name": "Remote"})
	h.seedBinding(rec.ID, "R1", "old")

	runner := newTestRunner(h, nil)
	job := enqueue(t, h, integration.NewExportJob(testSystem, integration.EntityTypeContact, h.principal, rec.ID, nil))
	outcome, err := runner.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, outcome)
	assert.Zero(t, h.remote.updates, "a divergent remote must not be overwritten")

	claimed, err := h.jobs.ClaimDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, integration.JobOperationImport, claimed[0].Operation)

	outcome, err = runner.Run(ctx, claimed[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, "Remote", h.records.get(rec.ID).Fields["name"])
	assert.Equal(t, integration.SyncStatusSynced, h.bindings.all()[0].Status)
}

func TestJobRunner_TracesEachAttempt(t *testing.T) {
	spanAttrs := func(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range span.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		return attrs
	}

	t.Run("successful export", func(t *testing.T) {
		h := newHarness()
		recorder := tracetest.NewSpanRecorder()
		tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
		rec := h.seedRecord(integration.Fields{"name": "Ada"})
		job := enqueue(t, h, integration.NewExportJob(testSystem, integration.EntityTypeContact, h.principal, rec.ID, nil))

		_, err := newTestRunner(h, nil).WithTracer(tracer).Run(context.Background(), job)
		require.NoError(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "sync.job.export", spans[0].Name())
		attrs := spanAttrs(spans[0])
		assert.Equal(t, job.ID.String(), attrs["job.id"].AsString())
		assert.Equal(t, string(OutcomeSuccess), attrs["sync.outcome"].AsString())
		assert.Equal(t, string(integration.ResultCreated), attrs["sync.result"].AsString())
		assert.Equal(t, codes.Unset, spans[0].Status().Code)
	})

	t.Run("retryable failure marks the span", func(t *testing.T) {
		h := newHarness()
		h.locks.advisoryErr = integration.ErrLockTimeout
		recorder := tracetest.NewSpanRecorder()
		tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
		job := enqueue(t, h, integration.NewImportJob(testSystem, integration.EntityTypeContact, h.principal, "R1"))

		outcome, err := newTestRunner(h, nil).WithTracer(tracer).Run(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetryable, outcome)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "sync.job.import", spans[0].Name())
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Contains(t, spans[0].Status().Description, "lock wait timed out")
		assert.Equal(t, string(OutcomeRetryable), spanAttrs(spans[0])["sync.outcome"].AsString())
		require.NotEmpty(t, spans[0].Events(), "the error is recorded as a span event")
	})
}
