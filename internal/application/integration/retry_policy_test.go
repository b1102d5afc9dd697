package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}

	t.Run("without max delay the doubling stops at a day", func(t *testing.T) {
		unbounded := RetryPolicy{BaseDelay: time.Second}
		assert.Equal(t, 8*time.Second, unbounded.Backoff(4))
		assert.Equal(t, 24*time.Hour, unbounded.Backoff(200))
		assert.Equal(t, 24*time.Hour, unbounded.Backoff(1<<20))
	})
}

func TestRetryPolicy_Apply(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Minute}
	newJob := func() *integration.SyncJob {
		job := integration.NewImportJob("exchange", integration.EntityTypeContact, uuid.New(), "R1")
		_ = job.Start()
		return job
	}

	t.Run("success", func(t *testing.T) {
		job := newJob()
		assert.Equal(t, OutcomeSuccess, p.Apply(job, integration.ResultImported, nil))
		assert.Equal(t, integration.JobStatusDone, job.Status)
	})

	t.Run("deferred and gone are successes with their own outcome", func(t *testing.T) {
		assert.Equal(t, OutcomeDeferred, p.Apply(newJob(), integration.ResultDeferred, nil))
		assert.Equal(t, OutcomeGone, p.Apply(newJob(), integration.ResultGone, nil))
	})

	t.Run("fatal keeps payload", func(t *testing.T) {
		job := newJob()
		err := integration.FatalWithPayload("import", integration.ErrMalformedRepresentation, map[string]string{"email": "x"})
		assert.Equal(t, OutcomeFatal, p.Apply(job, "", err))
		assert.Equal(t, integration.JobStatusFailed, job.Status)
		assert.Equal(t, "x", job.FailedPayload["email"])
	})

	t.Run("retryable until dead", func(t *testing.T) {
		job := newJob()
		before := time.Now()
		assert.Equal(t, OutcomeRetryable, p.Apply(job, "", integration.ErrLockBusy))
		assert.Equal(t, integration.JobStatusPending, job.Status)
		assert.WithinDuration(t, before.Add(time.Second), job.NotBefore, 500*time.Millisecond)

		_ = job.Start()
		assert.Equal(t, OutcomeRetryable, p.Apply(job, "", errors.New("connection reset")))
		assert.True(t, job.IsDead())
	})
}
