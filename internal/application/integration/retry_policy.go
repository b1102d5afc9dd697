package integration

import (
	"errors"
	"time"

	"github.com/erp/connector/internal/domain/integration"
)

// AttemptOutcome is the classification of one job attempt
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "SUCCESS"
	OutcomeDeferred  AttemptOutcome = "DEFERRED"
	OutcomeGone      AttemptOutcome = "GONE"
	OutcomeRetryable AttemptOutcome = "RETRYABLE"
	OutcomeFatal     AttemptOutcome = "FATAL"
)

// RetryPolicy governs re-execution of failed jobs
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: integration.DefaultMaxRetries,
		BaseDelay:  5 * time.Second,
		MaxDelay:   10 * time.Minute,
	}
}

// Classify returns the retry class of err; unclassified errors are retryable
func (p RetryPolicy) Classify(err error) integration.ErrorClass {
	return integration.ClassOf(err)
}

// backoffCeiling caps the delay when MaxDelay is unset
const backoffCeiling = 24 * time.Hour

// Backoff returns the delay before attempt n+1 after n failures: base·2^(n-1),
// capped at MaxDelay (or a day when MaxDelay is unset)
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = backoffCeiling
	}
	delay := p.BaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < n && delay < ceiling; i++ {
		delay *= 2
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// Apply moves a job to its next state after an attempt and returns the outcome
func (p RetryPolicy) Apply(job *integration.SyncJob, result integration.SyncResult, err error) AttemptOutcome {
	if p.MaxRetries > 0 {
		job.MaxRetries = p.MaxRetries
	}

	if err == nil {
		job.Complete(result)
		switch result {
		case integration.ResultDeferred:
			return OutcomeDeferred
		case integration.ResultGone:
			return OutcomeGone
		}
		return OutcomeSuccess
	}

	if p.Classify(err) == integration.ErrorClassFatal {
		var payload map[string]string
		var se *integration.SyncError
		if errors.As(err, &se) {
			payload = se.Payload
		}
		job.Fail(err.Error(), payload)
		return OutcomeFatal
	}

	job.ScheduleRetry(err.Error(), p.Backoff(job.RetryCount+1))
	return OutcomeRetryable
}
