package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// JobOperation is the kind of work a sync job performs
type JobOperation string

const (
	JobOperationExport JobOperation = "export"
	JobOperationImport JobOperation = "import"
	JobOperationDelete JobOperation = "delete"
)

// IsValid returns true if the operation is known
func (o JobOperation) IsValid() bool {
	switch o {
	case JobOperationExport, JobOperationImport, JobOperationDelete:
		return true
	}
	return false
}

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusDead    JobStatus = "DEAD"
)

// IsValid returns true if the status is a known job status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusDone, JobStatusFailed, JobStatusDead:
		return true
	}
	return false
}

// IsTerminal returns true if the job will not run again without operator action
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusDead
}

// Job priorities; lower runs first
const (
	PriorityImportDeferred = 10
	PriorityDelete         = 20
	PriorityExport         = 50
	PriorityImport         = 100
)

// DefaultMaxRetries is the retry budget of a newly created job
const DefaultMaxRetries = 5

// SyncResult is the outcome recorded on a successfully finished job
type SyncResult string

const (
	ResultCreated  SyncResult = "created"
	ResultUpdated  SyncResult = "updated"
	ResultDeferred SyncResult = "deferred"
	ResultStale    SyncResult = "stale"
	ResultImported SyncResult = "imported"
	ResultSkipped  SyncResult = "skipped"
	ResultGone     SyncResult = "gone"
	ResultDeleted  SyncResult = "deleted"
)

// SyncJob is a durable unit of synchronization work
type SyncJob struct {
	ID            uuid.UUID
	Operation     JobOperation
	System        SystemCode
	EntityType    EntityType
	Principal     uuid.UUID
	LocalID       *uuid.UUID
	RemoteID      string
	Fields        []string
	Priority      int
	Status        JobStatus
	RetryCount    int
	MaxRetries    int
	NotBefore     time.Time
	LastError     string
	FailedPayload map[string]string
	Result        SyncResult
	CorrelationID string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func newJob(op JobOperation, system SystemCode, entityType EntityType, principal uuid.UUID, priority int) *SyncJob {
	now := time.Now()
	return &SyncJob{
		ID:         uuid.New(),
		Operation:  op,
		System:     system,
		EntityType: entityType,
		Principal:  principal,
		Priority:   priority,
		Status:     JobStatusPending,
		MaxRetries: DefaultMaxRetries,
		NotBefore:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewExportJob creates an export job for a local record.
// fields restricts the export to a changeset; nil means all mapped fields.
func NewExportJob(system SystemCode, entityType EntityType, principal, localID uuid.UUID, fields []string) *SyncJob {
	job := newJob(JobOperationExport, system, entityType, principal, PriorityExport)
	job.LocalID = &localID
	if len(fields) > 0 {
		job.Fields = append([]string(nil), fields...)
	}
	return job
}

// NewImportJob creates an import job for a remote entity
func NewImportJob(system SystemCode, entityType EntityType, principal uuid.UUID, remoteID string) *SyncJob {
	job := newJob(JobOperationImport, system, entityType, principal, PriorityImport)
	job.RemoteID = remoteID
	return job
}

// NewDeleteJob creates a job deleting a remote entity whose local record was deleted
func NewDeleteJob(system SystemCode, entityType EntityType, principal uuid.UUID, remoteID string) *SyncJob {
	job := newJob(JobOperationDelete, system, entityType, principal, PriorityDelete)
	job.RemoteID = remoteID
	return job
}

// WithPriority overrides the job priority
func (j *SyncJob) WithPriority(priority int) *SyncJob {
	j.Priority = priority
	return j
}

// WithCorrelationID tags the job with a correlation id
func (j *SyncJob) WithCorrelationID(id string) *SyncJob {
	j.CorrelationID = id
	return j
}

// Validate checks that the job carries the identifiers its operation needs
func (j *SyncJob) Validate() error {
	if !j.Operation.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", shared.ErrInvalidInput, j.Operation)
	}
	if !j.EntityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", shared.ErrInvalidInput, j.EntityType)
	}
	if j.Principal == uuid.Nil {
		return fmt.Errorf("%w: principal is required", shared.ErrInvalidInput)
	}
	switch j.Operation {
	case JobOperationExport:
		if j.LocalID == nil || *j.LocalID == uuid.Nil {
			return fmt.Errorf("%w: export job requires a local id", shared.ErrInvalidInput)
		}
	case JobOperationImport, JobOperationDelete:
		if j.RemoteID == "" {
			return fmt.Errorf("%w: %s job requires a remote id", shared.ErrInvalidInput, j.Operation)
		}
	}
	return nil
}

// Start marks the job as running
func (j *SyncJob) Start() error {
	if j.Status != JobStatusPending && j.Status != JobStatusRunning {
		return fmt.Errorf("%w: cannot start job in status %s", ErrJobInvalidState, j.Status)
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Complete marks the job as done with the given result
func (j *SyncJob) Complete(result SyncResult) {
	now := time.Now()
	j.Status = JobStatusDone
	j.Result = result
	j.LastError = ""
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// ScheduleRetry records a retryable failure and reschedules the job.
// Once the retry budget is spent the job goes to the dead-letter state instead.
func (j *SyncJob) ScheduleRetry(errMsg string, backoff time.Duration) {
	j.RetryCount++
	j.LastError = errMsg
	now := time.Now()
	j.UpdatedAt = now

	if j.RetryCount >= j.MaxRetries {
		j.Status = JobStatusDead
		j.FinishedAt = &now
		return
	}
	j.Status = JobStatusPending
	j.NotBefore = now.Add(backoff)
}

// Fail records a fatal failure with the offending payload
func (j *SyncJob) Fail(errMsg string, payload map[string]string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.LastError = errMsg
	j.FailedPayload = payload
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// ResetForRetry puts a failed or dead job back in the queue
func (j *SyncJob) ResetForRetry() error {
	if j.Status != JobStatusFailed && j.Status != JobStatusDead {
		return fmt.Errorf("%w: can only retry failed or dead jobs", ErrJobInvalidState)
	}
	now := time.Now()
	j.Status = JobStatusPending
	j.RetryCount = 0
	j.LastError = ""
	j.FailedPayload = nil
	j.NotBefore = now
	j.FinishedAt = nil
	j.UpdatedAt = now
	return nil
}

// IsDead returns true if the job exhausted its retries
func (j *SyncJob) IsDead() bool {
	return j.Status == JobStatusDead
}

// IsFinished returns true once the job will not run again without an operator
func (j *SyncJob) IsFinished() bool {
	switch j.Status {
	case JobStatusDone, JobStatusFailed, JobStatusDead:
		return true
	}
	return false
}

// SyncJobRepository is the durable job queue
type SyncJobRepository interface {
	// Enqueue persists one or more new jobs
	Enqueue(ctx context.Context, jobs ...*SyncJob) error
	// ClaimDue atomically marks up to limit due PENDING jobs as RUNNING and returns them
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*SyncJob, error)
	// Update persists the state of an existing job
	Update(ctx context.Context, job *SyncJob) error
	// FindByID retrieves a job
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	// FindByStatus lists jobs in a status with pagination
	FindByStatus(ctx context.Context, status JobStatus, filter shared.Filter) ([]*SyncJob, int64, error)
	// RequeueStale puts RUNNING jobs whose lease expired back to PENDING
	RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error)
	// DeleteCompletedBefore purges DONE jobs finished before the given time
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
	// CountByStatus returns count of jobs for each status
	CountByStatus(ctx context.Context) (map[JobStatus]int64, error)
}
