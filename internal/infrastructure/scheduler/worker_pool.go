package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"go.uber.org/zap"
)

// JobRunner executes one claimed job and persists its outcome
type JobRunner interface {
	Run(ctx context.Context, job *integration.SyncJob) (appintegration.AttemptOutcome, error)
}

// WorkerPoolConfig holds configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	// Lease is how long a RUNNING job may go without finishing before it is requeued
	Lease time.Duration
	// JobTimeout bounds a single attempt
	JobTimeout      time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DefaultWorkerPoolConfig returns default configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:         4,
		BatchSize:       20,
		PollInterval:    2 * time.Second,
		Lease:           15 * time.Minute,
		JobTimeout:      2 * time.Minute,
		Retention:       7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Validate checks the configuration
func (c WorkerPoolConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 || c.Lease <= c.JobTimeout {
		return fmt.Errorf("%w: lease must exceed job timeout", ErrInvalidConfig)
	}
	return nil
}

// WorkerPool claims due jobs from the durable queue and runs them on a fixed
// set of workers fed by a channel. A second loop requeues jobs whose lease
// expired and purges finished jobs past retention.
type WorkerPool struct {
	repo   integration.SyncJobRepository
	runner JobRunner
	config WorkerPoolConfig
	logger *zap.Logger
	now    func() time.Time

	jobs chan *integration.SyncJob

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	workers   sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(repo integration.SyncJobRepository, runner JobRunner, config WorkerPoolConfig, logger *zap.Logger) (*WorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WorkerPool{
		repo:   repo,
		runner: runner,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start launches the workers, the poll loop and the maintenance loop
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.jobs = make(chan *integration.SyncJob, p.config.BatchSize)

	for i := 0; i < p.config.Workers; i++ {
		p.workers.Add(1)
		go p.worker(ctx, i)
	}

	p.loops.Add(2)
	go p.pollLoop(ctx)
	go p.maintenanceLoop(ctx)

	p.logger.Info("sync worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("lease", p.config.Lease),
	)
	return nil
}

// Stop stops claiming, lets in-flight jobs finish and waits for the workers
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		close(p.jobs)
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("sync worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the pool is started
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isRunning
}

func (p *WorkerPool) pollLoop(ctx context.Context) {
	defer p.loops.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		p.dispatch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatch claims one batch and hands it to the workers.
// Jobs that cannot be handed over before shutdown stay RUNNING and are
// recovered by the lease.
func (p *WorkerPool) dispatch(ctx context.Context) int {
	claimed, err := p.repo.ClaimDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to claim due sync jobs", zap.Error(err))
		}
		return 0
	}

	for i, job := range claimed {
		select {
		case p.jobs <- job:
		case <-ctx.Done():
			p.logger.Warn("shutdown with claimed jobs not dispatched",
				zap.Int("pending", len(claimed)-i))
			return i
		}
	}
	if len(claimed) > 0 {
		p.logger.Debug("dispatched sync jobs", zap.Int("count", len(claimed)))
	}
	return len(claimed)
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.workers.Done()
	for job := range p.jobs {
		p.runJob(context.WithoutCancel(ctx), id, job)
	}
}

func (p *WorkerPool) runJob(ctx context.Context, worker int, job *integration.SyncJob) {
	ctx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("sync job panicked",
				zap.Int("worker", worker),
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
			)
			p.failPanicked(ctx, job, r)
		}
	}()

	if _, err := p.runner.Run(ctx, job); err != nil {
		p.logger.Error("failed to record sync job outcome",
			zap.Int("worker", worker),
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

// failPanicked persists a panicked job as FAILED so the lease sweep does not
// run it again; an operator can requeue it
func (p *WorkerPool) failPanicked(ctx context.Context, job *integration.SyncJob, r any) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	job.Fail(fmt.Sprintf("panic: %v", r), nil)
	if err := p.repo.Update(saveCtx, job); err != nil {
		p.logger.Error("failed to record panicked sync job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func (p *WorkerPool) maintenanceLoop(ctx context.Context) {
	defer p.loops.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.maintain(ctx)
		}
	}
}

// maintain requeues expired leases and purges old finished jobs
func (p *WorkerPool) maintain(ctx context.Context) {
	now := p.now()

	requeued, err := p.repo.RequeueStale(ctx, now.Add(-p.config.Lease))
	if err != nil {
		p.logger.Error("failed to requeue stale sync jobs", zap.Error(err))
	} else if requeued > 0 {
		p.logger.Warn("requeued sync jobs with expired lease", zap.Int64("count", requeued))
	}

	cutoff := now.Add(-p.config.Retention)
	deleted, err := p.repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to purge finished sync jobs", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("purged finished sync jobs",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
