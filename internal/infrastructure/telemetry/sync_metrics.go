package telemetry

import (
	"context"
	"sync"
	"time"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// JobStatsProvider reports the queue size per job status
type JobStatsProvider interface {
	CountByStatus(ctx context.Context) (map[integration.JobStatus]int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
	System integration.SystemCode
	// JobStats feeds the queue gauge; nil disables periodic collection
	JobStats JobStatsProvider
}

// SyncMetrics records job attempts, sweeps and queue depth.
type SyncMetrics struct {
	logger   *zap.Logger
	system   attribute.KeyValue
	jobStats JobStatsProvider

	attemptsTotal *Counter
	jobDuration   *Histogram
	sweepsTotal   *Counter
	sweepEnqueued *Counter
	sweepDuration *Histogram
	queueDepth    *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

var _ appintegration.SyncRecorder = (*SyncMetrics)(nil)

// NewSyncMetrics creates the sync instruments on the given meter
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		logger:   logger,
		system:   AttrSystem.String(cfg.System.String()),
		jobStats: cfg.JobStats,
		stopChan: make(chan struct{}),
	}

	var err error
	sm.attemptsTotal, err = NewCounter(cfg.Meter,
		"connector_sync_attempts_total",
		"Total number of sync job attempts by operation and outcome",
		"{attempts}")
	if err != nil {
		return nil, err
	}

	sm.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "connector_sync_job_duration_seconds",
		Description: "Duration of sync job attempts",
		Unit:        "s",
		Boundaries:  JobDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.sweepsTotal, err = NewCounter(cfg.Meter,
		"connector_sync_sweeps_total",
		"Total number of orchestrator sweeps",
		"{sweeps}")
	if err != nil {
		return nil, err
	}

	sm.sweepEnqueued, err = NewCounter(cfg.Meter,
		"connector_sync_sweep_enqueued_total",
		"Jobs enqueued by orchestrator sweeps",
		"{jobs}")
	if err != nil {
		return nil, err
	}

	sm.sweepDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "connector_sync_sweep_duration_seconds",
		Description: "Duration of orchestrator sweeps",
		Unit:        "s",
		Boundaries:  SweepDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.queueDepth, err = NewGauge(cfg.Meter,
		"connector_sync_jobs",
		"Current number of sync jobs per status",
		"{jobs}")
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordAttempt implements SyncRecorder
func (sm *SyncMetrics) RecordAttempt(
	ctx context.Context,
	op integration.JobOperation,
	entityType integration.EntityType,
	outcome appintegration.AttemptOutcome,
	result integration.SyncResult,
	duration time.Duration,
) {
	attrs := []attribute.KeyValue{
		sm.system,
		AttrOperation.String(string(op)),
		AttrEntityType.String(entityType.String()),
		AttrOutcome.String(string(outcome)),
	}
	sm.attemptsTotal.Inc(ctx, append(attrs, AttrResult.String(string(result)))...)
	sm.jobDuration.RecordDuration(ctx, duration, attrs...)
}

// RecordSweep records one orchestrator sweep
func (sm *SyncMetrics) RecordSweep(ctx context.Context, direction integration.SyncDirection, full bool, enqueued int, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		sm.system,
		AttrDirection.String(string(direction)),
		attribute.Bool("sync.full", full),
	}
	sm.sweepsTotal.Inc(ctx, append(attrs, AttrOutcome.String(outcome))...)
	sm.sweepEnqueued.Add(ctx, int64(enqueued), attrs...)
	sm.sweepDuration.RecordDuration(ctx, duration, attrs...)
}

// StartPeriodicCollection samples the queue gauge every interval until Stop
// or ctx cancellation. Non-blocking; only the first call has effect.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if sm.jobStats == nil {
		sm.logger.Debug("No job stats provider configured, skipping queue metrics collection")
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	sm.collectOnce.Do(func() {
		go sm.runPeriodicCollection(ctx, interval)
	})
}

func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.CollectQueueDepth(ctx)
	for {
		select {
		case <-sm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CollectQueueDepth(ctx)
		}
	}
}

// CollectQueueDepth samples the queue size per status once
func (sm *SyncMetrics) CollectQueueDepth(ctx context.Context) {
	counts, err := sm.jobStats.CountByStatus(ctx)
	if err != nil {
		sm.logger.Error("Failed to count sync jobs for metrics", zap.Error(err))
		return
	}
	for _, status := range []integration.JobStatus{
		integration.JobStatusPending,
		integration.JobStatusRunning,
		integration.JobStatusDone,
		integration.JobStatusFailed,
		integration.JobStatusDead,
	} {
		sm.queueDepth.Record(ctx, counts[status], sm.system, AttrJobStatus.String(string(status)))
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// MetricsError represents an error in metrics operations.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}
