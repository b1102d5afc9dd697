package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper runs one sweep direction over every enabled subscription
type Sweeper interface {
	RunAll(ctx context.Context, direction integration.SyncDirection, full bool) (appintegration.CycleStats, error)
}

// SweepRecorder records sweep metrics
type SweepRecorder interface {
	RecordSweep(ctx context.Context, direction integration.SyncDirection, full bool, enqueued int, duration time.Duration, err error)
}

// CronTriggerOption configures a CronTrigger
type CronTriggerOption func(*CronTrigger)

// WithSweepRecorder records every sweep
func WithSweepRecorder(r SweepRecorder) CronTriggerOption {
	return func(t *CronTrigger) {
		t.recorder = r
	}
}

// CronTriggerConfig holds the sweep schedules as standard 5-field cron expressions.
// An empty expression disables that sweep.
type CronTriggerConfig struct {
	ImportSchedule     string
	ExportSchedule     string
	FullImportSchedule string
	Location           *time.Location
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		ImportSchedule:     "*/5 * * * *",
		ExportSchedule:     "*/2 * * * *",
		FullImportSchedule: "0 3 * * *",
		Location:           time.UTC,
	}
}

// CronTrigger starts orchestrator sweeps on cron schedules.
// A sweep still running when its next tick fires is skipped.
type CronTrigger struct {
	config   CronTriggerConfig
	sweeper  Sweeper
	recorder SweepRecorder
	logger   *zap.Logger

	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	isRunning bool
}

// NewCronTrigger validates the schedules and registers one entry per sweep
func NewCronTrigger(config CronTriggerConfig, sweeper Sweeper, logger *zap.Logger, opts ...CronTriggerOption) (*CronTrigger, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	t := &CronTrigger{
		config:  config,
		sweeper: sweeper,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	cronLogger := zapCronLogger{logger.Sugar()}
	t.cron = cron.New(
		cron.WithLocation(config.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	entries := []struct {
		name      string
		schedule  string
		direction integration.SyncDirection
		full      bool
	}{
		{"import", config.ImportSchedule, integration.DirectionImport, false},
		{"export", config.ExportSchedule, integration.DirectionExport, false},
		{"full_import", config.FullImportSchedule, integration.DirectionImport, true},
	}
	for _, e := range entries {
		if e.schedule == "" {
			continue
		}
		if _, err := t.cron.AddFunc(e.schedule, func() { t.Sweep(t.ctx, e.direction, e.full) }); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidSchedule, e.name, e.schedule, err)
		}
	}
	return t, nil
}

// Start starts the cron scheduler
func (t *CronTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true
	t.cron.Start()

	t.logger.Info("Sync cron trigger started",
		zap.String("import", t.config.ImportSchedule),
		zap.String("export", t.config.ExportSchedule),
		zap.String("full_import", t.config.FullImportSchedule),
		zap.Int("entries", len(t.cron.Entries())),
	)
	return nil
}

// Stop stops scheduling and waits for running sweeps until ctx expires,
// after which the running sweeps are cancelled.
func (t *CronTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	done := t.cron.Stop()
	select {
	case <-done.Done():
		t.cancel()
		t.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		t.cancel()
		return ctx.Err()
	}
}

// Sweep runs one sweep and logs its statistics
func (t *CronTrigger) Sweep(ctx context.Context, direction integration.SyncDirection, full bool) {
	start := time.Now()
	stats, err := t.sweeper.RunAll(ctx, direction, full)
	elapsed := time.Since(start)
	if t.recorder != nil {
		t.recorder.RecordSweep(ctx, direction, full, stats.Enqueued, elapsed, err)
	}
	fields := []zap.Field{
		zap.String("direction", string(direction)),
		zap.Bool("full", full),
		zap.Int("enumerated", stats.Enumerated),
		zap.Int("enqueued", stats.Enqueued),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("vanished", stats.Vanished),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		t.logger.Error("Sync sweep finished with errors", append(fields, zap.Error(err))...)
		return
	}
	t.logger.Info("Sync sweep finished", fields...)
}

// zapCronLogger adapts zap to the cron.Logger interface
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
