package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appintegration "github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/cache"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/mapping"
	"github.com/erp/connector/internal/infrastructure/persistence"
	"github.com/erp/connector/internal/infrastructure/remote"
	"github.com/erp/connector/internal/infrastructure/scheduler"
	"github.com/erp/connector/internal/infrastructure/storage"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/erp/connector/internal/interfaces/http/handler"
	"github.com/erp/connector/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting connector",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("system", cfg.Connector.System),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "meter provider", meterProvider.Shutdown)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "tracer provider", tracerProvider.Shutdown)

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if meterProvider.IsEnabled() {
		if _, err := telemetry.RegisterDBMetrics(ctx, db.DB, meterProvider, telemetry.DBMetricsConfig{
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
			PoolStatsInterval:  15 * time.Second,
		}, log); err != nil {
			log.Warn("Database metrics disabled", zap.Error(err))
		}
	}
	if tracerProvider.IsEnabled() {
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			LogFullSQL: cfg.Telemetry.TraceSQL,
		}, log); err != nil {
			log.Warn("Database tracing disabled", zap.Error(err))
		}
	}

	system := integration.SystemCode(cfg.Connector.System)
	scope := persistence.NewGormTransactionScope(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	subscriptionRepo := persistence.NewGormSyncSubscriptionRepository(db.DB)

	registry, err := mapping.DefaultRegistry()
	if err != nil {
		log.Fatal("Invalid mapping tables", zap.Error(err))
	}

	directory, err := remote.NewDirectory(remote.Config{
		BaseURL:  cfg.Remote.BaseURL,
		Token:    cfg.Remote.Token,
		Timeout:  cfg.Remote.Timeout,
		PageSize: cfg.Remote.PageSize,
	}, log)
	if err != nil {
		log.Fatal("Failed to create remote directory client", zap.Error(err))
	}

	attachments := newAttachmentStore(ctx, &cfg.Storage, log)

	guard, err := cache.NewGuardFactory(cfg.Redis, cache.WithLogger(log)).CreateGuard()
	if err != nil {
		log.Fatal("Failed to create enqueue guard", zap.Error(err))
	}

	// Application services
	binder := appintegration.NewBinder()
	localStore := appintegration.NewLocalStore(scope, appintegration.NewChangeTrigger(system, log), log)
	exporter := appintegration.NewExporter(directory, registry, binder, localStore,
		appintegration.StalePolicy(cfg.Connector.StalePolicy), log)
	importer := appintegration.NewImporter(directory, registry, binder, localStore, attachments,
		appintegration.ImporterConfig{
			AdvisoryLockTimeout: cfg.Connector.AdvisoryLockTimeout,
			SkipSensitivities:   cfg.Connector.ExcludeSensitivities,
			SkipRemoteIDs:       cfg.Connector.SkipRemoteIDs,
		}, log)
	deleter := appintegration.NewDeleter(directory, cfg.Connector.AdvisoryLockTimeout, log)
	orchestrator := appintegration.NewOrchestrator(scope, directory, subscriptionRepo, guard,
		appintegration.OrchestratorConfig{
			System:               system,
			LookbackWindow:       cfg.Connector.LookbackWindow,
			InitialWindow:        cfg.Connector.InitialWindow,
			ExportBatchSize:      cfg.Connector.ExportBatchSize,
			GuardTTL:             cfg.Connector.GuardTTL,
			ExcludeSensitivities: cfg.Connector.ExcludeSensitivities,
		}, log)
	operator := appintegration.NewOperatorService(scope, binder, orchestrator, subscriptionRepo, system, log)

	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:    meterProvider.Meter("connector.sync"),
		Logger:   log,
		System:   system,
		JobStats: jobRepo,
	})
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}
	defer syncMetrics.Stop()
	if meterProvider.IsEnabled() {
		syncMetrics.StartPeriodicCollection(ctx, 30*time.Second)
	}

	runner := appintegration.NewJobRunner(scope, exporter, importer, deleter,
		appintegration.RetryPolicy{
			MaxRetries: cfg.Worker.MaxRetries,
			BaseDelay:  cfg.Worker.BaseDelay,
			MaxDelay:   cfg.Worker.MaxDelay,
		}, syncMetrics, log).
		WithEnqueueGuard(guard).
		WithTracer(tracerProvider.Tracer("github.com/erp/connector/sync"))

	// Background workers
	if cfg.Worker.Enabled {
		pool, err := scheduler.NewWorkerPool(jobRepo, runner, scheduler.WorkerPoolConfig{
			Workers:         cfg.Worker.Workers,
			BatchSize:       cfg.Worker.BatchSize,
			PollInterval:    cfg.Worker.PollInterval,
			Lease:           cfg.Worker.Lease,
			JobTimeout:      cfg.Worker.JobTimeout,
			Retention:       cfg.Worker.Retention,
			CleanupInterval: cfg.Worker.CleanupInterval,
		}, log)
		if err != nil {
			log.Fatal("Failed to create worker pool", zap.Error(err))
		}
		if err := pool.Start(ctx); err != nil {
			log.Fatal("Failed to start worker pool", zap.Error(err))
		}
		defer shutdownWithTimeout(log, "worker pool", pool.Stop)
	}

	if cfg.Scheduler.Enabled {
		cronCfg := scheduler.DefaultCronTriggerConfig()
		cronCfg.ImportSchedule = cfg.Scheduler.ImportCron
		cronCfg.ExportSchedule = cfg.Scheduler.ExportCron
		cronCfg.FullImportSchedule = cfg.Scheduler.FullImportCron
		trigger, err := scheduler.NewCronTrigger(cronCfg, orchestrator, log, scheduler.WithSweepRecorder(syncMetrics))
		if err != nil {
			log.Fatal("Failed to create cron trigger", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start cron trigger", zap.Error(err))
		}
		defer shutdownWithTimeout(log, "cron trigger", trigger.Stop)
	}

	// HTTP API
	engine, stopLimiter := router.NewEngine(router.EngineConfig{
		HTTP:           cfg.HTTP,
		Production:     cfg.App.Env == "production",
		MeterProvider:  meterProvider,
		TracerProvider: tracerProvider.Provider(),
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         log,
		PublicPaths:    []string{"/api/v1/health", "/api/v1/health/ready"},
	})
	defer stopLimiter()

	healthHandler := handler.NewHealthHandler(cfg.App.Name, version, map[string]handler.HealthCheck{
		"database": db.PingContext,
	})
	router.NewRouter(engine).
		Register(healthHandler).
		Register(handler.NewSyncHandler(operator)).
		Register(handler.NewRecordHandler(localStore, registry)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newAttachmentStore returns nil when storage is disabled; the importer then skips attachments.
func newAttachmentStore(ctx context.Context, cfg *config.StorageConfig, log *zap.Logger) integration.AttachmentStore {
	if !cfg.Enabled {
		log.Info("Attachment storage disabled")
		return nil
	}
	store, err := storage.New(cfg, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create attachment store", zap.Error(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to prepare attachment bucket", zap.Error(err), zap.String("bucket", cfg.Bucket))
	}
	log.Info("Attachment storage ready", zap.String("driver", cfg.Driver), zap.String("bucket", cfg.Bucket))
	return store
}

func shutdownWithTimeout(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
