package cache

import (
	"fmt"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/config"
	"go.uber.org/zap"
)

// GuardFactory creates enqueue guards based on configuration
type GuardFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// GuardFactoryOption is a functional option for configuring the factory
type GuardFactoryOption func(*GuardFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) GuardFactoryOption {
	return func(f *GuardFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to the in-memory guard.
// Default is true.
func WithInMemoryFallback(allow bool) GuardFactoryOption {
	return func(f *GuardFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewGuardFactory creates a new factory
func NewGuardFactory(cfg config.RedisConfig, opts ...GuardFactoryOption) *GuardFactory {
	f := &GuardFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisGuard creates a Redis-backed guard
func (f *GuardFactory) CreateRedisGuard() (integration.EnqueueGuard, error) {
	guard, err := NewRedisEnqueueGuard(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis enqueue guard: %w", err)
	}
	return guard, nil
}

// CreateGuard returns the in-memory guard when no Redis host is configured,
// otherwise a Redis guard, falling back to in-memory if allowed.
// In-memory claims are not shared between instances, so overlapping sweeps
// on different instances may enqueue the same job twice.
func (f *GuardFactory) CreateGuard() (integration.EnqueueGuard, error) {
	if f.redisConfig.Host == "" {
		f.logger.Info("no Redis configured, using in-memory enqueue guard")
		return NewInMemoryEnqueueGuard(), nil
	}

	guard, err := f.CreateRedisGuard()
	if err == nil {
		f.logger.Info("using Redis enqueue guard", zap.String("addr", f.redisConfig.Addr()))
		return guard, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for enqueue guard but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory enqueue guard",
		zap.Error(err),
	)
	return NewInMemoryEnqueueGuard(), nil
}
