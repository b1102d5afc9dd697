package router

import (
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// BasePath returns the versioned API prefix, e.g. "/api/v1"
func (r *Router) BasePath() string {
	return "/api/" + r.apiVersion
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.BasePath())
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// EngineConfig holds what NewEngine needs to build the middleware stack
type EngineConfig struct {
	HTTP           config.HTTPConfig
	Production     bool
	MeterProvider  *telemetry.MeterProvider
	// TracerProvider enables a server span per request when set
	TracerProvider trace.TracerProvider
	ServiceName    string
	Logger         *zap.Logger
	// PublicPaths skip operator authentication, e.g. health probes
	PublicPaths []string
}

// NewEngine creates a gin engine with the operator API middleware stack:
// tracing, request logging, panic recovery, security headers, CORS, body limit,
// metrics, rate limiting (when configured) and operator authentication.
// The returned stop function releases the rate limiter's cleanup goroutine.
func NewEngine(cfg EngineConfig) (*gin.Engine, func()) {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName:    cfg.ServiceName,
		Enabled:        cfg.TracerProvider != nil,
		TracerProvider: cfg.TracerProvider,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TraceAttributes())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.SecureWithConfig(securityConfig(cfg.Production)))
	engine.Use(middleware.CORS(cfg.HTTP.CORSOrigins...))
	engine.Use(middleware.BodyLimit(bodyLimits(cfg.HTTP.MaxBodySize)))
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: cfg.MeterProvider,
		Enabled:       cfg.MeterProvider != nil,
		Logger:        log,
	}))

	stop := func() {}
	if cfg.HTTP.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
		engine.Use(middleware.RateLimit(limiter))
		stop = limiter.Stop
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimit),
			zap.Duration("window", cfg.HTTP.RateWindow),
		)
	}

	engine.Use(middleware.OperatorAuth(middleware.OperatorAuthConfig{
		Token:     cfg.HTTP.OperatorToken,
		SkipPaths: cfg.PublicPaths,
		Logger:    log,
	}))

	return engine, stop
}

// controlBodyLimit bounds the trigger and subscription endpoints, whose bodies
// are a handful of flags
const controlBodyLimit = 16 << 10

func bodyLimits(maxBytes int64) middleware.BodyLimitConfig {
	control := min(maxBytes, controlBodyLimit)
	return middleware.BodyLimitConfig{
		MaxBytes: maxBytes,
		Routes: map[string]int64{
			"/api/v1/sync":           control,
			"/api/v1/sync/import":    control,
			"/api/v1/subscriptions":  control,
			"/api/v1/jobs/:id/retry": control,
		},
	}
}

func securityConfig(production bool) middleware.SecurityConfig {
	sc := middleware.DefaultSecurityConfig()
	sc.HSTSEnabled = production
	return sc
}
