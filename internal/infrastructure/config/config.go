package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all connector configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Connector ConnectorConfig
	Remote    RemoteConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// LogLevel is the GORM log level: silent, error, warn, info
	LogLevel           string
	SlowQueryThreshold time.Duration
}

// RedisConfig holds Redis connection settings.
// An empty Host selects the in-process enqueue guard.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds operator API server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
	CORSOrigins     []string
	// RateLimit is the request budget per client per RateWindow; 0 disables limiting
	RateLimit  int
	RateWindow time.Duration
	// OperatorToken is the bearer token required on /api/v1; empty disables the check
	OperatorToken string
}

// ConnectorConfig holds synchronization behavior
type ConnectorConfig struct {
	// System is the remote system code written on bindings and jobs
	System string
	// StalePolicy is applied when an export finds its remote entity gone: mark, recreate, unlink
	StalePolicy         string
	LookbackWindow      time.Duration
	InitialWindow       time.Duration
	ExportBatchSize     int
	GuardTTL            time.Duration
	AdvisoryLockTimeout time.Duration
	// ExcludeSensitivities are remote visibility markers never enumerated or imported
	ExcludeSensitivities []string
	SkipRemoteIDs        []string
}

// RemoteConfig holds the remote directory client settings
type RemoteConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	PageSize int
}

// WorkerConfig holds job worker pool settings
type WorkerConfig struct {
	Enabled         bool
	Workers         int
	BatchSize       int
	PollInterval    time.Duration
	Lease           time.Duration
	JobTimeout      time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

// SchedulerConfig holds the cron expressions of the periodic sweeps
type SchedulerConfig struct {
	Enabled        bool
	ImportCron     string
	ExportCron     string
	FullImportCron string
}

// StorageConfig holds attachment store settings
type StorageConfig struct {
	Enabled   bool
	Driver    string // s3, minio, memory
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// TelemetryConfig holds OpenTelemetry metrics and tracing configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string // OTLP gRPC endpoint, e.g. "localhost:4317"
	ServiceName       string
	Insecure          bool // plaintext gRPC, development only
	ExportInterval    time.Duration
	SamplingRatio     float64 // share of root traces kept, 0..1
	TraceSQL          bool    // keep bound variables in database spans
}

var (
	stalePolicies  = []string{"mark", "recreate", "unlink"}
	storageDrivers = []string{"s3", "minio", "memory"}
)

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CONNECTOR_ prefix (e.g., CONNECTOR_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/connector")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return load(v)
}

// LoadFile loads configuration from an explicit file path plus environment overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CONNECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that are on unless switched off
	v.SetDefault("worker.enabled", true)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:               v.GetString("database.host"),
			Port:               v.GetInt("database.port"),
			User:               v.GetString("database.user"),
			Password:           v.GetString("database.password"),
			DBName:             v.GetString("database.dbname"),
			SSLMode:            v.GetString("database.sslmode"),
			MaxOpenConns:       v.GetInt("database.max_open_conns"),
			MaxIdleConns:       v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:    v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime:    v.GetInt("database.conn_max_idle_time"),
			LogLevel:           v.GetString("database.log_level"),
			SlowQueryThreshold: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:     v.GetStringSlice("http.cors_origins"),
			RateLimit:       v.GetInt("http.rate_limit"),
			RateWindow:      v.GetDuration("http.rate_window"),
			OperatorToken:   v.GetString("http.operator_token"),
		},
		Connector: ConnectorConfig{
			System:               v.GetString("connector.system"),
			StalePolicy:          v.GetString("connector.stale_policy"),
			LookbackWindow:       v.GetDuration("connector.lookback_window"),
			InitialWindow:        v.GetDuration("connector.initial_window"),
			ExportBatchSize:      v.GetInt("connector.export_batch_size"),
			GuardTTL:             v.GetDuration("connector.guard_ttl"),
			AdvisoryLockTimeout:  v.GetDuration("connector.advisory_lock_timeout"),
			ExcludeSensitivities: v.GetStringSlice("connector.exclude_sensitivities"),
			SkipRemoteIDs:        v.GetStringSlice("connector.skip_remote_ids"),
		},
		Remote: RemoteConfig{
			BaseURL:  v.GetString("remote.base_url"),
			Token:    v.GetString("remote.token"),
			Timeout:  v.GetDuration("remote.timeout"),
			PageSize: v.GetInt("remote.page_size"),
		},
		Worker: WorkerConfig{
			Enabled:         v.GetBool("worker.enabled"),
			Workers:         v.GetInt("worker.workers"),
			BatchSize:       v.GetInt("worker.batch_size"),
			PollInterval:    v.GetDuration("worker.poll_interval"),
			Lease:           v.GetDuration("worker.lease"),
			JobTimeout:      v.GetDuration("worker.job_timeout"),
			Retention:       v.GetDuration("worker.retention"),
			CleanupInterval: v.GetDuration("worker.cleanup_interval"),
			MaxRetries:      v.GetInt("worker.max_retries"),
			BaseDelay:       v.GetDuration("worker.base_delay"),
			MaxDelay:        v.GetDuration("worker.max_delay"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        v.GetBool("scheduler.enabled"),
			ImportCron:     v.GetString("scheduler.import_cron"),
			ExportCron:     v.GetString("scheduler.export_cron"),
			FullImportCron: v.GetString("scheduler.full_import_cron"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("storage.enabled"),
			Driver:    v.GetString("storage.driver"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			UseSSL:    v.GetBool("storage.use_ssl"),
			Prefix:    v.GetString("storage.prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			TraceSQL:          v.GetBool("telemetry.trace_sql"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-connector"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8090"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "connector"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowQueryThreshold == 0 {
		cfg.Database.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateWindow == 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.Connector.System == "" {
		cfg.Connector.System = "exchange"
	}
	if cfg.Connector.StalePolicy == "" {
		cfg.Connector.StalePolicy = "mark"
	}
	if cfg.Connector.LookbackWindow == 0 {
		cfg.Connector.LookbackWindow = 5 * time.Minute
	}
	if cfg.Connector.InitialWindow == 0 {
		cfg.Connector.InitialWindow = 30 * 24 * time.Hour
	}
	if cfg.Connector.ExportBatchSize == 0 {
		cfg.Connector.ExportBatchSize = 500
	}
	if cfg.Connector.GuardTTL == 0 {
		cfg.Connector.GuardTTL = 10 * time.Minute
	}
	if cfg.Connector.AdvisoryLockTimeout == 0 {
		cfg.Connector.AdvisoryLockTimeout = 5 * time.Second
	}
	if len(cfg.Connector.ExcludeSensitivities) == 0 {
		cfg.Connector.ExcludeSensitivities = []string{"private", "personal"}
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 30 * time.Second
	}
	if cfg.Remote.PageSize == 0 {
		cfg.Remote.PageSize = 100
	}
	if cfg.Worker.Workers == 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 20
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = 2 * time.Second
	}
	if cfg.Worker.Lease == 0 {
		cfg.Worker.Lease = 15 * time.Minute
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = 2 * time.Minute
	}
	if cfg.Worker.Retention == 0 {
		cfg.Worker.Retention = 168 * time.Hour
	}
	if cfg.Worker.CleanupInterval == 0 {
		cfg.Worker.CleanupInterval = time.Hour
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 5
	}
	if cfg.Worker.BaseDelay == 0 {
		cfg.Worker.BaseDelay = 5 * time.Second
	}
	if cfg.Worker.MaxDelay == 0 {
		cfg.Worker.MaxDelay = 10 * time.Minute
	}
	if cfg.Scheduler.ImportCron == "" {
		cfg.Scheduler.ImportCron = "*/5 * * * *"
	}
	if cfg.Scheduler.ExportCron == "" {
		cfg.Scheduler.ExportCron = "*/2 * * * *"
	}
	if cfg.Scheduler.FullImportCron == "" {
		cfg.Scheduler.FullImportCron = "0 3 * * *"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "s3"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "erp-connector"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Connector.System != strings.ToLower(c.Connector.System) || strings.ContainsAny(c.Connector.System, " \t") {
		return fmt.Errorf("connector.system must be a lowercase code, got %q", c.Connector.System)
	}
	if !slices.Contains(stalePolicies, c.Connector.StalePolicy) {
		return fmt.Errorf("connector.stale_policy must be one of %v, got %q", stalePolicies, c.Connector.StalePolicy)
	}
	if c.Connector.LookbackWindow < 0 {
		return fmt.Errorf("connector.lookback_window cannot be negative")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit cannot be negative")
	}
	if c.Worker.Workers < 0 {
		return fmt.Errorf("worker.workers cannot be negative")
	}
	if c.Worker.BaseDelay > c.Worker.MaxDelay {
		return fmt.Errorf("worker.base_delay (%s) cannot exceed worker.max_delay (%s)",
			c.Worker.BaseDelay, c.Worker.MaxDelay)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %g", c.Telemetry.SamplingRatio)
	}
	if c.Worker.JobTimeout >= c.Worker.Lease {
		return fmt.Errorf("worker.job_timeout (%s) must be shorter than worker.lease (%s)",
			c.Worker.JobTimeout, c.Worker.Lease)
	}

	if c.Storage.Enabled {
		if !slices.Contains(storageDrivers, c.Storage.Driver) {
			return fmt.Errorf("storage.driver must be one of %v, got %q", storageDrivers, c.Storage.Driver)
		}
		if c.Storage.Bucket == "" && c.Storage.Driver != "memory" {
			return fmt.Errorf("storage.bucket is required when storage is enabled")
		}
		if c.Storage.Driver == "minio" && c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for the minio driver")
		}
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.HTTP.OperatorToken == "" {
			return fmt.Errorf("http.operator_token is required in production")
		}
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required in production")
		}
		if c.Telemetry.Enabled && c.Telemetry.Insecure {
			return fmt.Errorf("telemetry.insecure must be false in production")
		}
		if c.Telemetry.TraceSQL {
			return fmt.Errorf("telemetry.trace_sql must be false in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
