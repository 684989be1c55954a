package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Tenancy       TenancyConfig       `yaml:"tenancy"`
	Audit         AuditConfig         `yaml:"audit"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL settings. The application role must not be
// a superuser or hold BYPASSRLS; the server refuses to start otherwise.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	ReplicaURLs     []string      `yaml:"replica_urls"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	Timeout         time.Duration `yaml:"timeout"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig holds Redis settings. An empty URL selects the in-memory
// session selection store.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	JWTIssuer    string        `yaml:"jwt_issuer"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	APIKeyPrefix string        `yaml:"api_key_prefix"`
}

// TenancyConfig holds isolation and membership settings
type TenancyConfig struct {
	// HierarchyRead lets a parent tenant read its direct children's rows
	HierarchyRead           bool          `yaml:"hierarchy_read"`
	SerializableRetries     int           `yaml:"serializable_retries"`
	InvitationTTL           time.Duration `yaml:"invitation_ttl"`
	InvitationPurgeSchedule string        `yaml:"invitation_purge_schedule"`
}

// AuditConfig holds audit emitter settings
type AuditConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	Workers       int           `yaml:"workers"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	LogStream     bool          `yaml:"log_stream"`
	LogStreamPath string        `yaml:"log_stream_path"`
}

// RateLimitConfig holds per-principal request limits. Limits are shared
// through Redis when it is configured.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Window            time.Duration `yaml:"window"`
	UserRequests      int           `yaml:"user_requests"`
	APIKeyRequests    int           `yaml:"api_key_requests"`
	AnonymousRequests int           `yaml:"anonymous_requests"`
	Burst             int           `yaml:"burst"`
	FailOpen          bool          `yaml:"fail_open"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
		},
		Auth: AuthConfig{
			JWTIssuer:    "warden",
			SessionTTL:   12 * time.Hour,
			APIKeyPrefix: "wdn_",
		},
		Tenancy: TenancyConfig{
			SerializableRetries:     3,
			InvitationTTL:           7 * 24 * time.Hour,
			InvitationPurgeSchedule: "@hourly",
		},
		Audit: AuditConfig{
			BufferSize:   1024,
			Workers:      2,
			WriteTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Window:            time.Minute,
			UserRequests:      1000,
			APIKeyRequests:    5000,
			AnonymousRequests: 100,
			Burst:             50,
			FailOpen:          true,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "warden",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file named
// by WARDEN_CONFIG_FILE, and environment variables, in that order
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("WARDEN_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("WARDEN_HOST", s.Host)
	s.Port = getEnv("WARDEN_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("WARDEN_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("WARDEN_HEALTH_PORT", s.HealthPort)

	d := &c.Database
	d.URL = getEnv("WARDEN_POSTGRES_URL", d.URL)
	if replicas := getEnv("WARDEN_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		d.ReplicaURLs = splitList(replicas)
	}
	d.MaxConns = getEnvInt("WARDEN_POSTGRES_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("WARDEN_POSTGRES_MIN_CONNS", d.MinConns)
	d.ConnMaxLifetime = getEnvDuration("WARDEN_POSTGRES_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.ConnMaxIdleTime = getEnvDuration("WARDEN_POSTGRES_CONN_MAX_IDLE_TIME", d.ConnMaxIdleTime)
	d.Timeout = getEnvDuration("WARDEN_POSTGRES_TIMEOUT", d.Timeout)
	d.AutoMigrate = getEnvBool("WARDEN_POSTGRES_AUTO_MIGRATE", d.AutoMigrate)

	r := &c.Redis
	r.URL = getEnv("WARDEN_REDIS_URL", r.URL)
	r.Password = getEnv("WARDEN_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("WARDEN_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("WARDEN_REDIS_POOL_SIZE", r.PoolSize)
	r.MaxRetries = getEnvInt("WARDEN_REDIS_MAX_RETRIES", r.MaxRetries)

	a := &c.Auth
	a.JWTSecret = getEnv("WARDEN_JWT_SECRET", a.JWTSecret)
	a.JWTIssuer = getEnv("WARDEN_JWT_ISSUER", a.JWTIssuer)
	a.SessionTTL = getEnvDuration("WARDEN_SESSION_TTL", a.SessionTTL)
	a.APIKeyPrefix = getEnv("WARDEN_API_KEY_PREFIX", a.APIKeyPrefix)

	t := &c.Tenancy
	t.HierarchyRead = getEnvBool("WARDEN_TENANCY_HIERARCHY_READ", t.HierarchyRead)
	t.SerializableRetries = getEnvInt("WARDEN_TENANCY_SERIALIZABLE_RETRIES", t.SerializableRetries)
	t.InvitationTTL = getEnvDuration("WARDEN_TENANCY_INVITATION_TTL", t.InvitationTTL)
	t.InvitationPurgeSchedule = getEnv("WARDEN_TENANCY_INVITATION_PURGE_SCHEDULE", t.InvitationPurgeSchedule)

	au := &c.Audit
	au.BufferSize = getEnvInt("WARDEN_AUDIT_BUFFER_SIZE", au.BufferSize)
	au.Workers = getEnvInt("WARDEN_AUDIT_WORKERS", au.Workers)
	au.WriteTimeout = getEnvDuration("WARDEN_AUDIT_WRITE_TIMEOUT", au.WriteTimeout)
	au.LogStream = getEnvBool("WARDEN_AUDIT_LOG_STREAM", au.LogStream)
	au.LogStreamPath = getEnv("WARDEN_AUDIT_LOG_STREAM_PATH", au.LogStreamPath)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("WARDEN_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Window = getEnvDuration("WARDEN_RATE_LIMIT_WINDOW", rl.Window)
	rl.UserRequests = getEnvInt("WARDEN_RATE_LIMIT_USER_REQUESTS", rl.UserRequests)
	rl.APIKeyRequests = getEnvInt("WARDEN_RATE_LIMIT_API_KEY_REQUESTS", rl.APIKeyRequests)
	rl.AnonymousRequests = getEnvInt("WARDEN_RATE_LIMIT_ANONYMOUS_REQUESTS", rl.AnonymousRequests)
	rl.Burst = getEnvInt("WARDEN_RATE_LIMIT_BURST", rl.Burst)
	rl.FailOpen = getEnvBool("WARDEN_RATE_LIMIT_FAIL_OPEN", rl.FailOpen)

	o := &c.Observability
	o.LogLevel = getEnv("WARDEN_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("WARDEN_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("WARDEN_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("WARDEN_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("WARDEN_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("WARDEN_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("WARDEN_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Auth.APIKeyPrefix == "" {
		return fmt.Errorf("API key prefix is required")
	}

	if c.Tenancy.SerializableRetries < 1 {
		return fmt.Errorf("serializable retries must be at least 1")
	}
	if c.Tenancy.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}

	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit buffer size must be at least 1")
	}
	if c.Audit.Workers < 1 {
		return fmt.Errorf("audit workers must be at least 1")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
		if c.RateLimit.UserRequests < 1 || c.RateLimit.APIKeyRequests < 1 || c.RateLimit.AnonymousRequests < 1 {
			return fmt.Errorf("rate limit request counts must be at least 1")
		}
	}

	if _, err := observability.ParseLogLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// LogLevel returns the parsed observability log level
func (c *Config) LogLevel() observability.LogLevel {
	level, _ := observability.ParseLogLevel(c.Observability.LogLevel)
	return level
}

// OTel returns the OpenTelemetry settings in the form InitOTel expects
func (c *Config) OTel() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
