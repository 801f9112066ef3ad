package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fieldline/fieldline/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// Access control configuration
	Access AccessConfig

	// Audit trail configuration
	Audit AuditConfig

	// SSO configuration
	SSO SSOConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	CORSAllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration for tenant selection sessions
// and distributed rate limiting
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	// JWTSecret signs and verifies HS256 access tokens
	JWTSecret string

	// TokenTTL is the lifetime of newly issued access tokens
	TokenTTL time.Duration

	Issuer string
}

// AccessConfig holds permission resolution settings
type AccessConfig struct {
	// PolicyPath is the route-to-permission binding table (YAML)
	PolicyPath string

	// PolicyHotReload re-reads the policy file when it changes on disk
	PolicyHotReload bool

	// RateLimitPerMinute is the per-client request budget, 0 disables
	RateLimitPerMinute int

	// DistributedRateLimit shares the budget across instances via Redis
	DistributedRateLimit bool
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// Enabled toggles the audit sink entirely
	Enabled bool

	// FilePath appends NDJSON audit records to a file when set
	FilePath string

	// DBEnabled persists audit records to PostgreSQL
	DBEnabled bool

	// RetentionDays prunes audit records older than this, 0 keeps forever
	RetentionDays int

	// RetentionSchedule is a cron expression for the pruning job
	RetentionSchedule string
}

// SSOConfig holds OIDC single sign-on settings
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Access:        loadAccessConfig(),
		Audit:         loadAuditConfig(),
		SSO:           loadSSOConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("FIELDLINE_HOST", "0.0.0.0"),
		Port:               getEnv("FIELDLINE_PORT", "8080"),
		ReadTimeout:        getEnvDuration("FIELDLINE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("FIELDLINE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("FIELDLINE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("FIELDLINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:         getEnv("FIELDLINE_HEALTH_PORT", "9090"),
		CORSAllowedOrigins: getEnvList("FIELDLINE_CORS_ORIGINS", nil),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("FIELDLINE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("FIELDLINE_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns:    getEnvInt("FIELDLINE_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("FIELDLINE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("FIELDLINE_REDIS_ADDR", "localhost:6379"),
		Password:   getEnv("FIELDLINE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("FIELDLINE_REDIS_DB", 0),
		PoolSize:   getEnvInt("FIELDLINE_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("FIELDLINE_REDIS_MAX_RETRIES", 3),
	}
}

// loadAuthConfig loads token settings from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("FIELDLINE_JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("FIELDLINE_TOKEN_TTL", time.Hour),
		Issuer:    getEnv("FIELDLINE_TOKEN_ISSUER", "fieldline"),
	}
}

// loadAccessConfig loads permission resolution settings from environment
func loadAccessConfig() AccessConfig {
	return AccessConfig{
		PolicyPath:           getEnv("FIELDLINE_POLICY_PATH", "configs/policy.yaml"),
		PolicyHotReload:      getEnvBool("FIELDLINE_POLICY_HOT_RELOAD", true),
		RateLimitPerMinute:   getEnvInt("FIELDLINE_RATE_LIMIT_PER_MINUTE", 0),
		DistributedRateLimit: getEnvBool("FIELDLINE_RATE_LIMIT_DISTRIBUTED", false),
	}
}

// loadAuditConfig loads audit trail settings from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:           getEnvBool("FIELDLINE_AUDIT_ENABLED", true),
		FilePath:          getEnv("FIELDLINE_AUDIT_FILE", ""),
		DBEnabled:         getEnvBool("FIELDLINE_AUDIT_DB_ENABLED", true),
		RetentionDays:     getEnvInt("FIELDLINE_AUDIT_RETENTION_DAYS", 90),
		RetentionSchedule: getEnv("FIELDLINE_AUDIT_RETENTION_SCHEDULE", "0 3 * * *"),
	}
}

// loadSSOConfig loads OIDC settings from environment
func loadSSOConfig() SSOConfig {
	return SSOConfig{
		Enabled:      getEnvBool("FIELDLINE_SSO_ENABLED", false),
		IssuerURL:    getEnv("FIELDLINE_SSO_ISSUER_URL", ""),
		ClientID:     getEnv("FIELDLINE_SSO_CLIENT_ID", ""),
		ClientSecret: getEnv("FIELDLINE_SSO_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("FIELDLINE_SSO_REDIRECT_URL", ""),
		Scopes:       getEnvList("FIELDLINE_SSO_SCOPES", []string{"openid", "profile", "email"}),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("FIELDLINE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FIELDLINE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FIELDLINE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FIELDLINE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FIELDLINE_OTEL_SERVICE_NAME", "fieldline-api"),
		OTelServiceVersion: getEnv("FIELDLINE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FIELDLINE_OTEL_INSECURE", true),
	}
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

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Access.PolicyPath == "" {
		return fmt.Errorf("policy path is required")
	}

	if c.Audit.Enabled && !c.Audit.DBEnabled && c.Audit.FilePath == "" {
		return fmt.Errorf("audit trail is enabled but no sink is configured")
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" {
			return fmt.Errorf("SSO issuer URL is required when SSO is enabled")
		}
		if c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("SSO client credentials are required when SSO is enabled")
		}
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
