// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	FIELDLINE_HOST="0.0.0.0"
//	FIELDLINE_PORT="8080"
//	FIELDLINE_HEALTH_PORT="9090"
//	FIELDLINE_READ_TIMEOUT="15s"
//	FIELDLINE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	FIELDLINE_POSTGRES_URL="postgres://localhost/fieldline"
//	FIELDLINE_POSTGRES_MAX_CONNS="20"
//
// Redis settings (tenant selection sessions, distributed rate limiting):
//
//	FIELDLINE_REDIS_ADDR="localhost:6379"
//	FIELDLINE_REDIS_POOL_SIZE="10"
//
// Auth settings:
//
//	FIELDLINE_JWT_SECRET="..."          # required
//	FIELDLINE_TOKEN_TTL="1h"
//	FIELDLINE_TOKEN_ISSUER="fieldline"
//
// Access control settings:
//
//	FIELDLINE_POLICY_PATH="configs/policy.yaml"
//	FIELDLINE_POLICY_HOT_RELOAD="true"
//	FIELDLINE_RATE_LIMIT_PER_MINUTE="0"  # 0 disables
//
// Audit settings:
//
//	FIELDLINE_AUDIT_ENABLED="true"
//	FIELDLINE_AUDIT_DB_ENABLED="true"
//	FIELDLINE_AUDIT_FILE=""              # NDJSON file sink when set
//	FIELDLINE_AUDIT_RETENTION_DAYS="90"
//
// Observability settings:
//
//	FIELDLINE_LOG_LEVEL="info"  # debug, info, warn, error
//	FIELDLINE_METRICS_ENABLED="true"
//	FIELDLINE_OTEL_ENABLED="false"
//	FIELDLINE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/middleware: Uses access control configuration
package config
