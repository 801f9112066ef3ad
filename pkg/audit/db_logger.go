package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBLogger writes audit entries to PostgreSQL. The table is append-only;
// nothing in this package issues UPDATEs against it.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// access_denials table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure access_denials table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS access_denials (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		outcome VARCHAR(20) NOT NULL,
		user_id VARCHAR(36) NOT NULL,
		token_id VARCHAR(36),
		permission VARCHAR(100) NOT NULL,
		tenant_id VARCHAR(36),
		project_id VARCHAR(36),
		endpoint TEXT NOT NULL,
		method VARCHAR(10) NOT NULL,
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_access_denials_timestamp ON access_denials(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_access_denials_user_id ON access_denials(user_id);
	CREATE INDEX IF NOT EXISTS idx_access_denials_tenant_id ON access_denials(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_access_denials_permission ON access_denials(permission);
	`

	_, err := l.db.Exec(query)
	return err
}

// Record inserts one entry.
func (l *DBLogger) Record(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO access_denials (
			timestamp, outcome,
			user_id, token_id,
			permission, tenant_id, project_id,
			endpoint, method, ip_address, user_agent, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		entry.Timestamp, entry.Outcome,
		entry.UserID, nullString(entry.TokenID),
		entry.Permission, nullString(entry.TenantID), entry.ProjectID,
		entry.Endpoint, entry.Method,
		nullString(entry.IPAddress), nullString(entry.UserAgent), nullString(entry.RequestID),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the database handle.
func (l *DBLogger) Close() error { return nil }

// Search returns entries matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	var (
		conditions []string
		args       []interface{}
	)

	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		addCondition("user_id = $%d", filter.UserID)
	}
	if filter.TenantID != "" {
		addCondition("tenant_id = $%d", filter.TenantID)
	}
	if filter.Permission != "" {
		addCondition("permission = $%d", filter.Permission)
	}
	if filter.Start != nil {
		addCondition("timestamp >= $%d", *filter.Start)
	}
	if filter.End != nil {
		addCondition("timestamp <= $%d", *filter.End)
	}

	query := `
		SELECT id, timestamp, outcome, user_id, token_id,
		       permission, tenant_id, project_id,
		       endpoint, method, ip_address, user_agent, request_id
		FROM access_denials`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			entry     Entry
			tokenID   sql.NullString
			tenantID  sql.NullString
			projectID sql.NullString
			ipAddress sql.NullString
			userAgent sql.NullString
			requestID sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.Outcome, &entry.UserID, &tokenID,
			&entry.Permission, &tenantID, &projectID,
			&entry.Endpoint, &entry.Method, &ipAddress, &userAgent, &requestID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.TokenID = tokenID.String
		entry.TenantID = tenantID.String
		if projectID.Valid {
			entry.ProjectID = &projectID.String
		}
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		entry.RequestID = requestID.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Export serializes entries matching the filter in the given format.
func (l *DBLogger) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	entries, err := l.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatCSV:
		return exportCSV(entries)
	case ExportFormatNDJSON:
		return exportNDJSON(entries)
	default:
		return exportJSON(entries)
	}
}

// Cleanup deletes entries older than the retention window and returns the
// number removed. A non-positive retention keeps everything.
func (l *DBLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := l.db.ExecContext(ctx, "DELETE FROM access_denials WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}
	return result.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
