package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles project persistence. Every read is tenant-scoped: there is
// no lookup by id alone, so a caller cannot accidentally reach across the
// tenant boundary.
type Store struct {
	db *sql.DB
}

// NewStore creates a new project store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create creates a new project under a tenant
func (s *Store) Create(ctx context.Context, project *Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = StatusPlanning
	}

	query := `
		INSERT INTO projects (id, tenant_id, name, address, status, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		project.ID,
		project.TenantID,
		project.Name,
		project.Address,
		project.Status,
		project.StartDate,
		project.EndDate,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

// Get retrieves a project within a tenant. A project in another tenant
// yields the same ErrProjectNotFound as a project that does not exist.
func (s *Store) Get(ctx context.Context, tenantID, projectID string) (*Project, error) {
	query := `
		SELECT id, tenant_id, name, address, status, start_date, end_date, created_at, updated_at
		FROM projects
		WHERE id = $1 AND tenant_id = $2
	`

	var p Project
	var startDate, endDate sql.NullTime

	err := s.db.QueryRowContext(ctx, query, projectID, tenantID).Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.Address,
		&p.Status,
		&startDate,
		&endDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if startDate.Valid {
		t := startDate.Time
		p.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		p.EndDate = &t
	}

	return &p, nil
}

// List returns the tenant's projects
func (s *Store) List(ctx context.Context, tenantID string) ([]Project, error) {
	query := `
		SELECT id, tenant_id, name, address, status, start_date, end_date, created_at, updated_at
		FROM projects
		WHERE tenant_id = $1
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var startDate, endDate sql.NullTime

		err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.Name,
			&p.Address,
			&p.Status,
			&startDate,
			&endDate,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		if startDate.Valid {
			t := startDate.Time
			p.StartDate = &t
		}
		if endDate.Valid {
			t := endDate.Time
			p.EndDate = &t
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// Update updates a project's mutable fields within a tenant
func (s *Store) Update(ctx context.Context, project *Project) error {
	query := `
		UPDATE projects
		SET name = $1, address = $2, status = $3, start_date = $4, end_date = $5, updated_at = $6
		WHERE id = $7 AND tenant_id = $8
	`

	project.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, query,
		project.Name,
		project.Address,
		project.Status,
		project.StartDate,
		project.EndDate,
		project.UpdatedAt,
		project.ID,
		project.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProjectNotFound
	}

	return nil
}

// Delete removes a project within a tenant
func (s *Store) Delete(ctx context.Context, tenantID, projectID string) error {
	query := `DELETE FROM projects WHERE id = $1 AND tenant_id = $2`
	res, err := s.db.ExecContext(ctx, query, projectID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProjectNotFound
	}

	return nil
}
