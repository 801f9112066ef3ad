package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles role and grant persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new role. Role IDs are generated here so the same
// statements run on Postgres and SQLite.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	if role.ID == "" {
		role.ID = uuid.NewString()
	}

	query := `
		INSERT INTO roles (id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		role.ID,
		role.Name,
		role.DisplayName,
		role.Description,
		role.TenantID,
		string(permissionsJSON),
		role.IsBuiltIn,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID string) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	return s.scanRole(s.db.QueryRowContext(ctx, query, roleID))
}

// GetRoleByName retrieves a role by name. Tenant-scoped custom roles shadow
// built-in roles of the same name for that tenant.
func (s *Store) GetRoleByName(ctx context.Context, name string, tenantID *string) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE name = $1 AND (tenant_id = $2 OR tenant_id IS NULL)
		ORDER BY tenant_id DESC NULLS LAST
		LIMIT 1
	`
	return s.scanRole(s.db.QueryRowContext(ctx, query, name, tenantID))
}

// ListRoles lists built-in roles plus the tenant's custom roles
func (s *Store) ListRoles(ctx context.Context, tenantID *string) ([]Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 OR tenant_id IS NULL
		ORDER BY is_built_in DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// UpdateRole updates a custom role's display name, description, and permissions
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	existing, err := s.GetRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if existing.IsBuiltIn {
		return ErrBuiltInRole
	}

	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		UPDATE roles
		SET display_name = $1, description = $2, permissions = $3, updated_at = $4
		WHERE id = $5
	`

	role.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		role.DisplayName,
		role.Description,
		string(permissionsJSON),
		role.UpdatedAt,
		role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return nil
}

// DeleteRole deletes a custom role. Built-in roles cannot be deleted.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsBuiltIn {
		return ErrBuiltInRole
	}

	query := `DELETE FROM roles WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	return nil
}

// GrantSystemRole assigns a platform-level role to a user
func (s *Store) GrantSystemRole(ctx context.Context, grant *SystemGrant) error {
	query := `
		INSERT INTO system_role_grants (user_id, role_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		grant.UserID,
		grant.RoleID,
		grant.GrantedBy,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to grant system role: %w", err)
	}

	grant.GrantedAt = now
	return nil
}

// RevokeSystemRole removes a platform-level role from a user
func (s *Store) RevokeSystemRole(ctx context.Context, userID, roleID string) error {
	query := `DELETE FROM system_role_grants WHERE user_id = $1 AND role_id = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, roleID); err != nil {
		return fmt.Errorf("failed to revoke system role: %w", err)
	}
	return nil
}

// SystemRolesFor retrieves the roles a user holds at the platform level
func (s *Store) SystemRolesFor(ctx context.Context, userID string) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.description, r.tenant_id, r.permissions, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN system_role_grants g ON g.role_id = r.id
		WHERE g.user_id = $1
		ORDER BY r.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get system roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// GrantTenantRole assigns a role to a user within a tenant
func (s *Store) GrantTenantRole(ctx context.Context, grant *TenantGrant) error {
	query := `
		INSERT INTO tenant_role_grants (user_id, tenant_id, role_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		grant.UserID,
		grant.TenantID,
		grant.RoleID,
		grant.GrantedBy,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to grant tenant role: %w", err)
	}

	grant.GrantedAt = now
	return nil
}

// RevokeTenantRole removes a tenant-scoped role from a user
func (s *Store) RevokeTenantRole(ctx context.Context, userID, tenantID, roleID string) error {
	query := `DELETE FROM tenant_role_grants WHERE user_id = $1 AND tenant_id = $2 AND role_id = $3`
	if _, err := s.db.ExecContext(ctx, query, userID, tenantID, roleID); err != nil {
		return fmt.Errorf("failed to revoke tenant role: %w", err)
	}
	return nil
}

// TenantRolesFor retrieves the roles a user holds within one tenant
func (s *Store) TenantRolesFor(ctx context.Context, userID, tenantID string) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.description, r.tenant_id, r.permissions, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN tenant_role_grants g ON g.role_id = r.id
		WHERE g.user_id = $1 AND g.tenant_id = $2
		ORDER BY r.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// AssignProjectRole gives a user a role on a single project, replacing any
// existing assignment for that project.
func (s *Store) AssignProjectRole(ctx context.Context, assignment *ProjectAssignment) error {
	// A user holds at most one role per project
	del := `DELETE FROM project_assignments WHERE user_id = $1 AND project_id = $2`
	if _, err := s.db.ExecContext(ctx, del, assignment.UserID, assignment.ProjectID); err != nil {
		return fmt.Errorf("failed to replace project assignment: %w", err)
	}

	query := `
		INSERT INTO project_assignments (user_id, project_id, role_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		assignment.UserID,
		assignment.ProjectID,
		assignment.RoleID,
		assignment.AssignedBy,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to assign project role: %w", err)
	}

	assignment.AssignedAt = now
	return nil
}

// UnassignProjectRole removes a user's project assignment
func (s *Store) UnassignProjectRole(ctx context.Context, userID, projectID string) error {
	query := `DELETE FROM project_assignments WHERE user_id = $1 AND project_id = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, projectID); err != nil {
		return fmt.Errorf("failed to unassign project role: %w", err)
	}
	return nil
}

// ProjectRoleFor retrieves the role a user holds on a project, or nil when
// the user has no assignment there.
func (s *Store) ProjectRoleFor(ctx context.Context, userID, projectID string) (*Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.description, r.tenant_id, r.permissions, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN project_assignments a ON a.role_id = r.id
		WHERE a.user_id = $1 AND a.project_id = $2
	`

	role, err := s.scanRole(s.db.QueryRowContext(ctx, query, userID, projectID))
	if errors.Is(err, ErrRoleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ListProjectAssignments retrieves all assignments on a project
func (s *Store) ListProjectAssignments(ctx context.Context, projectID string) ([]ProjectAssignment, error) {
	query := `
		SELECT a.user_id, a.project_id, a.role_id, r.name, a.assigned_by, a.assigned_at
		FROM project_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.project_id = $1
		ORDER BY a.assigned_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project assignments: %w", err)
	}
	defer rows.Close()

	var assignments []ProjectAssignment
	for rows.Next() {
		var a ProjectAssignment
		var assignedBy sql.NullString

		err := rows.Scan(
			&a.UserID,
			&a.ProjectID,
			&a.RoleID,
			&a.RoleName,
			&assignedBy,
			&a.AssignedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project assignment: %w", err)
		}

		if assignedBy.Valid {
			ab := assignedBy.String
			a.AssignedBy = &ab
		}

		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanRole(row rowScanner) (*Role, error) {
	var role Role
	var permissionsJSON string
	var tenantID sql.NullString

	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&tenantID,
		&permissionsJSON,
		&role.IsBuiltIn,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}

	if tenantID.Valid {
		tid := tenantID.String
		role.TenantID = &tid
	}

	return &role, nil
}

func scanRoles(rows *sql.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		var permissionsJSON string
		var tenantID sql.NullString

		err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.DisplayName,
			&role.Description,
			&tenantID,
			&permissionsJSON,
			&role.IsBuiltIn,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}

		if tenantID.Valid {
			tid := tenantID.String
			role.TenantID = &tid
		}

		roles = append(roles, role)
	}

	return roles, rows.Err()
}
