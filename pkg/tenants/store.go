package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles tenant, user, and membership persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTenant creates a new tenant
func (s *Store) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tenants (id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, tenant.ID, tenant.Name, tenant.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `
		SELECT id, name, active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var tenant Tenant
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Active,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &tenant, nil
}

// ListTenants returns all tenants. Exposed only to platform staff.
func (s *Store) ListTenants(ctx context.Context) ([]Tenant, error) {
	query := `
		SELECT id, name, active, created_at, updated_at
		FROM tenants
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var tenant Tenant
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Active, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, tenant)
	}

	return out, rows.Err()
}

// DeactivateTenant marks a tenant inactive. Tenants are never deleted.
func (s *Store) DeactivateTenant(ctx context.Context, tenantID string) error {
	query := `UPDATE tenants SET active = $1, updated_at = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, false, time.Now().UTC(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, email, name, tenant_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.LegacyTenantID,
		user.Active,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT id, email, name, tenant_id, active, created_at
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, name, tenant_id, active, created_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// DeactivateUser marks a user inactive. Users are never deleted.
func (s *Store) DeactivateUser(ctx context.Context, userID string) error {
	query := `UPDATE users SET active = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, false, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns every user on the platform. This is the super-admin
// directory; tenant admins use ListMembers instead.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, email, name, tenant_id, active, created_at
		FROM users
		ORDER BY email ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return s.collectUsers(rows)
}

// ListMembers returns the users belonging to one tenant. The tenant id
// comes from the resolved request context, never from caller input, which
// is what keeps the member directory inside the tenant boundary.
func (s *Store) ListMembers(ctx context.Context, tenantID string) ([]User, error) {
	query := `
		SELECT u.id, u.email, u.name, u.tenant_id, u.active, u.created_at
		FROM users u
		JOIN tenant_memberships m ON m.user_id = u.id
		WHERE m.tenant_id = $1
		ORDER BY u.email ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	return s.collectUsers(rows)
}

// AddMembership adds a user to a tenant
func (s *Store) AddMembership(ctx context.Context, m *Membership) error {
	if m.IsDefault {
		if err := s.clearDefault(ctx, m.UserID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO tenant_memberships (user_id, tenant_id, is_default, joined_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, m.UserID, m.TenantID, m.IsDefault, now)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}

	m.JoinedAt = now
	return nil
}

// RemoveMembership removes a user from a tenant
func (s *Store) RemoveMembership(ctx context.Context, userID, tenantID string) error {
	query := `DELETE FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, tenantID); err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	return nil
}

// SetDefaultTenant marks one membership as the user's default
func (s *Store) SetDefaultTenant(ctx context.Context, userID, tenantID string) error {
	if err := s.clearDefault(ctx, userID); err != nil {
		return err
	}

	query := `UPDATE tenant_memberships SET is_default = $1 WHERE user_id = $2 AND tenant_id = $3`
	res, err := s.db.ExecContext(ctx, query, true, userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set default tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotMember
	}
	return nil
}

// MembershipsFor returns a user's memberships in active tenants
func (s *Store) MembershipsFor(ctx context.Context, userID string) ([]Membership, error) {
	query := `
		SELECT m.user_id, m.tenant_id, t.name, m.is_default, m.joined_at
		FROM tenant_memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND t.active = $2
		ORDER BY m.joined_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.TenantID, &m.TenantName, &m.IsDefault, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}

	return out, rows.Err()
}

// IsMember reports whether the user belongs to an active tenant
func (s *Store) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM tenant_memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND m.tenant_id = $2 AND t.active = $3
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, tenantID, true).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

func (s *Store) clearDefault(ctx context.Context, userID string) error {
	query := `UPDATE tenant_memberships SET is_default = $1 WHERE user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, false, userID); err != nil {
		return fmt.Errorf("failed to clear default membership: %w", err)
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var user User
	var legacyTenantID sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&legacyTenantID,
		&user.Active,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if legacyTenantID.Valid {
		tid := legacyTenantID.String
		user.LegacyTenantID = &tid
	}

	return &user, nil
}

func (s *Store) collectUsers(rows *sql.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		var user User
		var legacyTenantID sql.NullString

		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&legacyTenantID,
			&user.Active,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		if legacyTenantID.Valid {
			tid := legacyTenantID.String
			user.LegacyTenantID = &tid
		}

		out = append(out, user)
	}

	return out, rows.Err()
}
