package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldline/fieldline/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
					permissions JSONB NOT NULL DEFAULT '[]',
					is_built_in BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(name, tenant_id)
				);

				CREATE INDEX idx_roles_tenant_id ON roles(tenant_id);
				CREATE INDEX idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     2,
			Description: "Create system_role_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS system_role_grants (
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_by UUID REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, role_id)
				);

				CREATE INDEX idx_system_role_grants_user_id ON system_role_grants(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create tenant_role_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_role_grants (
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_by UUID REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, tenant_id, role_id)
				);

				CREATE INDEX idx_tenant_role_grants_user_id ON tenant_role_grants(user_id, tenant_id);
				CREATE INDEX idx_tenant_role_grants_tenant_id ON tenant_role_grants(tenant_id);
			`,
		},
		{
			Version:     4,
			Description: "Create project_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_assignments (
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					assigned_by UUID REFERENCES users(id) ON DELETE SET NULL,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, project_id)
				);

				CREATE INDEX idx_project_assignments_project_id ON project_assignments(project_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// InitializeBuiltInRoles creates the built-in roles if they don't exist
func InitializeBuiltInRoles(ctx context.Context, store *Store) error {
	for _, role := range BuiltInRoles() {
		existing, err := store.GetRoleByName(ctx, role.Name, nil)
		if err != nil && !errors.Is(err, ErrRoleNotFound) {
			return fmt.Errorf("failed to look up built-in role %s: %w", role.Name, err)
		}
		if existing != nil {
			continue
		}

		if err := store.CreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to create built-in role %s: %w", role.Name, err)
		}
	}

	return nil
}
