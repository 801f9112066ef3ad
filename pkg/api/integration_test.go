//go:build integration

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/projects"
	"github.com/fieldline/fieldline/pkg/rbac"
	"github.com/fieldline/fieldline/pkg/tenants"
)

// setupPostgresContainer starts a disposable PostgreSQL container and runs
// every migration against it. Skips when no container runtime is around.
func setupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	if _, err := testcontainers.ProviderDocker.GetProvider(); err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("fieldline_test"),
		postgres.WithUsername("fieldline"),
		postgres.WithPassword("fieldline_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())

	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
	require.NoError(t, tenants.RunMigrations(ctx, db, logger))
	require.NoError(t, projects.RunMigrations(ctx, db, logger))
	require.NoError(t, rbac.RunMigrations(ctx, db, logger))
	require.NoError(t, rbac.InitializeBuiltInRoles(ctx, rbac.NewStore(db)))

	return db
}

type integrationFixture struct {
	server  *Server
	tokens  *auth.TokenService
	db      *sql.DB
	tenant  *tenants.Tenant
	admin   *tenants.User
	viewer  *tenants.User
	project *projects.Project
}

func setupIntegration(t *testing.T) *integrationFixture {
	t.Helper()
	ctx := context.Background()

	db := setupPostgresContainer(t)

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	tenantStore := tenants.NewStore(db)
	roleStore := rbac.NewStore(db)
	projectStore := projects.NewStore(db)

	tenant := &tenants.Tenant{Name: "Meridian Builders", Active: true}
	require.NoError(t, tenantStore.CreateTenant(ctx, tenant))

	admin := &tenants.User{Email: "dana@meridian.test", Name: "Dana", Active: true}
	require.NoError(t, tenantStore.CreateUser(ctx, admin))
	require.NoError(t, tenantStore.AddMembership(ctx, &tenants.Membership{
		UserID: admin.ID, TenantID: tenant.ID, IsDefault: true,
	}))

	viewer := &tenants.User{Email: "sam@meridian.test", Name: "Sam", Active: true}
	require.NoError(t, tenantStore.CreateUser(ctx, viewer))
	require.NoError(t, tenantStore.AddMembership(ctx, &tenants.Membership{
		UserID: viewer.ID, TenantID: tenant.ID, IsDefault: true,
	}))

	adminRole, err := roleStore.GetRoleByName(ctx, rbac.RoleOrgAdmin, nil)
	require.NoError(t, err)
	require.NoError(t, roleStore.GrantTenantRole(ctx, &rbac.TenantGrant{
		UserID: admin.ID, TenantID: tenant.ID, RoleID: adminRole.ID, RoleName: adminRole.Name,
	}))

	viewerRole, err := roleStore.GetRoleByName(ctx, rbac.RoleViewer, nil)
	require.NoError(t, err)
	require.NoError(t, roleStore.GrantTenantRole(ctx, &rbac.TenantGrant{
		UserID: viewer.ID, TenantID: tenant.ID, RoleID: viewerRole.ID, RoleName: viewerRole.Name,
	}))

	project := &projects.Project{TenantID: tenant.ID, Name: "Harbor Point Tower"}
	require.NoError(t, projectStore.Create(ctx, project))

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DBEnabled = true

	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	server, err := NewServer(ctx, cfg, db, redisClient, logger, metrics)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, server.Shutdown(context.Background()))
	})

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	require.NoError(t, err)

	return &integrationFixture{
		server:  server,
		tokens:  tokens,
		db:      db,
		tenant:  tenant,
		admin:   admin,
		viewer:  viewer,
		project: project,
	}
}

func (f *integrationFixture) request(t *testing.T, method, path string, user *tenants.User) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if user != nil {
		token, err := f.tokens.Issue(user.ID, user.Email, user.Name)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *integrationFixture) denialCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM access_denials`).Scan(&n))
	return n
}

func TestIntegration_AccessChain(t *testing.T) {
	f := setupIntegration(t)

	t.Run("org admin lists projects", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/projects", f.admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Data []projects.Project `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, f.project.ID, body.Data[0].ID)
	})

	t.Run("viewer cannot delete and the denial is persisted", func(t *testing.T) {
		before := f.denialCount(t)

		rec := f.request(t, http.MethodDelete, "/api/v1/projects/"+f.project.ID, f.viewer)
		require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

		// The write is detached from the response; poll for it.
		require.Eventually(t, func() bool {
			return f.denialCount(t) > before
		}, 5*time.Second, 50*time.Millisecond, "denial never reached the audit table")

		var permission, endpoint string
		require.NoError(t, f.db.QueryRow(
			`SELECT permission, endpoint FROM access_denials ORDER BY id DESC LIMIT 1`,
		).Scan(&permission, &endpoint))
		assert.Equal(t, "projects.delete", permission)
		assert.Equal(t, "/api/v1/projects/"+f.project.ID, endpoint)
	})

	t.Run("org admin is redirected off the platform directory", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/admin/users", f.admin)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "SUPER_ADMIN_REQUIRED")
		assert.Contains(t, rec.Body.String(), "/admin/members")

		rec = f.request(t, http.MethodGet, "/admin/members", f.admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("missing token is rejected without an audit entry", func(t *testing.T) {
		before := f.denialCount(t)

		rec := f.request(t, http.MethodGet, "/api/v1/projects", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, before, f.denialCount(t))
	})

	t.Run("project lookups stay inside the tenant", func(t *testing.T) {
		other := &tenants.Tenant{Name: "Northgate Civil", Active: true}
		require.NoError(t, tenants.NewStore(f.db).CreateTenant(context.Background(), other))

		foreign := &projects.Project{TenantID: other.ID, Name: "Bypass Extension"}
		require.NoError(t, projects.NewStore(f.db).Create(context.Background(), foreign))

		foreignRec := f.request(t, http.MethodGet, "/api/v1/projects/"+foreign.ID, f.admin)
		missingRec := f.request(t, http.MethodGet, "/api/v1/projects/11111111-2222-3333-4444-555555555555", f.admin)

		require.Equal(t, http.StatusNotFound, foreignRec.Code)
		require.Equal(t, http.StatusNotFound, missingRec.Code)
		assert.Equal(t, missingRec.Body.String(), foreignRec.Body.String())
	})
}
