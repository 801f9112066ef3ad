package rbac

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fieldline/fieldline/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func setupResolver(t *testing.T) (*Store, *Resolver, map[string]*Role) {
	t.Helper()
	db := setupTestDB(t)
	store := NewStore(db)
	builtIns := seedBuiltIns(t, store)
	resolver := NewResolver(store, testLogger(), nil)
	return store, resolver, builtIns
}

func TestResolver_SystemLayer(t *testing.T) {
	store, resolver, builtIns := setupResolver(t)
	ctx := context.Background()

	userID := "33333333-3333-3333-3333-333333333333"
	if err := store.GrantSystemRole(ctx, &SystemGrant{
		UserID: userID, RoleID: builtIns[RoleSuperAdmin].ID,
	}); err != nil {
		t.Fatalf("GrantSystemRole failed: %v", err)
	}

	// A system grant applies in any tenant, with no membership required
	decision := resolver.Resolve(ctx, Check{
		UserID:     userID,
		TenantID:   "11111111-1111-1111-1111-111111111111",
		Permission: PermissionProjectsDelete,
	})
	if !decision.Allowed {
		t.Fatal("Expected super_admin to be allowed")
	}
	if decision.Layer != LayerSystem {
		t.Errorf("Expected system layer, got %s", decision.Layer)
	}
	if decision.Role != RoleSuperAdmin {
		t.Errorf("Expected role super_admin, got %s", decision.Role)
	}
}

func TestResolver_TenantLayer(t *testing.T) {
	store, resolver, builtIns := setupResolver(t)
	ctx := context.Background()

	userID := "33333333-3333-3333-3333-333333333333"
	tenantA := "11111111-1111-1111-1111-111111111111"
	tenantB := "22222222-2222-2222-2222-222222222222"

	if err := store.GrantTenantRole(ctx, &TenantGrant{
		UserID: userID, TenantID: tenantA, RoleID: builtIns[RoleCrewMember].ID,
	}); err != nil {
		t.Fatalf("GrantTenantRole failed: %v", err)
	}

	decision := resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantA, Permission: PermissionDailyLogsCreate,
	})
	if !decision.Allowed || decision.Layer != LayerTenant {
		t.Errorf("Expected tenant-layer grant, got %+v", decision)
	}

	// crew_member does not carry projects.delete
	decision = resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantA, Permission: PermissionProjectsDelete,
	})
	if decision.Allowed {
		t.Error("Expected denial for projects.delete")
	}
	if decision.Layer != LayerNone {
		t.Errorf("Expected layer none, got %s", decision.Layer)
	}

	// The same user has no roles in tenant B
	decision = resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantB, Permission: PermissionDailyLogsCreate,
	})
	if decision.Allowed {
		t.Error("Expected denial in a tenant where the user holds no roles")
	}
}

func TestResolver_ProjectLayer(t *testing.T) {
	store, resolver, builtIns := setupResolver(t)
	ctx := context.Background()

	userID := "33333333-3333-3333-3333-333333333333"
	tenantID := "11111111-1111-1111-1111-111111111111"
	projectID := "44444444-4444-4444-4444-444444444444"

	// Viewer at the tenant level, project_manager on one project
	if err := store.GrantTenantRole(ctx, &TenantGrant{
		UserID: userID, TenantID: tenantID, RoleID: builtIns[RoleViewer].ID,
	}); err != nil {
		t.Fatalf("GrantTenantRole failed: %v", err)
	}
	if err := store.AssignProjectRole(ctx, &ProjectAssignment{
		UserID: userID, ProjectID: projectID, RoleID: builtIns[RoleProjectManager].ID,
	}); err != nil {
		t.Fatalf("AssignProjectRole failed: %v", err)
	}

	// Within the assigned project the elevated role applies
	decision := resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantID, ProjectID: &projectID,
		Permission: PermissionBudgetsUpdate,
	})
	if !decision.Allowed {
		t.Fatal("Expected project assignment to grant budgets.update")
	}
	if decision.Layer != LayerProject {
		t.Errorf("Expected project layer, got %s", decision.Layer)
	}

	// Without a project in scope the viewer role alone decides
	decision = resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantID, Permission: PermissionBudgetsUpdate,
	})
	if decision.Allowed {
		t.Error("Expected denial outside the assigned project")
	}

	// The assignment does not carry to other projects
	otherProject := "55555555-5555-5555-5555-555555555555"
	decision = resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantID, ProjectID: &otherProject,
		Permission: PermissionBudgetsUpdate,
	})
	if decision.Allowed {
		t.Error("Expected denial on a project without an assignment")
	}
}

func TestResolver_FirstGrantWins(t *testing.T) {
	store, resolver, builtIns := setupResolver(t)
	ctx := context.Background()

	userID := "33333333-3333-3333-3333-333333333333"
	tenantID := "11111111-1111-1111-1111-111111111111"
	projectID := "44444444-4444-4444-4444-444444444444"

	// org_admin at the tenant layer and a weaker role on the project
	if err := store.GrantTenantRole(ctx, &TenantGrant{
		UserID: userID, TenantID: tenantID, RoleID: builtIns[RoleOrgAdmin].ID,
	}); err != nil {
		t.Fatalf("GrantTenantRole failed: %v", err)
	}
	if err := store.AssignProjectRole(ctx, &ProjectAssignment{
		UserID: userID, ProjectID: projectID, RoleID: builtIns[RoleViewer].ID,
	}); err != nil {
		t.Fatalf("AssignProjectRole failed: %v", err)
	}

	decision := resolver.Resolve(ctx, Check{
		UserID: userID, TenantID: tenantID, ProjectID: &projectID,
		Permission: PermissionBudgetsUpdate,
	})
	if !decision.Allowed {
		t.Fatal("Expected tenant-layer grant to allow")
	}
	if decision.Layer != LayerTenant {
		t.Errorf("Expected the tenant layer to win before the project layer, got %s", decision.Layer)
	}
}

type failingRepo struct {
	err error
}

func (f failingRepo) SystemRolesFor(ctx context.Context, userID string) ([]Role, error) {
	return nil, f.err
}

func (f failingRepo) TenantRolesFor(ctx context.Context, userID, tenantID string) ([]Role, error) {
	return nil, f.err
}

func (f failingRepo) ProjectRoleFor(ctx context.Context, userID, projectID string) (*Role, error) {
	return nil, f.err
}

func TestResolver_FailsClosedOnStoreError(t *testing.T) {
	resolver := NewResolver(failingRepo{err: errors.New("connection refused")}, testLogger(), nil)

	decision := resolver.Resolve(context.Background(), Check{
		UserID:     "33333333-3333-3333-3333-333333333333",
		TenantID:   "11111111-1111-1111-1111-111111111111",
		Permission: PermissionProjectsRead,
	})
	if decision.Allowed {
		t.Fatal("A store error must never grant access")
	}
	if decision.Layer != LayerError {
		t.Errorf("Expected error layer, got %s", decision.Layer)
	}

	if resolver.IsSuperAdmin(context.Background(), "33333333-3333-3333-3333-333333333333") {
		t.Error("IsSuperAdmin must deny on store error")
	}
}

type countingRepo struct {
	Repository
	calls int
}

func (c *countingRepo) SystemRolesFor(ctx context.Context, userID string) ([]Role, error) {
	c.calls++
	return c.Repository.SystemRolesFor(ctx, userID)
}

func TestResolver_RequestCacheMemoizes(t *testing.T) {
	store, _, builtIns := setupResolver(t)
	ctx := context.Background()

	userID := "33333333-3333-3333-3333-333333333333"
	tenantID := "11111111-1111-1111-1111-111111111111"
	if err := store.GrantTenantRole(ctx, &TenantGrant{
		UserID: userID, TenantID: tenantID, RoleID: builtIns[RoleViewer].ID,
	}); err != nil {
		t.Fatalf("GrantTenantRole failed: %v", err)
	}

	counting := &countingRepo{Repository: store}
	resolver := NewResolver(counting, testLogger(), nil)
	check := Check{UserID: userID, TenantID: tenantID, Permission: PermissionProjectsRead}

	reqCtx := WithRequestCache(ctx)
	first := resolver.Resolve(reqCtx, check)
	second := resolver.Resolve(reqCtx, check)

	if !first.Allowed || !second.Allowed {
		t.Fatal("Expected viewer to read projects")
	}
	if counting.calls != 1 {
		t.Errorf("Expected one store hit for repeated checks in a request, got %d", counting.calls)
	}

	// A new request context means a fresh lookup
	resolver.Resolve(WithRequestCache(ctx), check)
	if counting.calls != 2 {
		t.Errorf("Expected the cache to die with the request, got %d store hits", counting.calls)
	}

	// Without a request cache every check hits the store
	resolver.Resolve(ctx, check)
	resolver.Resolve(ctx, check)
	if counting.calls != 4 {
		t.Errorf("Expected uncached checks to hit the store each time, got %d", counting.calls)
	}
}

func TestResolver_DistinctChecksNotConflated(t *testing.T) {
	store, resolver, builtIns := setupResolver(t)
	ctx := context.Background()

	userID := "33333333-3333-3333-3333-333333333333"
	tenantID := "11111111-1111-1111-1111-111111111111"
	if err := store.GrantTenantRole(ctx, &TenantGrant{
		UserID: userID, TenantID: tenantID, RoleID: builtIns[RoleViewer].ID,
	}); err != nil {
		t.Fatalf("GrantTenantRole failed: %v", err)
	}

	reqCtx := WithRequestCache(ctx)
	read := resolver.Resolve(reqCtx, Check{
		UserID: userID, TenantID: tenantID, Permission: PermissionProjectsRead,
	})
	del := resolver.Resolve(reqCtx, Check{
		UserID: userID, TenantID: tenantID, Permission: PermissionProjectsDelete,
	})

	if !read.Allowed {
		t.Error("Expected projects.read to be allowed")
	}
	if del.Allowed {
		t.Error("Expected projects.delete to be denied")
	}
}

func TestRole_Grants(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		code        string
		want        bool
	}{
		{"exact match", []string{PermissionProjectsRead}, PermissionProjectsRead, true},
		{"no match", []string{PermissionProjectsRead}, PermissionProjectsDelete, false},
		{"module wildcard", []string{"projects.*"}, PermissionProjectsDelete, true},
		{"module wildcard other module", []string{"projects.*"}, PermissionBudgetsRead, false},
		{"global wildcard", []string{PermissionAll}, PermissionTenantsManage, true},
		{"empty permissions", nil, PermissionProjectsRead, false},
		{"wildcard needs module boundary", []string{"projects.*"}, "projectsextra.read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := &Role{Permissions: tt.permissions}
			if got := role.Grants(tt.code); got != tt.want {
				t.Errorf("Grants(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
