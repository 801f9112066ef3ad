// Package rbac resolves permissions for the Fieldline construction platform.
//
// # Overview
//
// Every protected request reduces to one question: may this user perform
// this action, within this tenant, optionally on this project. The answer
// comes from three layers of role grants, consulted in a fixed order:
//
//  1. System layer: platform-level roles (super_admin). Independent of any
//     tenant; platform staff are never members of customer tenants.
//  2. Tenant layer: roles held through membership in the active tenant
//     (org_admin, project_manager, and so on, plus tenant custom roles).
//  3. Project layer: a per-project role assignment, letting a user hold an
//     elevated role on one project without tenant-wide reach.
//
// The first layer that grants the permission wins; later layers are not
// consulted. If no layer grants it, the request is denied.
//
// # Permissions and Roles
//
// Permission codes take the form "module.action":
//
//	projects.read  daily_logs.create  rfis.answer  budgets.update
//
// A role is a named set of codes. Roles may carry the module wildcard
// ("projects.*") or the global wildcard ("*", super_admin only). Six
// built-in roles ship with the platform:
//
//	super_admin      - platform staff, system layer only
//	org_admin        - full access within the tenant
//	project_manager  - projects, budgets, field records
//	site_supervisor  - day-to-day field operations
//	crew_member      - records work on assigned projects
//	viewer           - read-only
//
// Tenants can define custom roles; a custom role shadows a built-in role
// of the same name within that tenant.
//
// # Resolution
//
// The Resolver reads grants from the store on every request. Role claims
// carried in tokens are never trusted; a revoked grant takes effect on the
// next request without waiting for token expiry.
//
//	resolver := rbac.NewResolver(store, logger, metrics)
//	decision := resolver.Resolve(ctx, rbac.Check{
//		UserID:     identity.UserID,
//		TenantID:   tenantID,
//		ProjectID:  &projectID,
//		Permission: rbac.PermissionBudgetsUpdate,
//	})
//
// Resolve never returns an error. A store failure is logged and produces a
// denial with Layer set to LayerError, so a degraded database can only
// under-grant.
//
// Within one request, identical checks are memoized when the middleware
// installed a request cache via WithRequestCache. The cache dies with the
// request context; grant changes are visible on the next request.
//
// # Storage
//
// Four tables back the package: roles (definitions with permissions JSON),
// system_role_grants, tenant_role_grants, and project_assignments. A user
// holds at most one role per project; re-assigning replaces it. Migrations
// live in migrations.go:
//
//	err := rbac.RunMigrations(ctx, db, logger)
//	err = rbac.InitializeBuiltInRoles(ctx, store)
//
// # Related Packages
//
//   - pkg/auth: token issuance and verification
//   - pkg/tenants: tenant membership and active-tenant resolution
//   - pkg/middleware: the access chain that calls the resolver per route
//   - pkg/audit: records every denial the resolver produces
package rbac
