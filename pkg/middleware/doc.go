// Package middleware implements the per-request access chain.
//
// # Overview
//
// Every protected route runs four stages in strict order, each of which may
// short-circuit with an error response:
//
//  1. Authenticate: bearer token to identity, 401 on failure. No audit
//     entry is written for authentication failures.
//  2. Authorize: the route's bound permission through the three-layer
//     resolver, 403 on denial, denial recorded in the audit trail.
//  3. Tenant isolation: pin the active tenant, 400 when no tenant is
//     resolvable, distinct from the 403 above.
//  4. Project context (routes with a project parameter): validate the id
//     against the active tenant, 404 for both a missing project and another
//     tenant's project.
//
// # Route Policies
//
// Routes are bound to permissions through an explicit table loaded from the
// policy file, not through annotations:
//
//	routes:
//	  - name: tasks.create
//	    permission: tasks.create
//	    project_param: projectID
//	  - name: admin.users
//	    super_admin_only: true
//	    tenant_redirect: /admin/members
//
// Chain.Protect("tasks.create") then wraps the handler with the full chain.
// The table hot-reloads through fsnotify; a broken edit keeps the previous
// table.
//
// # Rate Limiting
//
// RateLimitMiddleware keeps in-memory token buckets per user or client IP.
// DistributedRateLimitMiddleware shares fixed windows through Redis and
// fails open when Redis is unreachable.
//
// # Related Packages
//
//   - pkg/auth: token verification
//   - pkg/rbac: permission resolution
//   - pkg/tenants: active tenant resolution
//   - pkg/audit: denial trail
package middleware
