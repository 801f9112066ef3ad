// Package tenants manages tenant records, user accounts, memberships, and
// active-tenant resolution.
//
// A tenant is the isolation boundary: every tenant-owned record downstream
// carries a tenant id, and no query crosses the boundary except platform
// staff operations explicitly marked all-tenants.
//
// The Resolver picks the active tenant for a request from four sources in
// strict priority order:
//
//  1. a tenant already pinned on the request context by an earlier stage
//  2. the session-selected tenant (Redis), revalidated against membership
//  3. the user's default membership (a sole membership counts as default)
//  4. the legacy single-tenant binding on the user record
//
// Zero resolvable tenants yields ErrNoTenant and several memberships
// without a selection yield ErrAmbiguousTenant; the middleware surfaces
// both as 400, distinct from an authorization failure. Once resolved the
// tenant id is pinned for the rest of the request.
//
// Two member directories exist: ListUsers is the platform-wide directory
// for platform staff, and ListMembers is the tenant-scoped directory whose
// tenant id comes only from the resolved context, never from caller input.
package tenants
