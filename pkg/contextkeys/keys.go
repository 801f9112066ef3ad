// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: all protected endpoints, the access middleware
	IdentityKey Key = "auth_user"

	// RequiredPermissionKey contains the permission code string that was
	// checked for the current route.
	// Set by: middleware.Access after a successful authorization
	RequiredPermissionKey Key = "required_permission"

	// TenantKey contains the active tenant id string
	// Set by: middleware.TenantContext (pkg/middleware/tenant.go)
	// Required by: every tenant-scoped query downstream
	TenantKey Key = "tenant_context"

	// ProjectKey contains the validated project id string
	// Set by: middleware.ProjectContext for routes that declare a
	// project route parameter
	ProjectKey Key = "project_context"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestID middleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// PermissionCacheKey contains the request-scoped permission memo.
	// Set by: rbac.WithRequestCache. Never shared across requests.
	PermissionCacheKey Key = "permission_cache"
)

// WithIdentity attaches the authenticated identity to the context.
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequiredPermission records the permission code checked for this request.
func WithRequiredPermission(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, RequiredPermissionKey, code)
}

// RequiredPermission returns the permission code checked for this request.
func RequiredPermission(ctx context.Context) string {
	if code, ok := ctx.Value(RequiredPermissionKey).(string); ok {
		return code
	}
	return ""
}

// WithTenant pins the active tenant id for the remainder of the request.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantKey, tenantID)
}

// TenantID returns the active tenant id pinned for this request, if any.
func TenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(TenantKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithProject attaches the validated project id to the context.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ProjectKey, projectID)
}

// ProjectID returns the validated project id for this request, if any.
func ProjectID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ProjectKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
