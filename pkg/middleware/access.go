package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/audit"
	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/rbac"
	"github.com/fieldline/fieldline/pkg/tenants"
)

// CodeSuperAdminRequired is returned when a tenant admin hits a platform
// route. The response carries a suggestion pointing at the tenant-scoped
// equivalent.
const CodeSuperAdminRequired = "SUPER_ADMIN_REQUIRED"

// defaultAdminPermission is recorded for super-admin-only routes that do not
// bind a finer permission code.
const defaultAdminPermission = "admin.access"

// TenantSource resolves the active tenant for an identity. Satisfied by
// tenants.Resolver.
type TenantSource interface {
	Resolve(ctx context.Context, identity *auth.Identity) (tenants.Resolution, error)
}

// Access is the authorization stage. It asks the permission resolver whether
// the route's bound permission is granted and records every denial in the
// audit trail before answering 403.
type Access struct {
	resolver     *rbac.Resolver
	tenantSource TenantSource
	trail        audit.Logger
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewAccess creates the authorization middleware. A nil trail disables
// auditing.
func NewAccess(resolver *rbac.Resolver, tenantSource TenantSource, trail audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Access {
	if trail == nil {
		trail = audit.NopLogger{}
	}
	return &Access{
		resolver:     resolver,
		tenantSource: tenantSource,
		trail:        trail,
		logger:       logger,
		metrics:      metrics,
	}
}

// Require enforces the given policy around a handler.
func (m *Access) Require(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				// The chain always authenticates first; reaching this
				// stage without an identity is a wiring mistake.
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			if policy.SuperAdminOnly {
				m.requireSuperAdmin(w, r, identity, policy, next)
				return
			}

			ctx := r.Context()

			var projectID *string
			if policy.ProjectParam != "" {
				value, present := mux.Vars(r)[policy.ProjectParam]
				if !present || value == "" {
					httputil.WriteBadRequest(w, "Missing required route parameter: "+policy.ProjectParam)
					return
				}
				projectID = &value
			}

			// Resolve the tenant once and pin it so the isolation stage
			// and every downstream query see the same id. Resolution
			// failures are not fatal here: the permission may be granted
			// at the system layer, and the tenant stage reports its own
			// 400 for routes that need tenant context.
			tenantID := ""
			if resolution, err := m.tenantSource.Resolve(ctx, identity); err == nil {
				tenantID = resolution.TenantID
				ctx = contextkeys.WithTenant(ctx, tenantID)
			}

			decision := m.resolver.Resolve(ctx, rbac.Check{
				UserID:     identity.UserID,
				TenantID:   tenantID,
				ProjectID:  projectID,
				Permission: policy.Permission,
			})
			if !decision.Allowed {
				m.deny(r, identity, policy.Permission, tenantID, projectID)
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}

			ctx = contextkeys.WithRequiredPermission(ctx, policy.Permission)
			if projectID != nil {
				ctx = contextkeys.WithProject(ctx, *projectID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Access) requireSuperAdmin(w http.ResponseWriter, r *http.Request, identity *auth.Identity, policy Policy, next http.Handler) {
	permission := policy.Permission
	if permission == "" {
		permission = defaultAdminPermission
	}

	if !m.resolver.IsSuperAdmin(r.Context(), identity.UserID) {
		m.deny(r, identity, permission, "", nil)
		if policy.TenantRedirect != "" {
			httputil.WriteErrorWithSuggestion(w, http.StatusForbidden,
				"This endpoint requires super admin privileges",
				CodeSuperAdminRequired,
				httputil.Suggestion{
					RedirectTo: policy.TenantRedirect,
					Reason:     "Tenant administrators should use the tenant-scoped endpoint",
				})
			return
		}
		httputil.WriteErrorCode(w, http.StatusForbidden,
			"This endpoint requires super admin privileges", CodeSuperAdminRequired)
		return
	}

	ctx := contextkeys.WithRequiredPermission(r.Context(), permission)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// deny records the denial. The write is fire-and-forget: the request is
// already denied and a sink failure must not change that, so errors are
// logged at warning level and dropped.
func (m *Access) deny(r *http.Request, identity *auth.Identity, permission, tenantID string, projectID *string) {
	if m.metrics != nil {
		m.metrics.ObserveDenial(permission)
	}

	entry := &audit.Entry{
		Timestamp:  time.Now().UTC(),
		Outcome:    audit.OutcomeDenied,
		UserID:     identity.UserID,
		TokenID:    identity.TokenID,
		Permission: permission,
		TenantID:   tenantID,
		ProjectID:  projectID,
		Endpoint:   r.URL.Path,
		Method:     r.Method,
		IPAddress:  audit.ClientIP(r),
		UserAgent:  r.UserAgent(),
		RequestID:  contextkeys.RequestID(r.Context()),
	}

	logger := m.logger.ForRequest(r.Context())
	go func() {
		// Detached from the request context: the response is written
		// before this insert completes.
		if err := m.trail.Record(context.Background(), entry); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"user_id":    entry.UserID,
				"permission": entry.Permission,
			}).Warn("failed to record denial in audit trail")
		}
	}()
}
