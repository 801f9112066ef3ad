package middleware

import (
	"errors"
	"net/http"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/tenants"
)

// TenantContext is the isolation stage. It pins the active tenant id on the
// request context; every tenant-scoped query downstream keys off that pinned
// id and nothing else. A user without a resolvable tenant gets a 400, which
// is deliberately distinct from the 403 a permission denial produces.
type TenantContext struct {
	source TenantSource
	logger *observability.Logger
}

// NewTenantContext creates the tenant isolation middleware.
func NewTenantContext(source TenantSource, logger *observability.Logger) *TenantContext {
	return &TenantContext{
		source: source,
		logger: logger,
	}
}

// Handler wraps an HTTP handler with tenant resolution.
func (m *TenantContext) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "Authentication required")
			return
		}

		// If an earlier stage already pinned the tenant, the resolver
		// returns it unchanged (request attribute has top priority), so
		// one id serves the whole request.
		resolution, err := m.source.Resolve(r.Context(), identity)
		if err != nil {
			m.reject(w, r, identity, err)
			return
		}

		ctx := contextkeys.WithTenant(r.Context(), resolution.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *TenantContext) reject(w http.ResponseWriter, r *http.Request, identity *auth.Identity, err error) {
	logger := m.logger.ForRequest(r.Context()).WithField("user_id", identity.UserID)

	switch {
	case errors.Is(err, tenants.ErrNoTenant):
		logger.Debug("request from user with no tenant membership")
		httputil.WriteBadRequest(w, "No tenant context could be resolved for this user")
	case errors.Is(err, tenants.ErrAmbiguousTenant):
		logger.Debug("request from multi-tenant user without a selection")
		httputil.WriteBadRequest(w, "Multiple tenants available, select one first")
	default:
		logger.WithError(err).Error("tenant resolution failed")
		httputil.WriteInternalError(w, errors.New("tenant resolution failed"))
	}
}
