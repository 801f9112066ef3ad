package tenants

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
)

// Handlers provides HTTP handlers for tenant membership and selection
type Handlers struct {
	store    *Store
	sessions *SessionStore
}

// NewHandlers creates new tenant handlers. sessions may be nil; tenant
// selection then returns 503.
func NewHandlers(store *Store, sessions *SessionStore) *Handlers {
	return &Handlers{store: store, sessions: sessions}
}

// RegisterRoutes registers the tenant-facing routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.ListMyTenants).Methods("GET")
	router.HandleFunc("/tenants/select", h.SelectTenant).Methods("POST")
}

// RegisterAdminRoutes registers the two member directories. The caller
// mounts /admin/users behind the super-admin gate and /admin/members behind
// the tenant-scoped members.read permission.
func (h *Handlers) RegisterAdminRoutes(platform, tenant *mux.Router) {
	platform.HandleFunc("/users", h.ListAllUsers).Methods("GET")
	tenant.HandleFunc("/members", h.ListMembers).Methods("GET")
}

// ListMyTenants lists the caller's tenant memberships
func (h *Handlers) ListMyTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	memberships, err := h.store.MembershipsFor(ctx, identity.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, memberships)
}

// SelectTenant stores the caller's active-tenant choice in the session.
// The choice must point at a tenant the caller actually belongs to.
func (h *Handlers) SelectTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if h.sessions == nil {
		httputil.WriteServiceUnavailable(w, "tenant selection is not available")
		return
	}

	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		httputil.WriteBadRequest(w, "tenant_id is required")
		return
	}

	member, err := h.store.IsMember(ctx, identity.UserID, req.TenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !member {
		httputil.WriteForbidden(w, "not a member of the requested tenant")
		return
	}

	if err := h.sessions.Select(ctx, identity.UserID, req.TenantID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "tenant selected", map[string]string{"tenant_id": req.TenantID})
}

// ListAllUsers is the platform-wide user directory, for platform staff only.
// The super-admin gate runs before this handler.
func (h *Handlers) ListAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// ListMembers is the tenant member directory. The tenant id comes from the
// resolved context only; query parameters naming other tenants are ignored,
// so a crafted filter can never widen the result past the tenant boundary.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	members, err := h.store.ListMembers(ctx, tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, members)
}
