package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
)

// Handlers provides HTTP handlers for role and grant management. The routes
// are mounted behind the access middleware, which has already enforced the
// roles.read / roles.manage / members.manage permissions, so handlers only
// validate input and touch the store.
type Handlers struct {
	store *Store
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers all role management routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles/{role_id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{role_id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/roles/{role_id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/members/{user_id}/roles", h.GrantTenantRole).Methods("POST")
	router.HandleFunc("/members/{user_id}/roles/{role_id}", h.RevokeTenantRole).Methods("DELETE")
	router.HandleFunc("/members/{user_id}/roles", h.ListTenantRoles).Methods("GET")

	router.HandleFunc("/projects/{project_id}/assignments", h.AssignProjectRole).Methods("POST")
	router.HandleFunc("/projects/{project_id}/assignments", h.ListProjectAssignments).Methods("GET")
	router.HandleFunc("/projects/{project_id}/assignments/{user_id}", h.UnassignProjectRole).Methods("DELETE")
}

// CreateRole creates a custom role scoped to the active tenant
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	var req struct {
		Name        string   `json:"name"`
		DisplayName string   `json:"display_name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Name == "" || req.DisplayName == "" {
		httputil.WriteBadRequest(w, "name and display_name are required")
		return
	}
	if len(req.Permissions) == 0 {
		httputil.WriteBadRequest(w, "permissions must not be empty")
		return
	}

	role := &Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		TenantID:    &tenantID,
		Permissions: req.Permissions,
	}

	if err := h.store.CreateRole(ctx, role); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// ListRoles lists built-in roles plus the tenant's custom roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tenantID *string
	if tid, ok := contextkeys.TenantID(ctx); ok {
		tenantID = &tid
	}

	roles, err := h.store.ListRoles(ctx, tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, roles)
}

// GetRole retrieves a single role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, ok := httputil.ParsePathUUIDOrError(w, r, "role_id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(ctx, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// UpdateRole updates a custom role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, ok := httputil.ParsePathUUIDOrError(w, r, "role_id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(ctx, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	var req struct {
		DisplayName string   `json:"display_name"`
		Description string   `json:"description"`
		Permissions []string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role.DisplayName = req.DisplayName
	role.Description = req.Description
	role.Permissions = req.Permissions

	err = h.store.UpdateRole(ctx, role)
	if errors.Is(err, ErrBuiltInRole) {
		httputil.WriteForbidden(w, "built-in roles cannot be modified")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, ok := httputil.ParsePathUUIDOrError(w, r, "role_id")
	if !ok {
		return
	}

	err := h.store.DeleteRole(ctx, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if errors.Is(err, ErrBuiltInRole) {
		httputil.WriteForbidden(w, "built-in roles cannot be deleted")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// GrantTenantRole assigns a role to a member of the active tenant
func (h *Handlers) GrantTenantRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		RoleID string `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID == "" {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	role, err := h.store.GetRole(ctx, req.RoleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	// super_admin is platform-only; it can never be granted through a tenant
	if role.Name == RoleSuperAdmin {
		httputil.WriteForbidden(w, "super_admin cannot be granted within a tenant")
		return
	}

	grant := &TenantGrant{
		UserID:   userID,
		TenantID: tenantID,
		RoleID:   role.ID,
		RoleName: role.Name,
	}
	if actor, ok := auth.IdentityFromContext(ctx); ok {
		grant.GrantedBy = &actor.UserID
	}

	if err := h.store.GrantTenantRole(ctx, grant); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, grant)
}

// RevokeTenantRole removes a member's role within the active tenant
func (h *Handlers) RevokeTenantRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathUUIDOrError(w, r, "role_id")
	if !ok {
		return
	}

	if err := h.store.RevokeTenantRole(ctx, userID, tenantID, roleID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListTenantRoles lists the roles a member holds in the active tenant
func (h *Handlers) ListTenantRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	roles, err := h.store.TenantRolesFor(ctx, userID, tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, roles)
}

// AssignProjectRole gives a user a role on one project
func (h *Handlers) AssignProjectRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		RoleID string `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" || req.RoleID == "" {
		httputil.WriteBadRequest(w, "user_id and role_id are required")
		return
	}

	role, err := h.store.GetRole(ctx, req.RoleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if role.Name == RoleSuperAdmin {
		httputil.WriteForbidden(w, "super_admin cannot be assigned to a project")
		return
	}

	assignment := &ProjectAssignment{
		UserID:    req.UserID,
		ProjectID: projectID,
		RoleID:    role.ID,
		RoleName:  role.Name,
	}
	if actor, ok := auth.IdentityFromContext(ctx); ok {
		assignment.AssignedBy = &actor.UserID
	}

	if err := h.store.AssignProjectRole(ctx, assignment); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, assignment)
}

// ListProjectAssignments lists all role assignments on a project
func (h *Handlers) ListProjectAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	assignments, err := h.store.ListProjectAssignments(ctx, projectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, assignments)
}

// UnassignProjectRole removes a user's assignment from a project
func (h *Handlers) UnassignProjectRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.UnassignProjectRole(ctx, userID, projectID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
