package projects

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
)

// Handlers provides HTTP handlers for project CRUD. Routes run behind the
// access chain, so the tenant context is already resolved and the required
// permission already checked.
type Handlers struct {
	store *Store
}

// NewHandlers creates new project handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers the project routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects", h.Create).Methods("POST")
	router.HandleFunc("/projects", h.List).Methods("GET")
	router.HandleFunc("/projects/{project_id}", h.Get).Methods("GET")
	router.HandleFunc("/projects/{project_id}", h.Update).Methods("PUT")
	router.HandleFunc("/projects/{project_id}", h.Delete).Methods("DELETE")
}

type projectRequest struct {
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Create creates a project under the active tenant
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	var req projectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	project := &Project{
		TenantID:  tenantID,
		Name:      req.Name,
		Address:   req.Address,
		Status:    req.Status,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}

	if err := h.store.Create(ctx, project); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, project)
}

// List lists the active tenant's projects
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}

	out, err := h.store.List(ctx, tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, out)
}

// Get retrieves one project in the active tenant
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}
	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	project, err := h.store.Get(ctx, tenantID, projectID)
	if errors.Is(err, ErrProjectNotFound) {
		httputil.WriteNotFound(w, "project not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, project)
}

// Update updates one project in the active tenant
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}
	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	project, err := h.store.Get(ctx, tenantID, projectID)
	if errors.Is(err, ErrProjectNotFound) {
		httputil.WriteNotFound(w, "project not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	var req projectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	project.Name = req.Name
	project.Address = req.Address
	if req.Status != "" {
		project.Status = req.Status
	}
	project.StartDate = req.StartDate
	project.EndDate = req.EndDate

	if err := h.store.Update(ctx, project); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, project)
}

// Delete removes one project in the active tenant
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := contextkeys.TenantID(ctx)
	if !ok {
		httputil.WriteBadRequest(w, "tenant context required")
		return
	}
	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "project_id")
	if !ok {
		return
	}

	err := h.store.Delete(ctx, tenantID, projectID)
	if errors.Is(err, ErrProjectNotFound) {
		httputil.WriteNotFound(w, "project not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
