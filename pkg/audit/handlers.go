package audit

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/httputil"
)

// Handlers exposes the denial trail for platform administrators. The router
// that mounts these routes gates them behind the super admin check; nothing
// here is reachable with tenant-level roles.
type Handlers struct {
	trail *DBLogger
}

// NewHandlers creates audit query handlers backed by the database trail.
func NewHandlers(trail *DBLogger) *Handlers {
	return &Handlers{trail: trail}
}

// RegisterRoutes registers audit endpoints on the given router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/denials", h.SearchDenials).Methods("GET")
	router.HandleFunc("/denials/export", h.ExportDenials).Methods("GET")
}

func filterFromQuery(w http.ResponseWriter, r *http.Request) (SearchFilter, bool) {
	filter := SearchFilter{
		UserID:     httputil.ParseQueryString(r, "user_id", ""),
		TenantID:   httputil.ParseQueryString(r, "tenant_id", ""),
		Permission: httputil.ParseQueryString(r, "permission", ""),
	}

	var err error
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", 100); err != nil {
		httputil.WriteBadRequest(w, "Invalid limit parameter")
		return filter, false
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		httputil.WriteBadRequest(w, "Invalid offset parameter")
		return filter, false
	}

	if r.URL.Query().Get("since") != "" {
		since, err := httputil.ParseQueryTime(r, "since")
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid since parameter, expected RFC3339")
			return filter, false
		}
		filter.Start = &since
	}
	if r.URL.Query().Get("until") != "" {
		until, err := httputil.ParseQueryTime(r, "until")
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid until parameter, expected RFC3339")
			return filter, false
		}
		filter.End = &until
	}

	return filter, true
}

// SearchDenials returns denial entries matching the query filters.
func (h *Handlers) SearchDenials(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterFromQuery(w, r)
	if !ok {
		return
	}

	entries, err := h.trail.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	httputil.WriteSuccess(w, entries)
}

// ExportDenials streams matching entries in json, csv, or ndjson form.
func (h *Handlers) ExportDenials(w http.ResponseWriter, r *http.Request) {
	filter, ok := filterFromQuery(w, r)
	if !ok {
		return
	}

	format := ExportFormat(httputil.ParseQueryString(r, "format", string(ExportFormatJSON)))
	switch format {
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
	default:
		httputil.WriteBadRequest(w, "Unsupported export format, expected json, csv, or ndjson")
		return
	}

	data, err := h.trail.Export(r.Context(), filter, format)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="denials.csv"`)
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(data)
}
