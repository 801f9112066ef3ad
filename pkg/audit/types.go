package audit

import (
	"net/http"
	"time"
)

// Outcome is the recorded result of an access decision. Only denials are
// written today; the column exists so the trail stays readable if grant
// auditing is ever turned on.
type Outcome string

const (
	OutcomeDenied Outcome = "denied"
)

// Entry is a single immutable audit record. Entries are written once when the
// authorization middleware denies a request and are never updated.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`

	// Actor
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id,omitempty"`

	// What was denied
	Permission string  `json:"permission_required"`
	TenantID   string  `json:"tenant_id,omitempty"`
	ProjectID  *string `json:"project_id,omitempty"`

	// Request context
	Endpoint  string `json:"endpoint"`
	Method    string `json:"method"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SearchFilter narrows audit queries. Zero values mean "any".
type SearchFilter struct {
	UserID     string
	TenantID   string
	Permission string
	Start      *time.Time
	End        *time.Time

	Limit  int
	Offset int
}

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// ClientIP extracts the caller address, honoring the usual proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
