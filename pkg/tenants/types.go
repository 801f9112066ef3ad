package tenants

import (
	"errors"
	"time"
)

var (
	// ErrNoTenant indicates the user has no resolvable tenant at all. A
	// valid but unprovisioned user is not an authorization failure.
	ErrNoTenant = errors.New("no tenant resolvable for user")

	// ErrAmbiguousTenant indicates the user belongs to several tenants and
	// neither a selection nor a default exists. Guessing is never allowed.
	ErrAmbiguousTenant = errors.New("multiple tenant memberships without a selection")

	// ErrNotMember indicates the user does not belong to the given tenant
	ErrNotMember = errors.New("user is not a member of tenant")

	// ErrTenantNotFound indicates the tenant does not exist
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrUserNotFound indicates the user does not exist
	ErrUserNotFound = errors.New("user not found")
)

// Tenant is the isolation boundary for one customer organization. Every
// tenant-owned record downstream carries its id.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a platform account. LegacyTenantID is the single-tenant binding
// that predates memberships; it is only consulted as the last resolution
// fallback.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	LegacyTenantID *string   `json:"tenant_id,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Membership ties a user to a tenant. A user may belong to zero, one, or
// many tenants; at most one membership per user is the default.
type Membership struct {
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	TenantName string    `json:"tenant_name,omitempty"`
	IsDefault  bool      `json:"is_default"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Source identifies which resolution step produced the active tenant.
type Source string

const (
	// SourceRequest means an earlier pipeline stage already pinned the tenant
	SourceRequest Source = "request"

	// SourceSession means the user previously selected a tenant
	SourceSession Source = "session"

	// SourceDefault means the user's default membership decided
	SourceDefault Source = "default"

	// SourceLegacy means the user's legacy single-tenant binding decided
	SourceLegacy Source = "legacy"
)

// Resolution is the outcome of resolving the active tenant for a request.
type Resolution struct {
	TenantID string
	Source   Source
}
