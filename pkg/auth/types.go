package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by token extraction and verification. Middleware
// maps all of them to 401 without disclosing which check failed beyond the
// broad category.
var (
	// ErrMissingToken indicates no credentials were presented
	ErrMissingToken = errors.New("authentication token missing")

	// ErrTokenExpired indicates the token's expiry has passed
	ErrTokenExpired = errors.New("authentication token expired")

	// ErrTokenInvalid indicates a malformed token, a bad signature, or
	// claims that fail validation
	ErrTokenInvalid = errors.New("authentication token invalid")
)

// Identity is the authenticated caller extracted from a verified token.
//
// It carries only what the token itself attests to. Roles are never taken
// from token claims; the permission resolver re-fetches them from the store
// on every request so revocations take effect immediately.
type Identity struct {
	// UserID is the token subject (a user UUID)
	UserID string `json:"user_id"`

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// LegacyTenantID is the single-tenant era claim. Tenant resolution
	// consults it last, after request attribute, session selection, and
	// default membership.
	LegacyTenantID string `json:"legacy_tenant_id,omitempty"`

	// TokenID is the jti claim, recorded in audit entries
	TokenID string `json:"-"`

	// IssuedAt is when the token was minted
	IssuedAt time.Time `json:"-"`
}

// Claims is the JWT claim set carried by access tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// TenantID is the legacy single-tenant claim, kept for tokens minted
	// before memberships existed
	TenantID string `json:"tenant_id,omitempty"`

	jwt.RegisteredClaims
}
