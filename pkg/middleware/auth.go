package middleware

import (
	"errors"
	"net/http"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/rbac"
)

// Authenticator turns a bearer credential into an identity on the request
// context. It is the first stage of the access chain; nothing downstream runs
// for a request that fails here, and authentication failures are never
// written to the audit trail.
type Authenticator struct {
	tokens  *auth.TokenService
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(tokens *auth.TokenService, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		tokens:  tokens,
		logger:  logger,
		metrics: metrics,
	}
}

// Handler wraps an HTTP handler with bearer token authentication.
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearer(r)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		identity, err := m.tokens.Verify(token)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		if m.metrics != nil {
			m.metrics.ObserveAuthAttempt("ok")
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		// One permission memo per request. Every check downstream of this
		// point shares it, and it dies with the request context.
		ctx = rbac.WithRequestCache(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	var outcome, message string
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		outcome, message = "missing", "Authentication required"
	case errors.Is(err, auth.ErrTokenExpired):
		outcome, message = "expired", "Token expired"
	default:
		outcome, message = "invalid", "Invalid authentication token"
	}

	if m.metrics != nil {
		m.metrics.ObserveAuthAttempt(outcome)
	}
	m.logger.ForRequest(r.Context()).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"reason": outcome,
	}).Debug("authentication rejected")

	httputil.WriteUnauthorized(w, message)
}
