package tenants

import (
	"context"
	"fmt"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/observability"
)

// MembershipStore is the subset of the store the resolver needs
type MembershipStore interface {
	MembershipsFor(ctx context.Context, userID string) ([]Membership, error)
	IsMember(ctx context.Context, userID, tenantID string) (bool, error)
}

// SelectionStore reads a user's session-selected tenant
type SelectionStore interface {
	SelectedTenant(ctx context.Context, userID string) (string, error)
}

// Resolver determines the active tenant for a request. Sources are tried
// in a fixed priority order: a tenant already pinned on the request, the
// session-selected tenant, the user's default membership, and finally the
// legacy single-tenant binding on the user record. Once resolved, the same
// tenant id scopes every query for the rest of the request.
type Resolver struct {
	store    MembershipStore
	sessions SelectionStore
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewResolver creates a tenant context resolver. sessions may be nil when
// no session store is configured; the session step is then skipped.
func NewResolver(store MembershipStore, sessions SelectionStore, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:    store,
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve returns the active tenant for the request. It returns ErrNoTenant
// when the user has no memberships and no legacy binding, and
// ErrAmbiguousTenant when several memberships exist without a selection or
// default. Both are provisioning states, not authorization failures.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) (Resolution, error) {
	res, err := r.resolve(ctx, identity)
	if err != nil {
		return Resolution{}, err
	}
	if r.metrics != nil {
		r.metrics.ObserveTenantResolution(string(res.Source))
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, identity *auth.Identity) (Resolution, error) {
	// 1. A tenant pinned earlier in the pipeline always wins
	if tenantID, ok := contextkeys.TenantID(ctx); ok {
		return Resolution{TenantID: tenantID, Source: SourceRequest}, nil
	}

	// 2. Session-selected tenant, revalidated against current membership
	if r.sessions != nil {
		selected, err := r.sessions.SelectedTenant(ctx, identity.UserID)
		if err != nil {
			// A dead session store must not take tenant resolution down
			// with it; the remaining sources still apply.
			r.logger.ForRequest(ctx).WithError(err).Warn("tenant selection lookup failed, falling back")
		} else if selected != "" {
			member, err := r.store.IsMember(ctx, identity.UserID, selected)
			if err != nil {
				return Resolution{}, fmt.Errorf("failed to validate tenant selection: %w", err)
			}
			if member {
				return Resolution{TenantID: selected, Source: SourceSession}, nil
			}
			// Stale selection, e.g. membership revoked since it was made
			r.logger.ForRequest(ctx).WithFields(map[string]interface{}{
				"user_id":   identity.UserID,
				"tenant_id": selected,
			}).Warn("ignoring stale tenant selection")
		}
	}

	// 3. Membership default
	memberships, err := r.store.MembershipsFor(ctx, identity.UserID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load memberships: %w", err)
	}

	switch {
	case len(memberships) == 1:
		return Resolution{TenantID: memberships[0].TenantID, Source: SourceDefault}, nil
	case len(memberships) > 1:
		for _, m := range memberships {
			if m.IsDefault {
				return Resolution{TenantID: m.TenantID, Source: SourceDefault}, nil
			}
		}
		// Never guess between tenants
		return Resolution{}, ErrAmbiguousTenant
	}

	// 4. Legacy single-tenant binding
	if identity.LegacyTenantID != "" {
		return Resolution{TenantID: identity.LegacyTenantID, Source: SourceLegacy}, nil
	}

	return Resolution{}, ErrNoTenant
}
