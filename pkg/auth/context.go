package auth

import (
	"context"

	"github.com/fieldline/fieldline/pkg/contextkeys"
)

// IdentityFromContext returns the authenticated identity attached by the
// authentication middleware, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
