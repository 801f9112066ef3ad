package rbac

import (
	"context"
	"strings"
	"sync"

	"github.com/fieldline/fieldline/pkg/contextkeys"
)

// requestCache memoizes decisions for the life of one request. Identical
// checks within a request hit the store once; the cache is dropped with the
// request context, so grants changed mid-request take effect on the next one.
type requestCache struct {
	mu        sync.Mutex
	decisions map[string]Decision
}

// WithRequestCache attaches a fresh decision cache to the context. The
// middleware chain installs one per request.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextkeys.PermissionCacheKey, &requestCache{
		decisions: make(map[string]Decision),
	})
}

func cacheKey(check Check) string {
	projectID := ""
	if check.ProjectID != nil {
		projectID = *check.ProjectID
	}
	return strings.Join([]string{check.UserID, check.TenantID, projectID, check.Permission}, "|")
}

func cachedDecision(ctx context.Context, check Check) (Decision, bool) {
	cache, ok := ctx.Value(contextkeys.PermissionCacheKey).(*requestCache)
	if !ok {
		return Decision{}, false
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	d, ok := cache.decisions[cacheKey(check)]
	return d, ok
}

func storeDecision(ctx context.Context, check Check, decision Decision) {
	cache, ok := ctx.Value(contextkeys.PermissionCacheKey).(*requestCache)
	if !ok {
		return
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.decisions[cacheKey(check)] = decision
}
