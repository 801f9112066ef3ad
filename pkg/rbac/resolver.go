package rbac

import (
	"context"
	"time"

	"github.com/fieldline/fieldline/pkg/observability"
)

// Repository is the subset of the store the resolver needs. Tests substitute
// failing implementations to exercise the fail-closed path.
type Repository interface {
	SystemRolesFor(ctx context.Context, userID string) ([]Role, error)
	TenantRolesFor(ctx context.Context, userID, tenantID string) ([]Role, error)
	ProjectRoleFor(ctx context.Context, userID, projectID string) (*Role, error)
}

// Check describes one permission question: may this user perform this
// action, in this tenant, optionally on this project.
type Check struct {
	UserID     string
	TenantID   string
	ProjectID  *string
	Permission string
}

// Resolver answers permission checks by walking the three grant layers in
// order: system, then tenant, then project. The first layer that grants the
// permission wins and later layers are not consulted. Role grants are always
// read from the store, never from token claims.
type Resolver struct {
	repo    Repository
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a permission resolver
func NewResolver(repo Repository, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve evaluates a permission check. It never returns an error: a store
// failure is logged and produces a denial, so a degraded database can only
// under-grant, not over-grant.
func (r *Resolver) Resolve(ctx context.Context, check Check) Decision {
	if cached, ok := cachedDecision(ctx, check); ok {
		return cached
	}

	start := time.Now()
	decision := r.resolve(ctx, check)
	decision.CheckedAt = time.Now().UTC()

	if r.metrics != nil {
		r.metrics.ObservePermissionCheck(string(decision.Layer), decision.Allowed, time.Since(start))
	}

	storeDecision(ctx, check, decision)
	return decision
}

// HasPermission is a convenience wrapper over Resolve
func (r *Resolver) HasPermission(ctx context.Context, check Check) bool {
	return r.Resolve(ctx, check).Allowed
}

// IsSuperAdmin reports whether the user holds the super_admin role at the
// system layer. Store errors deny.
func (r *Resolver) IsSuperAdmin(ctx context.Context, userID string) bool {
	roles, err := r.repo.SystemRolesFor(ctx, userID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).
			Error("system role lookup failed, denying")
		return false
	}
	for _, role := range roles {
		if role.Name == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// HasProjectAccess reports whether the user can see the project at all,
// which is a coarser question than any single permission: a system role, a
// role in the owning tenant, or a direct project assignment all qualify.
// Store errors deny.
func (r *Resolver) HasProjectAccess(ctx context.Context, userID, tenantID, projectID string) bool {
	systemRoles, err := r.repo.SystemRolesFor(ctx, userID)
	if err != nil {
		r.logger.ForRequest(ctx).WithError(err).WithField("user_id", userID).
			Error("system role lookup failed, denying project access")
		return false
	}
	if len(systemRoles) > 0 {
		return true
	}

	if tenantID != "" {
		tenantRoles, err := r.repo.TenantRolesFor(ctx, userID, tenantID)
		if err != nil {
			r.logger.ForRequest(ctx).WithError(err).WithField("user_id", userID).
				Error("tenant role lookup failed, denying project access")
			return false
		}
		if len(tenantRoles) > 0 {
			return true
		}
	}

	projectRole, err := r.repo.ProjectRoleFor(ctx, userID, projectID)
	if err != nil {
		r.logger.ForRequest(ctx).WithError(err).WithField("user_id", userID).
			Error("project role lookup failed, denying project access")
		return false
	}
	return projectRole != nil
}

func (r *Resolver) resolve(ctx context.Context, check Check) Decision {
	// Layer 1: system roles apply everywhere, regardless of tenant
	systemRoles, err := r.repo.SystemRolesFor(ctx, check.UserID)
	if err != nil {
		return r.denyOnError(ctx, check, "system", err)
	}
	for _, role := range systemRoles {
		if role.Grants(check.Permission) {
			return Decision{Allowed: true, Layer: LayerSystem, Role: role.Name}
		}
	}

	// Layer 2: roles held through membership in the active tenant
	if check.TenantID != "" {
		tenantRoles, err := r.repo.TenantRolesFor(ctx, check.UserID, check.TenantID)
		if err != nil {
			return r.denyOnError(ctx, check, "tenant", err)
		}
		for _, role := range tenantRoles {
			if role.Grants(check.Permission) {
				return Decision{Allowed: true, Layer: LayerTenant, Role: role.Name}
			}
		}
	}

	// Layer 3: per-project assignment
	if check.ProjectID != nil {
		projectRole, err := r.repo.ProjectRoleFor(ctx, check.UserID, *check.ProjectID)
		if err != nil {
			return r.denyOnError(ctx, check, "project", err)
		}
		if projectRole != nil && projectRole.Grants(check.Permission) {
			return Decision{Allowed: true, Layer: LayerProject, Role: projectRole.Name}
		}
	}

	return Decision{Allowed: false, Layer: LayerNone}
}

func (r *Resolver) denyOnError(ctx context.Context, check Check, layer string, err error) Decision {
	r.logger.ForRequest(ctx).WithError(err).WithFields(map[string]interface{}{
		"user_id":    check.UserID,
		"permission": check.Permission,
		"layer":      layer,
	}).Error("permission lookup failed, denying")
	return Decision{Allowed: false, Layer: LayerError}
}
