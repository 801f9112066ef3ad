package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/contextkeys"
	"github.com/fieldline/fieldline/pkg/httputil"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/projects"
	"github.com/fieldline/fieldline/pkg/rbac"
)

// ProjectReader is the single lookup the project stage needs. Satisfied by
// projects.Store; the read is always keyed by tenant, so a project in
// another tenant is indistinguishable from one that does not exist.
type ProjectReader interface {
	Get(ctx context.Context, tenantID, projectID string) (*projects.Project, error)
}

// ProjectContext validates the project named by a route parameter against
// the active tenant and checks the caller can see it at all. Both a missing
// project and a foreign tenant's project produce the same 404.
type ProjectContext struct {
	store    ProjectReader
	resolver *rbac.Resolver
	logger   *observability.Logger
}

// NewProjectContext creates the project validation middleware.
func NewProjectContext(store ProjectReader, resolver *rbac.Resolver, logger *observability.Logger) *ProjectContext {
	return &ProjectContext{
		store:    store,
		resolver: resolver,
		logger:   logger,
	}
}

// Handler validates the project id held by the named route parameter.
func (m *ProjectContext) Handler(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			tenantID, ok := contextkeys.TenantID(r.Context())
			if !ok {
				httputil.WriteBadRequest(w, "No tenant context could be resolved for this user")
				return
			}

			projectID, present := mux.Vars(r)[param]
			if !present || projectID == "" {
				httputil.WriteBadRequest(w, "Missing required route parameter: "+param)
				return
			}

			project, err := m.store.Get(r.Context(), tenantID, projectID)
			if err != nil {
				if !errors.Is(err, projects.ErrProjectNotFound) {
					m.logger.ForRequest(r.Context()).WithError(err).
						Error("project lookup failed")
				}
				httputil.WriteNotFound(w, "Project not found")
				return
			}

			if !m.resolver.HasProjectAccess(r.Context(), identity.UserID, tenantID, project.ID) {
				// Same body as the not-found case so a caller cannot
				// probe for projects they hold no role on.
				httputil.WriteNotFound(w, "Project not found")
				return
			}

			ctx := contextkeys.WithProject(r.Context(), project.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
