package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldline/fieldline/pkg/config"
	"github.com/fieldline/fieldline/pkg/httputil"
	"github.com/fieldline/fieldline/pkg/observability"
)

// setupRoutes mounts every route explicitly against its policy name. The
// names here must match entries in the policy file; a route whose name is
// missing from the table refuses all requests.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Tenant selection needs an identity but no permission: a user with
	// zero grants can still list memberships and pick one.
	api.Handle("/tenants", s.chain.Authenticated(http.HandlerFunc(s.tenantHandlers.ListMyTenants))).Methods("GET")
	api.Handle("/tenants/select", s.chain.Authenticated(http.HandlerFunc(s.tenantHandlers.SelectTenant))).Methods("POST")

	// Projects
	api.Handle("/projects", s.protect("projects.list", s.projectHandlers.List)).Methods("GET")
	api.Handle("/projects", s.protect("projects.create", s.projectHandlers.Create)).Methods("POST")
	api.Handle("/projects/{project_id}", s.protect("projects.get", s.projectHandlers.Get)).Methods("GET")
	api.Handle("/projects/{project_id}", s.protect("projects.update", s.projectHandlers.Update)).Methods("PUT")
	api.Handle("/projects/{project_id}", s.protect("projects.delete", s.projectHandlers.Delete)).Methods("DELETE")

	// Role management
	api.Handle("/roles", s.protect("roles.list", s.roleHandlers.ListRoles)).Methods("GET")
	api.Handle("/roles", s.protect("roles.create", s.roleHandlers.CreateRole)).Methods("POST")
	api.Handle("/roles/{role_id}", s.protect("roles.get", s.roleHandlers.GetRole)).Methods("GET")
	api.Handle("/roles/{role_id}", s.protect("roles.update", s.roleHandlers.UpdateRole)).Methods("PUT")
	api.Handle("/roles/{role_id}", s.protect("roles.delete", s.roleHandlers.DeleteRole)).Methods("DELETE")

	// Tenant role grants
	api.Handle("/members/{user_id}/roles", s.protect("members.roles.list", s.roleHandlers.ListTenantRoles)).Methods("GET")
	api.Handle("/members/{user_id}/roles", s.protect("members.roles.grant", s.roleHandlers.GrantTenantRole)).Methods("POST")
	api.Handle("/members/{user_id}/roles/{role_id}", s.protect("members.roles.revoke", s.roleHandlers.RevokeTenantRole)).Methods("DELETE")

	// Project assignments
	api.Handle("/projects/{project_id}/assignments", s.protect("projects.assignments.list", s.roleHandlers.ListProjectAssignments)).Methods("GET")
	api.Handle("/projects/{project_id}/assignments", s.protect("projects.assignments.assign", s.roleHandlers.AssignProjectRole)).Methods("POST")
	api.Handle("/projects/{project_id}/assignments/{user_id}", s.protect("projects.assignments.unassign", s.roleHandlers.UnassignProjectRole)).Methods("DELETE")

	// Member directories. /admin/users is the platform-wide list for
	// super admins; /admin/members is the tenant-scoped equivalent.
	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.Handle("/users", s.protect("admin.users", s.tenantHandlers.ListAllUsers)).Methods("GET")
	admin.Handle("/members", s.protect("admin.members", s.tenantHandlers.ListMembers)).Methods("GET")

	if s.auditHandlers != nil {
		admin.Handle("/audit/denials", s.protect("audit.denials.search", s.auditHandlers.SearchDenials)).Methods("GET")
		admin.Handle("/audit/denials/export", s.protect("audit.denials.export", s.auditHandlers.ExportDenials)).Methods("GET")
	}

	if s.ssoHandlers != nil {
		s.ssoHandlers.RegisterRoutes(s.router.PathPrefix("/auth/sso").Subrouter())
	}
}

// protect binds a handler to its policy name and records the binding.
func (s *Server) protect(routeName string, handler http.HandlerFunc) http.Handler {
	s.protectedRoutes = append(s.protectedRoutes, routeName)
	return s.chain.Protect(routeName)(handler)
}

// httputilChain builds the outer middleware stack shared by every route.
func httputilChain(log *logrus.Logger, cfg *config.Config, metrics *observability.Metrics) mux.MiddlewareFunc {
	mws := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
	}
	if cfg.Observability.MetricsEnabled {
		mws = append(mws, metrics.HTTPMiddleware)
	}
	if cfg.Observability.OTelEnabled {
		mws = append(mws, otelhttp.NewMiddleware("fieldline-api"))
	}
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		mws = append(mws, httputil.CORSMiddleware(cfg.Server.CORSAllowedOrigins))
	}
	return httputil.Chain(mws...)
}
