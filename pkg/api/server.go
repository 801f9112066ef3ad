package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fieldline/fieldline/pkg/audit"
	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/config"
	"github.com/fieldline/fieldline/pkg/middleware"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/projects"
	"github.com/fieldline/fieldline/pkg/rbac"
	"github.com/fieldline/fieldline/pkg/sso"
	"github.com/fieldline/fieldline/pkg/tenants"
)

// selectedTenantTTL bounds how long a tenant selection survives in Redis
// without the user re-selecting.
const selectedTenantTTL = 24 * time.Hour

// defaultRetentionSchedule prunes the audit trail nightly when no cron
// expression is configured.
const defaultRetentionSchedule = "0 3 * * *"

// Server wires the stores, the access chain and the HTTP routes together.
type Server struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics

	db    *sql.DB
	redis *redis.Client

	router *mux.Router
	chain  *middleware.Chain
	table  *middleware.PolicyTable

	tokens *auth.TokenService

	trail     audit.Logger
	dbTrail   *audit.DBLogger
	retention *audit.RetentionJob

	tenantHandlers  *tenants.Handlers
	projectHandlers *projects.Handlers
	roleHandlers    *rbac.Handlers
	auditHandlers   *audit.Handlers
	ssoHandlers     *sso.Handlers

	httpServer   *http.Server
	healthServer *http.Server

	// protectedRoutes records every policy name the router binds, so the
	// policy file and the route table can be checked against each other.
	protectedRoutes []string
}

// NewServer assembles the API server from configuration. The database and
// Redis connections are owned by the caller; Close releases everything the
// server created itself.
func NewServer(ctx context.Context, cfg *config.Config, db *sql.DB, redisClient *redis.Client, logger *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		db:      db,
		redis:   redisClient,
		router:  mux.NewRouter(),
		tokens:  tokens,
	}

	tenantStore := tenants.NewStore(db)
	projectStore := projects.NewStore(db)
	roleStore := rbac.NewStore(db)
	sessions := tenants.NewSessionStore(redisClient, selectedTenantTTL)

	permissionResolver := rbac.NewResolver(roleStore, logger, metrics)
	tenantResolver := tenants.NewResolver(tenantStore, sessions, logger, metrics)

	if err := s.setupAuditTrail(); err != nil {
		return nil, err
	}

	table, err := middleware.LoadPolicyTable(cfg.Access.PolicyPath, logger)
	if err != nil {
		return nil, fmt.Errorf("policy table: %w", err)
	}
	if cfg.Access.PolicyHotReload {
		if err := table.Watch(); err != nil {
			return nil, fmt.Errorf("policy watch: %w", err)
		}
	}
	s.table = table

	s.chain = middleware.NewChain(
		table,
		middleware.NewAuthenticator(tokens, logger, metrics),
		middleware.NewAccess(permissionResolver, tenantResolver, s.trail, logger, metrics),
		middleware.NewTenantContext(tenantResolver, logger),
		middleware.NewProjectContext(projectStore, permissionResolver, logger),
		logger,
	)

	s.tenantHandlers = tenants.NewHandlers(tenantStore, sessions)
	s.projectHandlers = projects.NewHandlers(projectStore)
	s.roleHandlers = rbac.NewHandlers(roleStore)
	if s.dbTrail != nil {
		s.auditHandlers = audit.NewHandlers(s.dbTrail)
	}

	if cfg.SSO.Enabled {
		provider, err := sso.NewOIDCProvider(ctx, cfg.SSO)
		if err != nil {
			return nil, fmt.Errorf("sso provider: %w", err)
		}
		s.ssoHandlers = sso.NewHandlers(sso.NewService(provider, tenantStore, tokens, logger))
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	s.healthServer = s.buildHealthServer()

	return s, nil
}

// setupAuditTrail builds the denial sink from configuration. With auditing
// disabled every record call is a no-op.
func (s *Server) setupAuditTrail() error {
	if !s.cfg.Audit.Enabled {
		s.trail = audit.NopLogger{}
		return nil
	}

	var sinks []audit.Logger

	if s.cfg.Audit.DBEnabled {
		dbTrail, err := audit.NewDBLogger(s.db)
		if err != nil {
			return fmt.Errorf("audit db sink: %w", err)
		}
		s.dbTrail = dbTrail
		sinks = append(sinks, dbTrail)

		if s.cfg.Audit.RetentionDays > 0 {
			s.retention = audit.NewRetentionJob(dbTrail, s.cfg.Audit.RetentionDays, s.logger)
		}
	}

	if s.cfg.Audit.FilePath != "" {
		fileTrail, err := audit.NewFileLogger(s.cfg.Audit.FilePath)
		if err != nil {
			return fmt.Errorf("audit file sink: %w", err)
		}
		sinks = append(sinks, fileTrail)
	}

	var sink audit.Logger
	switch len(sinks) {
	case 0:
		s.logger.Warn("audit trail enabled but no sink configured, denials will not be recorded")
		s.trail = audit.NopLogger{}
		return nil
	case 1:
		sink = sinks[0]
	default:
		sink = audit.NewMultiLogger(sinks...)
	}

	// A slow sink must never back up into request handling.
	s.trail = audit.NewAsyncLogger(sink, s.logger, 0)
	return nil
}

// setupMiddleware installs the request-wide middleware that runs before any
// access stage.
func (s *Server) setupMiddleware() {
	httpLog := logrus.New()
	httpLog.SetFormatter(&logrus.JSONFormatter{})
	httpLog.SetOutput(os.Stdout)

	s.router.Use(httputilChain(httpLog, s.cfg, s.metrics))

	if s.cfg.Access.RateLimitPerMinute > 0 {
		if s.cfg.Access.DistributedRateLimit && s.redis != nil {
			limiter := middleware.NewDistributedRateLimitMiddleware(s.redis, s.logger)
			s.router.Use(limiter.Handler)
		} else {
			limiter := middleware.NewRateLimitMiddlewareWithConfig(nil, &middleware.RateLimitConfig{
				RequestsPerWindow: s.cfg.Access.RateLimitPerMinute,
				WindowDuration:    time.Minute,
				BurstSize:         s.cfg.Access.RateLimitPerMinute / 10,
			})
			s.router.Use(limiter.Handler)
		}
	}
}

func (s *Server) buildHealthServer() *http.Server {
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(s.db, s.redis)
	checker.AddProbe("policy_table", s.policyTableProbe)
	observability.RegisterHealthRoutes(healthMux, checker)
	if s.cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", s.metrics.Handler())
	}

	return &http.Server{
		Addr:    s.cfg.Server.Host + ":" + s.cfg.Server.HealthPort,
		Handler: healthMux,
	}
}

// policyTableProbe reports how many routes the access chain has bound. A
// table that somehow lost all its bindings would fail every request closed,
// so it surfaces as unhealthy rather than as a flood of 403s.
func (s *Server) policyTableProbe(ctx context.Context) observability.DependencyStatus {
	status := observability.DependencyStatus{
		Status:    observability.StatusHealthy,
		Timestamp: time.Now(),
	}
	n := s.table.Len()
	if n == 0 {
		status.Status = observability.StatusUnhealthy
		status.Message = "no routes bound"
		return status
	}
	status.Message = fmt.Sprintf("%d routes bound", n)
	return status
}

// Router exposes the assembled route table, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ProtectedRoutes lists the policy names the router binds.
func (s *Server) ProtectedRoutes() []string {
	names := make([]string, len(s.protectedRoutes))
	copy(names, s.protectedRoutes)
	return names
}

// Start runs the API and health servers. It blocks until the API server
// stops listening.
func (s *Server) Start() error {
	if s.retention != nil {
		schedule := s.cfg.Audit.RetentionSchedule
		if schedule == "" {
			schedule = defaultRetentionSchedule
		}
		if err := s.retention.Start(schedule); err != nil {
			return fmt.Errorf("audit retention: %w", err)
		}
	}

	go func() {
		s.logger.WithField("addr", s.healthServer.Addr).Info("health server listening")
		if err := s.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("health server failed")
		}
	}()

	s.logger.WithField("addr", s.httpServer.Addr).Info("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the servers and releases server-owned resources. The
// database and Redis connections stay open for the caller to close.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if herr := s.healthServer.Shutdown(ctx); herr != nil && err == nil {
		err = herr
	}

	if s.retention != nil {
		s.retention.Stop()
	}
	if cerr := s.table.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.trail.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
