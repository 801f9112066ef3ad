package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldline/fieldline/pkg/api"
	"github.com/fieldline/fieldline/pkg/config"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/projects"
	"github.com/fieldline/fieldline/pkg/rbac"
	"github.com/fieldline/fieldline/pkg/tenants"
)

func main() {
	migrate := flag.Bool("migrate", false, "Run database migrations before serving")
	flag.Parse()

	if err := run(*migrate); err != nil {
		fmt.Fprintf(os.Stderr, "fieldline: %v\n", err)
		os.Exit(1)
	}
}

func run(migrate bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	ctx := context.Background()

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)

	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("opentelemetry: %w", err)
		}
		shutdown.Register("tracing", providers.Shutdown)
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if migrate {
		if err := runMigrations(ctx, db, logger); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable at startup, sessions and distributed rate limits degraded")
	}

	server, err := api.NewServer(ctx, cfg, db, redisClient, logger, metrics)
	if err != nil {
		return err
	}

	shutdown.Register("api server", server.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- shutdown.WaitForShutdown()
	}()

	select {
	case err := <-errCh:
		return err
	case err := <-waitCh:
		return err
	}
}

// runMigrations brings the schema up to date in dependency order. The
// standalone fieldline-migrate binary does the same for deployments that
// migrate out of band.
func runMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := tenants.RunMigrations(ctx, db, logger); err != nil {
		return err
	}
	if err := projects.RunMigrations(ctx, db, logger); err != nil {
		return err
	}
	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		return err
	}
	return rbac.InitializeBuiltInRoles(ctx, rbac.NewStore(db))
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
