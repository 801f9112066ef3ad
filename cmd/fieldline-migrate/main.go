package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/fieldline/fieldline/pkg/audit"
	"github.com/fieldline/fieldline/pkg/config"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/projects"
	"github.com/fieldline/fieldline/pkg/rbac"
	"github.com/fieldline/fieldline/pkg/tenants"
)

func main() {
	dsn := flag.String("database-url", "", "PostgreSQL connection string, defaults to FIELDLINE_POSTGRES_URL")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall migration timeout")
	flag.Parse()

	if err := run(*dsn, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "fieldline-migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(dsn string, timeout time.Duration) error {
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	if dsn == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		dsn = cfg.Database.URL
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	// Tenancy first: the project and role tables reference tenants.
	if err := tenants.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("tenant migrations: %w", err)
	}
	if err := projects.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("project migrations: %w", err)
	}
	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("rbac migrations: %w", err)
	}

	if err := rbac.InitializeBuiltInRoles(ctx, rbac.NewStore(db)); err != nil {
		return fmt.Errorf("built-in roles: %w", err)
	}

	trail, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("audit table: %w", err)
	}
	defer trail.Close()

	logger.Info("migrations complete")
	return nil
}
