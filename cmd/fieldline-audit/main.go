// Command fieldline-audit exports or prunes the access denial trail from
// the command line, for operators who need the records outside the API.
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
)

func main() {
	var (
		dsn        = flag.String("database-url", "", "PostgreSQL connection string, defaults to FIELDLINE_POSTGRES_URL")
		format     = flag.String("format", "json", "Export format: json, csv or ndjson")
		userID     = flag.String("user", "", "Filter by denied user id")
		tenantID   = flag.String("tenant", "", "Filter by tenant id")
		permission = flag.String("permission", "", "Filter by required permission")
		since      = flag.String("since", "", "Only entries at or after this RFC3339 time")
		until      = flag.String("until", "", "Only entries before this RFC3339 time")
		limit      = flag.Int("limit", 1000, "Maximum entries to export")
		output     = flag.String("output", "", "Write to this file instead of stdout")
		prune      = flag.Int("prune", 0, "Delete entries older than this many days instead of exporting")
	)
	flag.Parse()

	if err := run(*dsn, *format, *userID, *tenantID, *permission, *since, *until, *limit, *output, *prune); err != nil {
		fmt.Fprintf(os.Stderr, "fieldline-audit: %v\n", err)
		os.Exit(1)
	}
}

func run(dsn, format, userID, tenantID, permission, since, until string, limit int, output string, prune int) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	trail, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}

	if prune > 0 {
		removed, err := trail.Cleanup(ctx, prune)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d entries older than %d days\n", removed, prune)
		return nil
	}

	filter := audit.SearchFilter{
		UserID:     userID,
		TenantID:   tenantID,
		Permission: permission,
		Limit:      limit,
	}
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return fmt.Errorf("invalid -since: %w", err)
		}
		filter.Start = &t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return fmt.Errorf("invalid -until: %w", err)
		}
		filter.End = &t
	}

	exportFormat := audit.ExportFormat(format)
	switch exportFormat {
	case audit.ExportFormatJSON, audit.ExportFormatCSV, audit.ExportFormatNDJSON:
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	data, err := trail.Export(ctx, filter, exportFormat)
	if err != nil {
		return err
	}

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0644)
}
