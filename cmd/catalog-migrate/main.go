// Command catalog-migrate manages the document catalog schema with the
// migrations embedded in the binary.
//
// Usage:
//
//	catalog-migrate up       Apply all pending migrations
//	catalog-migrate down     Roll back the last migration
//	catalog-migrate version  Show the current schema version
//	catalog-migrate drop     Drop all tables (requires confirmation)
//
// CATALOG_DATABASE_URL must point at the catalog database.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/medical-kg/ingest/internal/config"
	"github.com/medical-kg/ingest/migrations"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	cfg, err := migrations.LoadConfig()
	if err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(2)
	}

	runner, err := migrations.NewRunner(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize migration runner", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = runner.Close() }()

	if err := execute(flag.Arg(0), runner); err != nil {
		logger.Error("Migration command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func execute(command string, runner *migrations.Runner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}

		note := ""
		if dirty {
			note = " (dirty)"
		}

		fmt.Printf("schema version %d%s (embedded max %d)\n", version, note, migrations.MaxVersion())

		return nil
	case "drop":
		fmt.Print("This drops every catalog table. Continue? (y/N): ")

		var response string
		_, _ = fmt.Scanln(&response)

		if response == "y" || response == "Y" {
			return runner.Drop()
		}

		fmt.Println("canceled")

		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `catalog-migrate - document catalog schema tool

USAGE:
    catalog-migrate COMMAND

COMMANDS:
    up       Apply all pending migrations
    down     Roll back the last migration
    version  Show the current schema version
    drop     Drop all tables (requires confirmation)

ENVIRONMENT:
    CATALOG_DATABASE_URL     PostgreSQL connection string (required)
    CATALOG_MIGRATION_TABLE  Migration tracking table (default: schema_migrations)
`)
}
