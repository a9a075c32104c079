package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/switchyard-ai/switchyard/internal/adapter/postgres"
	"github.com/switchyard-ai/switchyard/internal/config"
)

// runMigrate dispatches migration subcommands (up, down, status).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	switch args[0] {
	case "up":
		return runMigrateUp(args[1:])
	case "down":
		return runMigrateDown(args[1:])
	case "status":
		return runMigrateStatus(args[1:])
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: switchyard migrate <command> [options]

Commands:
  up       Apply all pending migrations
  down     Roll back the most recent migration(s)
  status   Show the current schema version
  help     Show this help message

Examples:
  switchyard migrate up
  switchyard migrate down --steps 2
  switchyard migrate status --dsn postgres://localhost:5432/switchyard
`)
}

// migrateDSN resolves the connection string: an explicit flag wins,
// otherwise the regular config hierarchy supplies it.
func migrateDSN(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Postgres.DSN, nil
}

func runMigrateUp(args []string) error {
	fs := flag.NewFlagSet("up", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (defaults to configured DSN)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := migrateDSN(*dsn)
	if err != nil {
		return err
	}
	if err := postgres.RunMigrations(context.Background(), target); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func runMigrateDown(args []string) error {
	fs := flag.NewFlagSet("down", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (defaults to configured DSN)")
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", *steps)
	}

	target, err := migrateDSN(*dsn)
	if err != nil {
		return err
	}
	if err := postgres.RollbackMigrations(context.Background(), target, *steps); err != nil {
		return err
	}
	fmt.Printf("rolled back %d migration(s)\n", *steps)
	return nil
}

func runMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (defaults to configured DSN)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := migrateDSN(*dsn)
	if err != nil {
		return err
	}
	version, err := postgres.MigrationVersion(context.Background(), target)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Println("no migrations applied")
		return nil
	}
	fmt.Printf("schema version: %d\n", version)
	return nil
}
