// Package main provides the migrator that applies the alertmon fixture schema
// (elementary tables and pending alerts) to a postgres warehouse.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/correlator-io/alertmon/internal/config"
)

const (
	version = "1.0.0-dev"
	name    = "migrator"
)

var errUnknownCommand = errors.New("unknown command")

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("ALERTMON_LOG_LEVEL", slog.LevelInfo),
	}))

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)

		return
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage(os.Stdout)

		return
	}

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(cfg, os.Stdout, logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = executeCommand(flag.Arg(0), runner, os.Stdin, os.Stdout)

	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("Failed to close migration runner", slog.String("error", closeErr.Error()))
	}

	if err != nil {
		logger.Error("Migration failed", slog.String("command", flag.Arg(0)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// executeCommand runs one migrator command. drop asks for confirmation on in.
func executeCommand(command string, runner MigrationRunner, in io.Reader, out io.Writer) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		_, _ = fmt.Fprint(out, "WARNING: This will drop all tables. Are you sure? (y/N): ")

		response, _ := bufio.NewReader(in).ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(response), "y") {
			return runner.Drop()
		}

		_, _ = fmt.Fprintln(out, "Operation cancelled.")

		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, command)
	}
}

func printUsage(out io.Writer) {
	_, _ = fmt.Fprintf(out, `%s v%s - fixture schema migrator for alertmon

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Roll back the last migration
    status  Show applied version and pending migrations
    version Show current migration version
    drop    Drop all tables (requires confirmation)

ENVIRONMENT VARIABLES:
    ALERTMON_DATABASE_URL     postgres connection string (required)
    ALERTMON_MIGRATIONS_PATH  migration directory (default: ./migrations)
    ALERTMON_MIGRATION_TABLE  version table (default: alertmon_schema_migrations)
`, name, version, name)
}
