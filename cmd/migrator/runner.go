package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file source driver
	_ "github.com/lib/pq"                                // postgres driver
)

type (
	// MigrationRunner applies the fixture schema.
	MigrationRunner interface {
		Up() error
		Down() error
		Status() error
		Version() error
		Drop() error
		Close() error
	}

	migrationRunner struct {
		migrate *migrate.Migrate
		db      *sql.DB
		set     *MigrationSet
		out     io.Writer
		logger  *slog.Logger
	}

	// migrateLogger forwards golang-migrate output to slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner validates the migration files, connects and prepares golang-migrate.
func NewMigrationRunner(cfg *Config, out io.Writer, logger *slog.Logger) (MigrationRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	set := NewMigrationSet(cfg.MigrationsPath)
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migrations in %s: %w", cfg.MigrationsPath, err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &migrationRunner{migrate: m, db: db, set: set, out: out, logger: logger}, nil
}

func (r *migrationRunner) Up() error {
	err := r.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No new migrations to apply")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	r.logger.Info("All migrations applied")

	return nil
}

func (r *migrationRunner) Down() error {
	err := r.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No migrations to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	r.logger.Info("Last migration rolled back")

	return nil
}

// Status prints the applied version and the migrations still pending.
func (r *migrationRunner) Status() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	files, listErr := r.set.List()
	if listErr != nil {
		return listErr
	}

	_, _ = fmt.Fprint(r.out, formatStatus(ver, dirty, errors.Is(err, migrate.ErrNilVersion), files))

	return nil
}

func (r *migrationRunner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		_, _ = fmt.Fprintln(r.out, "Current Version: No migrations applied")

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	dirtyNote := ""
	if dirty {
		dirtyNote = " (dirty)"
	}

	_, _ = fmt.Fprintf(r.out, "Current Version: %d%s\n", ver, dirtyNote)

	return nil
}

func (r *migrationRunner) Drop() error {
	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	return nil
}

func (r *migrationRunner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		errs = append(errs, sourceErr, dbErr)
	}

	if r.db != nil {
		errs = append(errs, r.db.Close())
	}

	return errors.Join(errs...)
}

// formatStatus renders the version line followed by one line per pending up migration.
func formatStatus(version uint, dirty, none bool, files []MigrationInfo) string {
	var b strings.Builder

	switch {
	case none:
		b.WriteString("Migration Status: No migrations applied yet\n")
	case dirty:
		fmt.Fprintf(&b, "Migration Status: Version %d (dirty, needs manual intervention)\n", version)
	default:
		fmt.Fprintf(&b, "Migration Status: Version %d (clean)\n", version)
	}

	pending := 0

	for _, f := range files {
		if f.Direction != "up" || (!none && uint(f.Sequence) <= version) { //nolint:gosec
			continue
		}

		if pending == 0 {
			b.WriteString("Pending:\n")
		}

		fmt.Fprintf(&b, "  %s\n", f.Filename)

		pending++
	}

	if pending == 0 {
		b.WriteString("Pending: none\n")
	}

	return b.String()
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
