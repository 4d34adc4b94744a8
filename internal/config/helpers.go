package config

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // used to run migrations using source files
	_ "github.com/lib/pq"                                // postgres driver for the test connection
)

const (
	postgresImage    = "postgres:16-alpine"
	readyLogLine     = "database system is ready to accept connections"
	readyOccurrences = 2
	startUpTimeOut   = 120 * time.Second

	// TestSchema is the schema the fixture migrations create the elementary tables in.
	TestSchema = "elementary"

	// TestMigrationsURL is the fixture migration source, relative to a package two
	// levels below the module root (internal/<pkg> or cmd/<name>).
	TestMigrationsURL = "file://../../migrations"
)

// TestDatabase is an integration test warehouse with the fixture schema applied.
type TestDatabase struct {
	Connection *sql.DB
	URL        string
}

// StartTestPostgres starts an empty postgres container for database and returns
// its connection string. The container is terminated when the test ends.
func StartTestPostgres(ctx context.Context, t *testing.T, database string) string {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase(database),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog(readyLogLine).
				WithOccurrence(readyOccurrences).
				WithStartupTimeout(startUpTimeOut),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgContainer) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	return connStr
}

// SetupTestDatabase starts a postgres warehouse, applies the fixture schema and
// runs the seed statements in order. Container and connection are released on cleanup.
//
// Usage:
//
//	func TestFetch(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		testDB := config.SetupTestDatabase(ctx, t, seedSQL)
//	}
func SetupTestDatabase(ctx context.Context, t *testing.T, seeds ...string) *TestDatabase {
	t.Helper()

	connStr := StartTestPostgres(ctx, t, "alertmon_test")

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "Failed to open database")
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, RunTestMigrations(conn), "Failed to run fixture migrations")

	for _, seed := range seeds {
		_, err := conn.ExecContext(ctx, seed)
		require.NoError(t, err, "Failed to seed test database")
	}

	return &TestDatabase{Connection: conn, URL: connStr}
}

// RunTestMigrations applies the fixture migrations with golang-migrate.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(TestMigrationsURL, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
