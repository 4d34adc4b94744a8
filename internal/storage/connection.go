package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"  // mysql warehouse driver
	_ "github.com/lib/pq"               // postgres warehouse driver
	_ "github.com/microsoft/go-mssqldb" // sqlserver warehouse driver
	_ "modernc.org/sqlite"              // sqlite warehouse driver
)

const healthCheckTimeout = 5 * time.Second

// ErrNoDatabaseConnection is returned when a store is created without a connection.
var ErrNoDatabaseConnection = errors.New("no database connection")

// Connection wraps a pooled warehouse connection together with its dialect.
type Connection struct {
	DB        *sql.DB
	Warehouse WarehouseType
	Schema    string
	timeout   time.Duration
}

// NewConnection opens the warehouse in cfg, applies pool settings and pings it.
func NewConnection(ctx context.Context, cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, ErrNoDatabaseConnection
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Warehouse.DriverName(), cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.Warehouse, err)
	}

	if cfg.Warehouse == WarehouseSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	conn := &Connection{
		DB:        db,
		Warehouse: cfg.Warehouse,
		Schema:    cfg.Schema,
		timeout:   cfg.QueryTimeout,
	}

	if err := conn.HealthCheck(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	if cfg.Warehouse == WarehouseSQLite {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()

				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	slog.Info("Connected to warehouse",
		slog.String("warehouse", cfg.Warehouse.String()),
		slog.String("database_url", cfg.MaskDatabaseURL()),
		slog.String("schema", cfg.Schema))

	return conn, nil
}

// HealthCheck pings the warehouse with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return ErrNoDatabaseConnection
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.Warehouse, err)
	}

	return nil
}

// Close closes the underlying pool.
func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}

	return c.DB.Close()
}

// table returns the qualified name of an elementary table.
func (c *Connection) table(name string) string {
	return c.Warehouse.Qualify(c.Schema, name)
}

// queryContext bounds ctx by the configured query timeout.
func (c *Connection) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.timeout)
}

// queryMaps runs query and returns every row as a column → value map.
// Byte slices are returned as strings.
func (c *Connection) queryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			var v any
			values[i] = &v
		}

		if err := rows.Scan(values...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))

		for i, col := range cols {
			v := *(values[i].(*any)) //nolint:forcetypeassert
			if b, ok := v.([]byte); ok {
				v = string(b)
			}

			row[col] = v
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
