// Package storage connects to the warehouse holding the elementary tables and
// fetches test results and pending alerts as raw rows.
package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// WarehouseType names a supported warehouse and selects its driver and SQL dialect.
type WarehouseType string

const (
	WarehousePostgres  WarehouseType = "postgres"
	WarehouseMySQL     WarehouseType = "mysql"
	WarehouseSQLServer WarehouseType = "sqlserver"
	WarehouseSQLite    WarehouseType = "sqlite"
)

// IsValid checks if the WarehouseType is one of the supported warehouses.
func (w WarehouseType) IsValid() bool {
	switch w {
	case WarehousePostgres, WarehouseMySQL, WarehouseSQLServer, WarehouseSQLite:
		return true
	default:
		return false
	}
}

// DriverName returns the database/sql driver registered for the warehouse.
func (w WarehouseType) DriverName() string {
	switch w {
	case WarehousePostgres:
		return "postgres"
	case WarehouseMySQL:
		return "mysql"
	case WarehouseSQLServer:
		return "sqlserver"
	case WarehouseSQLite:
		return "sqlite"
	default:
		return ""
	}
}

// Placeholder returns the bind parameter marker for the n-th argument (1-based).
func (w WarehouseType) Placeholder(n int) string {
	switch w {
	case WarehousePostgres:
		return "$" + strconv.Itoa(n)
	case WarehouseSQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Placeholders returns count markers starting at argument from, joined by ", ".
func (w WarehouseType) Placeholders(from, count int) string {
	markers := make([]string, count)
	for i := range markers {
		markers[i] = w.Placeholder(from + i)
	}

	return strings.Join(markers, ", ")
}

// QuoteIdent quotes a single identifier for the warehouse.
func (w WarehouseType) QuoteIdent(ident string) string {
	switch w {
	case WarehouseMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case WarehouseSQLServer:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// Qualify returns schema.table with each part quoted. An empty schema yields the table alone.
func (w WarehouseType) Qualify(schema, table string) string {
	if schema == "" {
		return w.QuoteIdent(table)
	}

	parts := strings.Split(schema, ".")
	quoted := make([]string, 0, len(parts)+1)

	for _, p := range parts {
		quoted = append(quoted, w.QuoteIdent(p))
	}

	quoted = append(quoted, w.QuoteIdent(table))

	return strings.Join(quoted, ".")
}

// String returns the configuration literal of the WarehouseType.
func (w WarehouseType) String() string {
	return string(w)
}

// ParseWarehouseType converts a configuration literal into a WarehouseType.
// "postgresql" and "mssql" are accepted as aliases.
func ParseWarehouseType(value string) (WarehouseType, error) {
	switch w := WarehouseType(strings.ToLower(strings.TrimSpace(value))); w {
	case "postgresql":
		return WarehousePostgres, nil
	case "mssql":
		return WarehouseSQLServer, nil
	default:
		if w.IsValid() {
			return w, nil
		}

		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedWarehouse, value)
	}
}
