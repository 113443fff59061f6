// Package dialect defines the contract one database engine implements to be
// served: identifier quoting, literal printing/parsing, a native "describe
// table" primitive, and statement execution. Backends register themselves by
// driver name, database/sql style, and are selected through the registry.
package dialect

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/restable/restable/pkg/schema"
)

// Cursor is a forward-only iterator over the rows of one executed statement.
type Cursor interface {
	// Next advances to the next row, blocking on the driver if the result is
	// streamed. It returns false when no rows remain or an error occurred.
	Next() bool
	// Row returns the current row as raw driver values.
	Row() (schema.Row, error)
	// Err returns the first error encountered during iteration.
	Err() error
	Close() error
}

// Dialect is implemented once per database engine. Implementations must be
// safe for concurrent use.
type Dialect interface {
	schema.TypeMapper

	// Name returns the registry name of the dialect, e.g. "postgres".
	Name() string
	// QuoteIdentifier quotes a column or table name.
	QuoteIdentifier(name string) string
	// PrintLiteral renders a cell as an inline SQL literal for f's type.
	PrintLiteral(v schema.Cell, f schema.Field) string
	// ParseLiteral converts a client-supplied literal string to a typed cell
	// for f's type.
	ParseLiteral(text string, f schema.Field) (schema.Cell, error)
	// DescribeTable returns the native DDL text describing table.
	DescribeTable(ctx context.Context, table string) (string, error)
	// Query executes sql and returns a cursor over the result.
	Query(ctx context.Context, sql string) (Cursor, error)
	// Exec executes sql discarding any result rows.
	Exec(ctx context.Context, sql string) error
	Close() error
}

// ErrNoTable reports that DescribeTable was asked for a table the data
// source does not have. Unlike a connection failure it never heals on
// retry.
var ErrNoTable = fmt.Errorf("table does not exist")

// DataSourceError wraps a driver-level error unchanged on its way to the
// caller.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string { return fmt.Sprintf("datasource %s: %v", e.Op, e.Err) }
func (e *DataSourceError) Unwrap() error { return e.Err }

// Opener opens a dialect against a data source.
type Opener func(ctx context.Context, dsn string) (Dialect, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Opener)
)

// Register makes a dialect available under the given name. It is intended to
// be called from the init function of dialect implementations.
func Register(name string, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if open == nil {
		panic("dialect: Register opener is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("dialect: Register called twice for " + name)
	}
	drivers[name] = open
}

// Open opens the named dialect against dsn.
func Open(ctx context.Context, name, dsn string) (Dialect, error) {
	driversMu.RLock()
	open, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (registered: %v)", name, Drivers())
	}
	return open(ctx, dsn)
}

// Drivers returns the sorted names of registered dialects.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
