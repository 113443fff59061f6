// Package sqlite implements the dialect contract on top of the pure-Go
// modernc.org/sqlite driver. Import it for its registration side effect:
//
//	import _ "github.com/restable/restable/pkg/dialect/sqlite"
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

func init() {
	dialect.Register("sqlite", func(ctx context.Context, dsn string) (dialect.Dialect, error) {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, &dialect.DataSourceError{Op: "open", Err: err}
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, &dialect.DataSourceError{Op: "ping", Err: err}
		}
		return &Dialect{db: db}, nil
	})
}

// Dialect serves a single SQLite database file or :memory: instance.
type Dialect struct {
	db *sql.DB
}

// New wraps an existing database handle, mainly for tests.
func New(db *sql.DB) *Dialect { return &Dialect{db: db} }

func (d *Dialect) Name() string { return "sqlite" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) PrintLiteral(v schema.Cell, f schema.Field) string {
	// SQLite stores booleans as integers.
	if f.Type == schema.TypeBoolean && !schema.IsNull(v) {
		if strings.EqualFold(fmt.Sprint(v), "true") || fmt.Sprint(v) == "1" {
			return "1"
		}
		return "0"
	}
	return dialect.PrintLiteral(v, f)
}

func (d *Dialect) ParseLiteral(text string, f schema.Field) (schema.Cell, error) {
	return dialect.ParseLiteral(text, f)
}

func (d *Dialect) DataType(nativeType string) schema.DataType {
	switch t := strings.ToLower(nativeType); {
	case strings.Contains(t, "int"),
		strings.Contains(t, "real"), strings.Contains(t, "floa"),
		strings.Contains(t, "doub"), strings.Contains(t, "numeric"),
		strings.Contains(t, "decimal"):
		return schema.TypeNumber
	case strings.Contains(t, "bool"):
		return schema.TypeBoolean
	case strings.Contains(t, "blob"):
		return schema.TypeBlob
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return schema.TypeDatetime
	default:
		// TEXT, VARCHAR, CLOB and anything unrecognized
		return schema.TypeString
	}
}

func (d *Dialect) DescribeTable(ctx context.Context, table string) (string, error) {
	var ddl sql.NullString
	err := d.db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = "+dialect.QuoteString(table)).
		Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &dialect.DataSourceError{Op: "describe " + table,
			Err: fmt.Errorf("%w: %q", dialect.ErrNoTable, table)}
	}
	if err != nil {
		return "", &dialect.DataSourceError{Op: "describe " + table, Err: err}
	}
	return ddl.String, nil
}

func (d *Dialect) Query(ctx context.Context, query string) (dialect.Cursor, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &dialect.DataSourceError{Op: "query", Err: err}
	}
	return dialect.NewSQLCursor(rows)
}

func (d *Dialect) Exec(ctx context.Context, query string) error {
	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return &dialect.DataSourceError{Op: "exec", Err: err}
	}
	return nil
}

func (d *Dialect) Close() error { return d.db.Close() }
