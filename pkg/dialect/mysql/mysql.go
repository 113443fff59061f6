// Package mysql implements the dialect contract for MySQL and MariaDB via
// go-sql-driver. Pass parseTime=true in the DSN so datetime columns scan as
// time.Time. Import it for its registration side effect.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// ER_NO_SUCH_TABLE
const errNoSuchTable = 1146

func init() {
	dialect.Register("mysql", func(ctx context.Context, dsn string) (dialect.Dialect, error) {
		db, err := sql.Open("mysql", dsn)
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

// Dialect serves one MySQL/MariaDB database.
type Dialect struct {
	db *sql.DB
}

// New wraps an existing database handle, mainly for tests.
func New(db *sql.DB) *Dialect { return &Dialect{db: db} }

func (d *Dialect) Name() string { return "mysql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *Dialect) PrintLiteral(v schema.Cell, f schema.Field) string {
	// MySQL rejects the RFC3339 "T" separator on datetime columns.
	if f.Type == schema.TypeDatetime && !schema.IsNull(v) {
		if t, ok := v.(time.Time); ok {
			return dialect.QuoteString(t.UTC().Format("2006-01-02 15:04:05.999999"))
		}
	}
	return dialect.PrintLiteral(v, f)
}

func (d *Dialect) ParseLiteral(text string, f schema.Field) (schema.Cell, error) {
	return dialect.ParseLiteral(text, f)
}

func (d *Dialect) DataType(nativeType string) schema.DataType {
	switch t := strings.ToLower(nativeType); {
	case t == "bit", strings.Contains(t, "bool"):
		return schema.TypeBoolean
	case strings.Contains(t, "int"),
		strings.Contains(t, "decimal"), strings.Contains(t, "numeric"),
		strings.Contains(t, "float"), strings.Contains(t, "double"),
		t == "real", t == "year":
		return schema.TypeNumber
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"):
		return schema.TypeBlob
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return schema.TypeDatetime
	default:
		// char, varchar, text, enum, set, json and anything unrecognized
		return schema.TypeString
	}
}

func (d *Dialect) DescribeTable(ctx context.Context, table string) (string, error) {
	var name, ddl string
	err := d.db.QueryRowContext(ctx, "SHOW CREATE TABLE "+d.QuoteIdentifier(table)).
		Scan(&name, &ddl)
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errNoSuchTable {
		return "", &dialect.DataSourceError{Op: "describe " + table,
			Err: fmt.Errorf("%w: %q", dialect.ErrNoTable, table)}
	}
	if err != nil {
		return "", &dialect.DataSourceError{Op: "describe " + table, Err: err}
	}
	return ddl, nil
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
