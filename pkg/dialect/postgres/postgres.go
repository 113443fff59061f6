// Package postgres implements the dialect contract on a pgx connection pool.
// PostgreSQL has no SHOW CREATE TABLE, so DescribeTable synthesizes CREATE
// TABLE text from information_schema; the introspector then parses it the
// same way it parses the other engines' native DDL. Import the package for
// its registration side effect.
package postgres

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

func init() {
	dialect.Register("postgres", func(ctx context.Context, dsn string) (dialect.Dialect, error) {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, &dialect.DataSourceError{Op: "open", Err: err}
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, &dialect.DataSourceError{Op: "ping", Err: err}
		}
		return &Dialect{pool: pool}, nil
	})
}

// Dialect serves one PostgreSQL database through a pgx pool.
type Dialect struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Dialect { return &Dialect{pool: pool} }

func (d *Dialect) Name() string { return "postgres" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) PrintLiteral(v schema.Cell, f schema.Field) string {
	if f.Type == schema.TypeBlob && !schema.IsNull(v) {
		if b, ok := v.([]byte); ok {
			return `'\x` + hex.EncodeToString(b) + `'::bytea`
		}
	}
	return dialect.PrintLiteral(v, f)
}

func (d *Dialect) ParseLiteral(text string, f schema.Field) (schema.Cell, error) {
	return dialect.ParseLiteral(text, f)
}

func (d *Dialect) DataType(nativeType string) schema.DataType {
	switch t := strings.ToLower(nativeType); {
	case t == "boolean", t == "bool":
		return schema.TypeBoolean
	case strings.Contains(t, "int"), strings.Contains(t, "serial"),
		strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		t == "real", t == "double precision", t == "double", t == "money":
		return schema.TypeNumber
	case t == "bytea":
		return schema.TypeBlob
	case strings.HasPrefix(t, "timestamp"), t == "date",
		strings.HasPrefix(t, "time"):
		return schema.TypeDatetime
	default:
		// text, varchar, uuid, json(b) and anything unrecognized
		return schema.TypeString
	}
}

// DescribeTable reconstructs CREATE TABLE text from information_schema.
func (d *Dialect) DescribeTable(ctx context.Context, table string) (string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			COALESCE(c.character_maximum_length, COALESCE(c.numeric_precision, 0)),
			c.is_nullable = 'NO',
			c.column_default LIKE 'nextval(%' OR c.is_identity = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = 'public'
					AND tc.table_name = $1
					AND kcu.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position`, table)
	if err != nil {
		return "", &dialect.DataSourceError{Op: "describe " + table, Err: err}
	}
	defer rows.Close()

	var defs []string
	var pks []string
	for rows.Next() {
		var name, dataType string
		var maxLength int
		var notNull, autoIncrement, primaryKey bool
		if err := rows.Scan(&name, &dataType, &maxLength, &notNull, &autoIncrement, &primaryKey); err != nil {
			return "", &dialect.DataSourceError{Op: "describe " + table, Err: err}
		}
		def := d.QuoteIdentifier(name) + " " + dataType
		if maxLength > 0 && strings.Contains(strings.ToLower(dataType), "char") {
			def += fmt.Sprintf("(%d)", maxLength)
		}
		if autoIncrement {
			def += " GENERATED BY DEFAULT AS IDENTITY"
		}
		if notNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if primaryKey {
			pks = append(pks, d.QuoteIdentifier(name))
		}
	}
	if err := rows.Err(); err != nil {
		return "", &dialect.DataSourceError{Op: "describe " + table, Err: err}
	}
	if len(defs) == 0 {
		// information_schema returns an empty result for a missing table
		return "", &dialect.DataSourceError{Op: "describe " + table,
			Err: fmt.Errorf("%w: %q", dialect.ErrNoTable, table)}
	}
	if len(pks) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pks, ", ")+")")
	}
	return "CREATE TABLE " + d.QuoteIdentifier(table) + " (\n\t" +
		strings.Join(defs, ",\n\t") + "\n)", nil
}

func (d *Dialect) Query(ctx context.Context, query string) (dialect.Cursor, error) {
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, &dialect.DataSourceError{Op: "query", Err: err}
	}
	return &cursor{rows: rows}, nil
}

func (d *Dialect) Exec(ctx context.Context, query string) error {
	if _, err := d.pool.Exec(ctx, query); err != nil {
		return &dialect.DataSourceError{Op: "exec", Err: err}
	}
	return nil
}

func (d *Dialect) Close() error {
	d.pool.Close()
	return nil
}
