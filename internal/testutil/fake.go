// Package testutil provides an in-memory dialect for engine and server tests.
// The fake records every executed statement and replays canned result rows,
// so tests can assert on exact SQL without a live database.
package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// FakeDialect is a scriptable dialect. Tables maps table names to DDL served
// by DescribeTable; Results queues rows returned by successive Query calls.
type FakeDialect struct {
	Tables map[string]string
	// Results is consumed front to back: one entry per Query call.
	Results [][]schema.Row
	// Executed accumulates every statement passed to Query or Exec.
	Executed []string
	// Fail, when set, is returned from Query and Exec wrapped as a
	// DataSourceError.
	Fail error
}

// NewFakeDialect serves a single table.
func NewFakeDialect(table, ddl string) *FakeDialect {
	return &FakeDialect{Tables: map[string]string{table: ddl}}
}

func (d *FakeDialect) Name() string { return "fake" }

func (d *FakeDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *FakeDialect) PrintLiteral(v schema.Cell, f schema.Field) string {
	return dialect.PrintLiteral(v, f)
}

func (d *FakeDialect) ParseLiteral(text string, f schema.Field) (schema.Cell, error) {
	return dialect.ParseLiteral(text, f)
}

func (d *FakeDialect) DataType(nativeType string) schema.DataType {
	switch strings.ToUpper(strings.Fields(nativeType)[0]) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "DECIMAL", "NUMERIC", "REAL", "DOUBLE", "FLOAT":
		return schema.TypeNumber
	case "BOOLEAN", "BOOL":
		return schema.TypeBoolean
	case "DATE", "DATETIME", "TIMESTAMP":
		return schema.TypeDatetime
	case "BLOB", "BYTEA":
		return schema.TypeBlob
	default:
		return schema.TypeString
	}
}

func (d *FakeDialect) DescribeTable(ctx context.Context, table string) (string, error) {
	ddl, ok := d.Tables[table]
	if !ok {
		return "", &dialect.DataSourceError{Op: "describe",
			Err: fmt.Errorf("%w: %q", dialect.ErrNoTable, table)}
	}
	return ddl, nil
}

func (d *FakeDialect) Query(ctx context.Context, sql string) (dialect.Cursor, error) {
	d.Executed = append(d.Executed, sql)
	if d.Fail != nil {
		return nil, &dialect.DataSourceError{Op: "query", Err: d.Fail}
	}
	var rows []schema.Row
	if len(d.Results) > 0 {
		rows = d.Results[0]
		d.Results = d.Results[1:]
	}
	return &fakeCursor{rows: rows}, nil
}

func (d *FakeDialect) Exec(ctx context.Context, sql string) error {
	d.Executed = append(d.Executed, sql)
	if d.Fail != nil {
		return &dialect.DataSourceError{Op: "exec", Err: d.Fail}
	}
	return nil
}

func (d *FakeDialect) Close() error { return nil }

// LastSQL returns the most recent executed statement, or "".
func (d *FakeDialect) LastSQL() string {
	if len(d.Executed) == 0 {
		return ""
	}
	return d.Executed[len(d.Executed)-1]
}

type fakeCursor struct {
	rows []schema.Row
	pos  int
}

func (c *fakeCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Row() (schema.Row, error) { return c.rows[c.pos-1], nil }
func (c *fakeCursor) Err() error               { return nil }
func (c *fakeCursor) Close() error             { return nil }
