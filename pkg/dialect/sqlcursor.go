package dialect

import (
	"database/sql"

	"github.com/restable/restable/pkg/schema"
)

// SQLCursor adapts *sql.Rows to the Cursor interface for database/sql backed
// dialects (mysql, sqlite).
type SQLCursor struct {
	rows  *sql.Rows
	width int
}

// NewSQLCursor wraps rows. The cursor owns the rows and closes them.
func NewSQLCursor(rows *sql.Rows) (*SQLCursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, &DataSourceError{Op: "columns", Err: err}
	}
	return &SQLCursor{rows: rows, width: len(cols)}, nil
}

func (c *SQLCursor) Next() bool { return c.rows.Next() }

func (c *SQLCursor) Row() (schema.Row, error) {
	values := make(schema.Row, c.width)
	pointers := make([]any, c.width)
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := c.rows.Scan(pointers...); err != nil {
		return nil, &DataSourceError{Op: "scan", Err: err}
	}
	return values, nil
}

func (c *SQLCursor) Err() error {
	if err := c.rows.Err(); err != nil {
		return &DataSourceError{Op: "iterate", Err: err}
	}
	return nil
}

func (c *SQLCursor) Close() error { return c.rows.Close() }
