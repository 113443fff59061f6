package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// cursor adapts pgx.Rows to dialect.Cursor.
type cursor struct {
	rows pgx.Rows
}

func (c *cursor) Next() bool { return c.rows.Next() }

func (c *cursor) Row() (schema.Row, error) {
	values, err := c.rows.Values()
	if err != nil {
		return nil, &dialect.DataSourceError{Op: "scan", Err: err}
	}
	return schema.Row(values), nil
}

func (c *cursor) Err() error {
	if err := c.rows.Err(); err != nil {
		return &dialect.DataSourceError{Op: "iterate", Err: err}
	}
	return nil
}

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}
