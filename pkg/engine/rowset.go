package engine

import (
	"strconv"
	"time"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// RowSet is a forward-only cursor of typed rows bound to one data model.
// It is request-scoped and consumed once; abandoning iteration mid-stream
// only leaks the driver-level cursor until Close.
type RowSet struct {
	model  *schema.DataModel
	d      dialect.Dialect
	cursor dialect.Cursor
	row    schema.Row
	err    error
}

// Model returns the data model the rows are aligned to.
func (r *RowSet) Model() *schema.DataModel { return r.model }

// Next advances to the next row, blocking on the driver for streamed
// results. Rows are delivered in the underlying cursor's order, which is
// unspecified unless an order spec was applied.
func (r *RowSet) Next() bool {
	if r.err != nil || !r.cursor.Next() {
		return false
	}
	raw, err := r.cursor.Row()
	if err != nil {
		r.err = err
		return false
	}
	r.row = r.coerce(raw)
	return true
}

// Row returns the current row with cells coerced to the model's logical
// types.
func (r *RowSet) Row() (schema.Row, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.row, nil
}

// Err returns the first error encountered while iterating.
func (r *RowSet) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.cursor.Err()
}

// Close releases the driver cursor.
func (r *RowSet) Close() error { return r.cursor.Close() }

// coerce aligns raw driver values with the model's logical types; drivers
// disagree on how they surface text, booleans and datetimes.
func (r *RowSet) coerce(raw schema.Row) schema.Row {
	row := r.model.NewRow()
	for i, f := range r.model.Fields() {
		if i >= len(raw) {
			break
		}
		row[i] = coerceCell(raw[i], f)
	}
	return row
}

func coerceCell(c schema.Cell, f schema.Field) schema.Cell {
	if schema.IsNull(c) {
		return nil
	}
	switch f.Type {
	case schema.TypeString:
		if b, ok := c.([]byte); ok {
			return string(b)
		}
	case schema.TypeNumber:
		switch v := c.(type) {
		case []byte:
			return parseNumber(string(v))
		case string:
			return parseNumber(v)
		}
	case schema.TypeBoolean:
		switch v := c.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		case []byte:
			// some drivers surface BOOLEAN columns as a single raw byte
			if len(v) == 1 && (v[0] == 0 || v[0] == 1) {
				return v[0] == 1
			}
			return dialect.ParseBool(string(v))
		case string:
			return dialect.ParseBool(v)
		}
	case schema.TypeDatetime:
		switch v := c.(type) {
		case time.Time:
			return v
		case string:
			if t, err := dialect.ParseTime(v); err == nil {
				return t
			}
		case []byte:
			if t, err := dialect.ParseTime(string(v)); err == nil {
				return t
			}
		}
	case schema.TypeBlob:
		if s, ok := c.(string); ok {
			return []byte(s)
		}
	}
	return c
}

func parseNumber(s string) schema.Cell {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
