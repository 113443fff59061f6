// Package schema derives a typed, ordered data model for a relational table
// from the table's native DDL text. The model is built once at resource
// registration and is read-only afterwards, so any number of concurrent
// requests may resolve field metadata through it without synchronization.
package schema

import (
	"fmt"
	"time"
)

// DataType is the logical type of a field, independent of the native SQL type
// the backing engine reports.
type DataType string

const (
	TypeString   DataType = "string"
	TypeNumber   DataType = "number"
	TypeBoolean  DataType = "boolean"
	TypeDatetime DataType = "datetime"
	TypeBlob     DataType = "blob"
)

// Cell is a single column value. The concrete type is one of
// string, int64, float64, bool, time.Time, []byte, or nil.
type Cell = any

// Row is a fixed-length ordered sequence of cells aligned to the field order
// of the DataModel it was produced against.
type Row []Cell

// Field describes one column of a table. Immutable after creation.
type Field struct {
	Name            string   `json:"name"`
	Type            DataType `json:"type"`
	NativeType      string   `json:"native_type"`
	MaxLength       int      `json:"max_length,omitempty"`
	IsPrimaryKey    bool     `json:"is_primary_key"`
	IsAutoIncrement bool     `json:"is_auto_increment"`
	IsNotNull       bool     `json:"is_not_null"`
}

// DataModel is an ordered registry of fields for one table. Field order is
// column order. Build it once with NewDataModel and treat it as read-only.
type DataModel struct {
	table  string
	fields []Field
	index  map[string]int
}

// NewDataModel constructs a model from fields in column order. Field names
// must be unique within the model.
func NewDataModel(table string, fields []Field) (*DataModel, error) {
	m := &DataModel{
		table:  table,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(m.fields, fields)
	for i, f := range m.fields {
		if _, exists := m.index[f.Name]; exists {
			return nil, fmt.Errorf("duplicate field %q in table %q", f.Name, table)
		}
		m.index[f.Name] = i
	}
	return m, nil
}

// Table returns the owning table name.
func (m *DataModel) Table() string { return m.table }

// Len returns the number of fields.
func (m *DataModel) Len() int { return len(m.fields) }

// Fields returns the fields in column order. The returned slice must not be
// modified.
func (m *DataModel) Fields() []Field { return m.fields }

// Field resolves a field by name.
func (m *DataModel) Field(name string) (Field, bool) {
	i, ok := m.index[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

// FieldIndex returns the column position of name, or -1.
func (m *DataModel) FieldIndex(name string) int {
	i, ok := m.index[name]
	if !ok {
		return -1
	}
	return i
}

// Names returns field names in column order.
func (m *DataModel) Names() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// PrimaryKeys returns the primary-key fields in column order.
func (m *DataModel) PrimaryKeys() []Field {
	var pks []Field
	for _, f := range m.fields {
		if f.IsPrimaryKey {
			pks = append(pks, f)
		}
	}
	return pks
}

// NewRow returns a row of the model's width with every cell nil.
func (m *DataModel) NewRow() Row {
	return make(Row, len(m.fields))
}

// IsNull reports whether c carries no value.
func IsNull(c Cell) bool {
	if c == nil {
		return true
	}
	if v, ok := c.(*time.Time); ok {
		return v == nil
	}
	return false
}
