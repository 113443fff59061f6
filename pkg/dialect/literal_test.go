package dialect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

func field(t schema.DataType) schema.Field {
	return schema.Field{Name: "f", Type: t}
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, "'abc'", dialect.QuoteString("abc"))
	assert.Equal(t, "'O''Brien'", dialect.QuoteString("O'Brien"))
	assert.Equal(t, "''", dialect.QuoteString(""))
}

func TestPrintLiteral(t *testing.T) {
	at := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		cell schema.Cell
		f    schema.Field
		want string
	}{
		{"null", nil, field(schema.TypeString), "NULL"},
		{"string quoted", "John", field(schema.TypeString), "'John'"},
		{"string with quote", "O'Brien", field(schema.TypeString), "'O''Brien'"},
		{"integer raw", int64(42), field(schema.TypeNumber), "42"},
		{"float raw", 3.5, field(schema.TypeNumber), "3.5"},
		{"true", true, field(schema.TypeBoolean), "TRUE"},
		{"false", false, field(schema.TypeBoolean), "FALSE"},
		{"datetime quoted", at, field(schema.TypeDatetime), "'2024-05-17T09:30:00Z'"},
		{"blob hex", []byte{0xDE, 0xAD}, field(schema.TypeBlob), "X'DEAD'"},
		{"null blob", nil, field(schema.TypeBlob), "NULL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dialect.PrintLiteral(tt.cell, tt.f))
		})
	}
}

func TestParseLiteral(t *testing.T) {
	cell, err := dialect.ParseLiteral("42", field(schema.TypeNumber))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cell)

	cell, err = dialect.ParseLiteral("3.5", field(schema.TypeNumber))
	require.NoError(t, err)
	assert.Equal(t, 3.5, cell)

	cell, err = dialect.ParseLiteral("", field(schema.TypeNumber))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cell)

	_, err = dialect.ParseLiteral("abc", field(schema.TypeNumber))
	assert.Error(t, err)

	cell, err = dialect.ParseLiteral("2024-05-17T09:30:00Z", field(schema.TypeDatetime))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC), cell)

	_, err = dialect.ParseLiteral("yesterday", field(schema.TypeDatetime))
	assert.Error(t, err)

	cell, err = dialect.ParseLiteral("raw", field(schema.TypeBlob))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), cell)
}

func TestParseBool(t *testing.T) {
	falsy := []string{"", "false", "FALSE", "False", "0", "000"}
	for _, s := range falsy {
		assert.False(t, dialect.ParseBool(s), "input %q", s)
	}
	truthy := []string{"1", "true", "TRUE", "00a", "yes"}
	for _, s := range truthy {
		assert.True(t, dialect.ParseBool(s), "input %q", s)
	}
}

func TestParseTimeLayouts(t *testing.T) {
	inputs := []string{
		"2024-05-17T09:30:00Z",
		"2024-05-17T09:30:00.123456789Z",
		"2024-05-17 09:30:00",
		"2024-05-17",
	}
	for _, s := range inputs {
		_, err := dialect.ParseTime(s)
		assert.NoError(t, err, "input %q", s)
	}

	_, err := dialect.ParseTime("17/05/2024")
	assert.Error(t, err)
}
