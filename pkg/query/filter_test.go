package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restable/restable/internal/testutil"
	"github.com/restable/restable/pkg/query"
	"github.com/restable/restable/pkg/schema"
)

func newTestModel(t *testing.T) *schema.DataModel {
	t.Helper()
	model, err := schema.NewDataModel("users", []schema.Field{
		{Name: "id", Type: schema.TypeNumber, NativeType: "INTEGER", IsPrimaryKey: true},
		{Name: "name", Type: schema.TypeString, NativeType: "VARCHAR"},
		{Name: "age", Type: schema.TypeNumber, NativeType: "INTEGER"},
		{Name: "a", Type: schema.TypeNumber, NativeType: "INTEGER"},
		{Name: "b", Type: schema.TypeNumber, NativeType: "INTEGER"},
		{Name: "active", Type: schema.TypeBoolean, NativeType: "BOOLEAN"},
	})
	require.NoError(t, err)
	return model
}

func TestParseFilterToSQL(t *testing.T) {
	model := newTestModel(t)
	d := testutil.NewFakeDialect("users", "")

	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{"empty", "", ""},
		{"string equality", "(name)-eq(John)", `("name" = 'John')`},
		{"number comparison", "(age)-gt(30)", `("age" > 30)`},
		{"negation", "-not((age)-gt(30))", `NOT (("age" > 30))`},
		{"three-part conjunction", "(a)-eq(1)-and(b)-eq(2)", `(("a" = 1) AND ("b" = 2))`},
		{"parenthesized conjunction", "((a)-eq(1))-and((b)-eq(2))", `(("a" = 1) AND ("b" = 2))`},
		{"disjunction", "(a)-eq(1)-or(b)-eq(2)", `(("a" = 1) OR ("b" = 2))`},
		{"nested combinators", "-not((a)-eq(1)-and(b)-eq(2))", `NOT ((("a" = 1) AND ("b" = 2)))`},
		{"like operator", "(name)-like(Jo%)", `("name" LIKE 'Jo%')`},
		{"case-insensitive operator", "(name)-EQ(John)", `("name" = 'John')`},
		{"boolean literal", "(active)-eq(true)", `("active" = TRUE)`},
		{"le and ge", "(age)-ge(18)-and(age)-le(65)", `(("age" >= 18) AND ("age" <= 65))`},
		// a field absent from the model keeps its raw literal
		{"unknown field passes raw literal", "(ghost)-eq(abc)", `("ghost" = abc)`},
		{"whole filter in outer parens", "((name)-eq(John))", `("name" = 'John')`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := query.ParseFilter(tt.filter)
			require.NoError(t, err)

			got, err := expr.ToSQL(model, d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// rendering is deterministic on repeated calls
			again, err := expr.ToSQL(model, d)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseFilterSyntaxError(t *testing.T) {
	tests := []struct {
		name   string
		filter string
	}{
		{"bare word", "name"},
		{"unknown operator", "(name)-foo(John)"},
		{"unbalanced parens", "(name)-eq(John"},
		{"quote in field", `('name')-eq(John)`},
		{"dangling conjunction", "(a)-eq(1)-and"},
		{"empty negation body", "-not"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := query.ParseFilter(tt.filter)
			var synErr *query.SyntaxError
			require.ErrorAs(t, err, &synErr)
			assert.NotEmpty(t, synErr.Fragment)
		})
	}
}

func TestParseFilterEmptyIsDistinguished(t *testing.T) {
	expr, err := query.ParseFilter("   ")
	require.NoError(t, err)
	assert.Equal(t, query.Empty, expr)
}

func TestCombinatorEmptySideAbsorbed(t *testing.T) {
	model := newTestModel(t)
	d := testutil.NewFakeDialect("users", "")

	cond := &query.Condition{Field: "age", Op: query.OpGt, Literal: "30"}
	c := &query.Combinator{Left: query.Empty, Op: query.OpAnd, Right: cond}
	got, err := c.ToSQL(model, d)
	require.NoError(t, err)
	assert.Equal(t, `("age" > 30)`, got)

	c = &query.Combinator{Left: query.Empty, Op: query.OpAnd, Right: query.Empty}
	got, err = c.ToSQL(model, d)
	require.NoError(t, err)
	assert.Empty(t, got)

	c = &query.Combinator{Left: query.Empty, Op: query.OpNot}
	got, err = c.ToSQL(model, d)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConditionBadLiteralForType(t *testing.T) {
	model := newTestModel(t)
	d := testutil.NewFakeDialect("users", "")

	expr, err := query.ParseFilter("(age)-eq(abc)")
	require.NoError(t, err)

	_, err = expr.ToSQL(model, d)
	var synErr *query.SyntaxError
	require.ErrorAs(t, err, &synErr)
}
