package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/restable/restable/internal/testutil"
	"github.com/restable/restable/pkg/query"
)

func TestParseOrderToSQL(t *testing.T) {
	model := newTestModel(t)
	d := testutil.NewFakeDialect("users", "")

	tests := []struct {
		name  string
		order string
		want  string
	}{
		{"empty", "", ""},
		{"single ascending default", "name", `"name" ASC`},
		{"explicit directions", "age DESC,name", `"age" DESC,"name" ASC`},
		{"case-insensitive direction", "age desc", `"age" DESC`},
		{"unknown field dropped at render", "age DESC,ghost,name ASC", `"age" DESC,"name" ASC`},
		{"all unknown", "ghost,phantom DESC", ""},
		{"malformed tokens dropped at parse", "age DESC,na me,name", `"age" DESC,"name" ASC`},
		{"surrounding whitespace", "  age   DESC , name ", `"age" DESC,"name" ASC`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := query.ParseOrder(tt.order)
			assert.Equal(t, tt.want, spec.ToSQL(model, d))
		})
	}
}

func TestParseOrderItems(t *testing.T) {
	spec := query.ParseOrder("age DESC,name")
	items := spec.Items()
	assert.Len(t, items, 2)
	assert.Equal(t, query.OrderItem{Field: "age", Descending: true}, items[0])
	assert.Equal(t, query.OrderItem{Field: "name", Descending: false}, items[1])

	assert.True(t, query.ParseOrder("").IsEmpty())
	assert.True(t, query.ParseOrder(",,,").IsEmpty())
}
