package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restable/restable/internal/testutil"
	"github.com/restable/restable/pkg/engine"
	"github.com/restable/restable/pkg/query"
	"github.com/restable/restable/pkg/schema"
)

const usersDDL = `CREATE TABLE "users" (
	"id" INTEGER PRIMARY KEY AUTOINCREMENT,
	"name" VARCHAR(255) NOT NULL,
	"age" INTEGER,
	"active" BOOLEAN,
	"created" DATETIME
)`

const lineItemsDDL = `CREATE TABLE "line_items" (
	"order_id" INTEGER NOT NULL,
	"sku" VARCHAR(64) NOT NULL,
	"qty" INTEGER,
	PRIMARY KEY ("order_id", "sku")
)`

func newUsersEngine(t *testing.T) (*engine.Engine, *testutil.FakeDialect) {
	t.Helper()
	d := testutil.NewFakeDialect("users", usersDDL)
	e, err := engine.New(context.Background(), d, "users", engine.Options{})
	require.NoError(t, err)
	return e, d
}

func TestNewBuildsModel(t *testing.T) {
	e, _ := newUsersEngine(t)

	assert.Equal(t, "users", e.Model().Table())
	assert.Equal(t, []string{"id", "name", "age", "active", "created"}, e.Model().Names())
	assert.Equal(t, "_id", e.IDField())
}

func TestNewUnknownTable(t *testing.T) {
	d := testutil.NewFakeDialect("users", usersDDL)
	_, err := engine.New(context.Background(), d, "missing", engine.Options{})
	assert.Error(t, err)
}

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		order  string
		limit  string
		want   string
	}{
		{
			name: "bare select",
			want: `SELECT "id", "name", "age", "active", "created" FROM "users"`,
		},
		{
			name:   "filter only",
			filter: "(age)-gt(30)",
			want:   `SELECT "id", "name", "age", "active", "created" FROM "users" WHERE ("age" > 30)`,
		},
		{
			name:   "all clauses",
			filter: "(active)-eq(true)",
			order:  "age DESC,name",
			limit:  "10",
			want:   `SELECT "id", "name", "age", "active", "created" FROM "users" WHERE ("active" = TRUE) ORDER BY "age" DESC,"name" ASC LIMIT 10`,
		},
		{
			name:  "order with unknown field dropped",
			order: "ghost",
			want:  `SELECT "id", "name", "age", "active", "created" FROM "users"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, d := newUsersEngine(t)

			filter, err := query.ParseFilter(tt.filter)
			require.NoError(t, err)
			rows, err := e.Select(context.Background(), engine.Request{
				Filter: filter,
				Order:  query.ParseOrder(tt.order),
				Limit:  query.ParseLimit(tt.limit),
			})
			require.NoError(t, err)
			defer rows.Close()

			assert.Equal(t, tt.want, d.LastSQL())
		})
	}
}

func TestSelectByIDSQL(t *testing.T) {
	e, d := newUsersEngine(t)

	rows, err := e.SelectByID(context.Background(), "7")
	require.NoError(t, err)
	defer rows.Close()

	assert.Equal(t,
		`SELECT "id", "name", "age", "active", "created" FROM "users" WHERE ("id" = 7)`,
		d.LastSQL())
}

func TestInsertSkipsNullAutoIncrement(t *testing.T) {
	e, d := newUsersEngine(t)

	err := e.Insert(context.Background(), []schema.Row{
		{nil, "John", int64(30), true, nil},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "users" ("name", "age", "active", "created") VALUES ('John', 30, TRUE, NULL)`,
		d.LastSQL())
}

func TestInsertKeepsExplicitKey(t *testing.T) {
	e, d := newUsersEngine(t)

	err := e.Insert(context.Background(), []schema.Row{
		{int64(5), "Jane", nil, nil, nil},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "users" ("id", "name", "age", "active", "created") VALUES (5, 'Jane', NULL, NULL, NULL)`,
		d.LastSQL())
}

func TestUpdateSQL(t *testing.T) {
	e, d := newUsersEngine(t)

	err := e.Update(context.Background(), "7", schema.Row{nil, "Joan", int64(31), false, nil})
	require.NoError(t, err)

	assert.Equal(t,
		`UPDATE "users" SET "name" = 'Joan', "age" = 31, "active" = FALSE, "created" = NULL WHERE ("id" = 7)`,
		d.LastSQL())
}

func TestDeleteSQL(t *testing.T) {
	e, d := newUsersEngine(t)

	require.NoError(t, e.Delete(context.Background(), "7"))
	assert.Equal(t, `DELETE FROM "users" WHERE ("id" = 7)`, d.LastSQL())
}

func TestDeleteWhereSQL(t *testing.T) {
	e, d := newUsersEngine(t)

	filter, err := query.ParseFilter("(age)-lt(18)")
	require.NoError(t, err)
	require.NoError(t, e.DeleteWhere(context.Background(), filter))
	assert.Equal(t, `DELETE FROM "users" WHERE ("age" < 18)`, d.LastSQL())
}

func TestDeleteWhereRefusesEmptyFilter(t *testing.T) {
	e, d := newUsersEngine(t)

	err := e.DeleteWhere(context.Background(), query.Empty)
	assert.Error(t, err)
	assert.NotContains(t, d.Executed, `DELETE FROM "users"`)
}

func TestSelectByIDMalformedID(t *testing.T) {
	e, _ := newUsersEngine(t)

	_, err := e.SelectByID(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRowSetCoercion(t *testing.T) {
	e, d := newUsersEngine(t)

	at := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	d.Results = [][]schema.Row{{
		// raw driver values, the way database/sql surfaces them
		{[]byte("1"), []byte("John"), int64(30), int64(1), at.Format(time.RFC3339)},
	}}

	rows, err := e.Select(context.Background(), engine.Request{})
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	row, err := rows.Row()
	require.NoError(t, err)

	assert.Equal(t, schema.Row{int64(1), "John", int64(30), true, at}, row)
	assert.False(t, rows.Next())
	assert.NoError(t, rows.Err())
}

func TestRowSetBooleanWireConvention(t *testing.T) {
	// drivers disagree on how booleans come back; all spellings of false
	// must coerce the same way the text codecs decode them
	tests := []struct {
		raw  schema.Cell
		want bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"0", false},
		{"000", false},
		{"", false},
		{[]byte{1}, true},
		{[]byte{0}, false},
		{[]byte("000"), false},
		{[]byte("true"), true},
		{int64(0), false},
		{int64(2), true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v(%T)", tt.raw, tt.raw), func(t *testing.T) {
			e, d := newUsersEngine(t)
			d.Results = [][]schema.Row{{
				{int64(1), "John", int64(30), tt.raw, nil},
			}}

			rows, err := e.Select(context.Background(), engine.Request{})
			require.NoError(t, err)
			defer rows.Close()

			require.True(t, rows.Next())
			row, err := rows.Row()
			require.NoError(t, err)
			assert.Equal(t, tt.want, row[3])
		})
	}
}
