// Package engine orchestrates one table's CRUD pipeline: it builds SQL from
// the parsed filter/order/limit values, executes it through the table's
// dialect, and materializes the driver cursor as a typed RowSet. Each request
// walks validate, build, execute, materialize; encoding is the codec's job.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/idcodec"
	"github.com/restable/restable/pkg/query"
	"github.com/restable/restable/pkg/schema"
)

// ErrNotFound reports an id that matched no row.
var ErrNotFound = errors.New("row not found")

// Options configures one engine. The zero value is usable; settings are
// immutable after New, never read from global state.
type Options struct {
	// IDField is the synthetic id field name exposed to clients.
	// Defaults to "_id".
	IDField string
	// Separator joins percent-encoded primary-key values into one composite
	// id. Defaults to "_".
	Separator string
	// IDCodec, when set, wraps composite ids in opaque authenticated tokens.
	IDCodec *idcodec.Codec
	// Schema narrows or renames which columns become fields.
	Schema schema.BuildOptions
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Engine serves CRUD for one table. Safe for concurrent use: the model and
// options never change after construction.
type Engine struct {
	model  *schema.DataModel
	d      dialect.Dialect
	opts   Options
	logger *zap.Logger
}

// New introspects table through d and builds the engine's data model.
// A table description that cannot be parsed is fatal.
func New(ctx context.Context, d dialect.Dialect, table string, opts Options) (*Engine, error) {
	if opts.IDField == "" {
		opts.IDField = "_id"
	}
	if opts.Separator == "" {
		opts.Separator = "_"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Schema.Logger == nil {
		opts.Schema.Logger = opts.Logger
	}

	ddl, err := d.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	model, err := schema.Build(ddl, d, &opts.Schema)
	if err != nil {
		return nil, fmt.Errorf("introspect %q: %w", table, err)
	}
	return &Engine{model: model, d: d, opts: opts, logger: opts.Logger}, nil
}

// Model returns the engine's data model.
func (e *Engine) Model() *schema.DataModel { return e.model }

// Dialect returns the engine's dialect.
func (e *Engine) Dialect() dialect.Dialect { return e.d }

// IDField returns the synthetic id field name.
func (e *Engine) IDField() string { return e.opts.IDField }

// Request carries the parsed query languages of one read.
type Request struct {
	Filter query.Expr
	Order  query.OrderSpec
	Limit  query.LimitSpec
}

// Select executes a read and returns its row set. The caller owns the set
// and must close it.
func (e *Engine) Select(ctx context.Context, req Request) (*RowSet, error) {
	sql, err := e.buildSelect(req)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("select", zap.String("table", e.model.Table()), zap.String("sql", sql))
	cursor, err := e.d.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &RowSet{model: e.model, d: e.d, cursor: cursor}, nil
}

// SelectByID executes a read for one composite id.
func (e *Engine) SelectByID(ctx context.Context, id string) (*RowSet, error) {
	where, err := e.idPredicate(id)
	if err != nil {
		return nil, err
	}
	sql := e.selectHead() + " WHERE " + where
	e.logger.Debug("select by id", zap.String("table", e.model.Table()), zap.String("sql", sql))
	cursor, err := e.d.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &RowSet{model: e.model, d: e.d, cursor: cursor}, nil
}

// Insert writes rows. Auto-increment cells that are null are left to the
// database.
func (e *Engine) Insert(ctx context.Context, rows []schema.Row) error {
	for _, row := range rows {
		var cols, vals []string
		for i, f := range e.model.Fields() {
			cell := cellAt(row, i)
			if f.IsAutoIncrement && schema.IsNull(cell) {
				continue
			}
			cols = append(cols, e.d.QuoteIdentifier(f.Name))
			vals = append(vals, e.d.PrintLiteral(cell, f))
		}
		if len(cols) == 0 {
			continue
		}
		sql := "INSERT INTO " + e.d.QuoteIdentifier(e.model.Table()) +
			" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")"
		e.logger.Debug("insert", zap.String("table", e.model.Table()), zap.String("sql", sql))
		if err := e.d.Exec(ctx, sql); err != nil {
			return err
		}
	}
	return nil
}

// Update replaces the non-key fields of the row identified by id.
func (e *Engine) Update(ctx context.Context, id string, row schema.Row) error {
	where, err := e.idPredicate(id)
	if err != nil {
		return err
	}
	var sets []string
	for i, f := range e.model.Fields() {
		if f.IsPrimaryKey || f.IsAutoIncrement {
			continue
		}
		sets = append(sets, e.d.QuoteIdentifier(f.Name)+" = "+e.d.PrintLiteral(cellAt(row, i), f))
	}
	if len(sets) == 0 {
		return nil
	}
	sql := "UPDATE " + e.d.QuoteIdentifier(e.model.Table()) +
		" SET " + strings.Join(sets, ", ") + " WHERE " + where
	e.logger.Debug("update", zap.String("table", e.model.Table()), zap.String("sql", sql))
	return e.d.Exec(ctx, sql)
}

// Delete removes the row identified by id.
func (e *Engine) Delete(ctx context.Context, id string) error {
	where, err := e.idPredicate(id)
	if err != nil {
		return err
	}
	sql := "DELETE FROM " + e.d.QuoteIdentifier(e.model.Table()) + " WHERE " + where
	e.logger.Debug("delete", zap.String("table", e.model.Table()), zap.String("sql", sql))
	return e.d.Exec(ctx, sql)
}

// DeleteWhere removes every row matching the filter. An empty filter is
// rejected rather than truncating the table.
func (e *Engine) DeleteWhere(ctx context.Context, filter query.Expr) error {
	where, err := filter.ToSQL(e.model, e.d)
	if err != nil {
		return err
	}
	if where == "" {
		return errors.New("refusing to delete without a filter")
	}
	sql := "DELETE FROM " + e.d.QuoteIdentifier(e.model.Table()) + " WHERE " + where
	e.logger.Debug("delete where", zap.String("table", e.model.Table()), zap.String("sql", sql))
	return e.d.Exec(ctx, sql)
}

func (e *Engine) selectHead() string {
	cols := make([]string, e.model.Len())
	for i, f := range e.model.Fields() {
		cols[i] = e.d.QuoteIdentifier(f.Name)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + e.d.QuoteIdentifier(e.model.Table())
}

// buildSelect composes the statement from the parsed fragments; empty
// fragments contribute no clause at all.
func (e *Engine) buildSelect(req Request) (string, error) {
	var b strings.Builder
	b.WriteString(e.selectHead())

	filter := req.Filter
	if filter == nil {
		filter = query.Empty
	}
	where, err := filter.ToSQL(e.model, e.d)
	if err != nil {
		return "", err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if order := req.Order.ToSQL(e.model, e.d); order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}
	if limit := req.Limit.ToSQL(); limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(limit)
	}
	return b.String(), nil
}

func cellAt(row schema.Row, i int) schema.Cell {
	if i < len(row) {
		return row[i]
	}
	return nil
}
