package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/restable/restable/pkg/schema"
)

// RowID renders the composite id of a row: each primary-key value is
// percent-encoded individually and joined by the configured separator. The
// separator itself is escaped inside values so it can never be confused with
// the join point. With an id codec configured the plain id is wrapped in an
// opaque token.
func (e *Engine) RowID(row schema.Row) (string, error) {
	pks := e.model.PrimaryKeys()
	if len(pks) == 0 {
		return "", fmt.Errorf("table %q has no primary key", e.model.Table())
	}
	parts := make([]string, len(pks))
	for i, f := range pks {
		cell := cellAt(row, e.model.FieldIndex(f.Name))
		text, err := encodeIDCell(cell, f)
		if err != nil {
			return "", err
		}
		parts[i] = e.escapeIDPart(text)
	}
	plain := strings.Join(parts, e.opts.Separator)
	if e.opts.IDCodec == nil {
		return plain, nil
	}
	return e.opts.IDCodec.Encode(plain, plain)
}

// idPredicate turns a composite id back into a primary-key equality
// predicate.
func (e *Engine) idPredicate(id string) (string, error) {
	if e.opts.IDCodec != nil {
		plain, err := e.opts.IDCodec.Decode(id)
		if err != nil {
			return "", err
		}
		id = plain
	}
	pks := e.model.PrimaryKeys()
	if len(pks) == 0 {
		return "", fmt.Errorf("table %q has no primary key", e.model.Table())
	}
	parts := strings.Split(id, e.opts.Separator)
	if len(parts) != len(pks) {
		return "", fmt.Errorf("%w: id %q has %d parts, want %d", ErrNotFound, id, len(parts), len(pks))
	}
	var conds []string
	for i, f := range pks {
		value, err := url.QueryUnescape(parts[i])
		if err != nil {
			return "", fmt.Errorf("%w: malformed id part %q", ErrNotFound, parts[i])
		}
		cell, err := e.d.ParseLiteral(value, f)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		conds = append(conds, "("+e.d.QuoteIdentifier(f.Name)+" = "+e.d.PrintLiteral(cell, f)+")")
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return "(" + strings.Join(conds, " AND ") + ")", nil
}

// escapeIDPart percent-encodes one key value, additionally escaping the
// separator character which standard percent-encoding may leave bare.
func (e *Engine) escapeIDPart(s string) string {
	escaped := url.QueryEscape(s)
	sep := e.opts.Separator
	if strings.Contains(escaped, sep) {
		escaped = strings.ReplaceAll(escaped, sep, fmt.Sprintf("%%%02X", sep[0]))
	}
	return escaped
}

func encodeIDCell(c schema.Cell, f schema.Field) (string, error) {
	if schema.IsNull(c) {
		return "", fmt.Errorf("null primary key value for field %q", f.Name)
	}
	switch v := c.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}
