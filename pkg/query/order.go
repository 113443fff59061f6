package query

import (
	"regexp"
	"strings"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// OrderItem is one `field [ASC|DESC]` pair.
type OrderItem struct {
	Field      string
	Descending bool
}

// OrderSpec is an ordered list of sort pairs. Validation is two-stage:
// token syntax at parse time, field existence at render time.
type OrderSpec struct {
	items []OrderItem
}

// Items returns the parsed pairs in original order.
func (o OrderSpec) Items() []OrderItem { return o.items }

// IsEmpty reports whether no sort pairs were parsed.
func (o OrderSpec) IsEmpty() bool { return len(o.items) == 0 }

var orderTokenRe = regexp.MustCompile(`(?i)^\s*([^\s,'"()]+)(?:\s+(asc|desc))?\s*$`)

// ParseOrder parses a comma-separated list of `field [ASC|DESC]` tokens.
// Direction is case-insensitive and defaults to ascending. Tokens that match
// no production are dropped, never an error.
func ParseOrder(s string) OrderSpec {
	var spec OrderSpec
	for _, token := range strings.Split(s, ",") {
		m := orderTokenRe.FindStringSubmatch(token)
		if m == nil || m[1] == "" {
			continue
		}
		spec.items = append(spec.items, OrderItem{
			Field:      m[1],
			Descending: strings.EqualFold(m[2], "desc"),
		})
	}
	return spec
}

// ToSQL renders `ident ASC|DESC` pairs joined by commas, in original order,
// with no ORDER BY keyword. Fields absent from the model are dropped here,
// not at parse time.
func (o OrderSpec) ToSQL(model *schema.DataModel, d dialect.Dialect) string {
	var parts []string
	for _, item := range o.items {
		if _, ok := model.Field(item.Field); !ok {
			continue
		}
		direction := " ASC"
		if item.Descending {
			direction = " DESC"
		}
		parts = append(parts, d.QuoteIdentifier(item.Field)+direction)
	}
	return strings.Join(parts, ",")
}
