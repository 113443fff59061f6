package query

import "strconv"

// LimitSpec caps the number of rows a query returns. Zero or negative means
// no limit.
type LimitSpec int

// ParseLimit parses a bare non-negative base-10 integer. Any other string
// parses to "no limit", never an error.
func ParseLimit(s string) LimitSpec {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return LimitSpec(n)
}

// ToSQL renders the bare row count with no LIMIT keyword, or the empty string
// when unset.
func (l LimitSpec) ToSQL() string {
	if l <= 0 {
		return ""
	}
	return strconv.Itoa(int(l))
}
