package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrSchemaParse is returned when a table description cannot be matched
// against the expected CREATE TABLE grammar at all. It is fatal: the resource
// cannot initialize without a model.
var ErrSchemaParse = errors.New("unparsable table description")

// TypeMapper maps a dialect's native column type to a logical type.
// Implemented by each dialect; unrecognized native types must degrade to
// TypeString rather than erroring.
type TypeMapper interface {
	DataType(nativeType string) DataType
}

// BuildOptions controls which columns of the description become fields.
type BuildOptions struct {
	// ExcludePrefix drops any column whose name starts with the prefix.
	ExcludePrefix string
	// IncludeFields, when non-empty, drops any column not listed.
	IncludeFields []string
	// Logger receives soft warnings for skipped fragments. Defaults to a nop
	// logger.
	Logger *zap.Logger
}

var createTableRe = regexp.MustCompile(`(?is)create\s+table\s+(?:if\s+not\s+exists\s+)?(.+?)\s*\(`)

// Build parses a native "describe table" text into a DataModel. The column
// block is split on top-level commas; each fragment is matched first as a
// column definition, then as a table-level PRIMARY KEY constraint, and is
// otherwise skipped with a warning.
func Build(tableDescription string, types TypeMapper, opts *BuildOptions) (*DataModel, error) {
	if opts == nil {
		opts = &BuildOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := createTableRe.FindStringSubmatchIndex(tableDescription)
	if loc == nil {
		return nil, fmt.Errorf("%w: %q", ErrSchemaParse, truncate(tableDescription, 80))
	}
	table := unquoteIdent(strings.TrimSpace(tableDescription[loc[2]:loc[3]]))

	body, ok := parenBody(tableDescription[loc[1]-1:])
	if !ok {
		return nil, fmt.Errorf("%w: unbalanced column block for table %q", ErrSchemaParse, table)
	}

	var fields []Field
	var tablePKs []string
	for _, fragment := range splitTopLevel(body, ',') {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		if f, ok := parseColumn(fragment, types); ok {
			if excluded(f.Name, opts) {
				continue
			}
			fields = append(fields, f)
			continue
		}
		if cols, ok := parsePrimaryKeyConstraint(fragment); ok {
			tablePKs = append(tablePKs, cols...)
			continue
		}
		logger.Warn("skipping unsupported field definition",
			zap.String("table", table),
			zap.String("fragment", truncate(fragment, 120)))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no columns found for table %q", ErrSchemaParse, table)
	}

	for _, pk := range tablePKs {
		for i := range fields {
			if fields[i].Name == pk {
				fields[i].IsPrimaryKey = true
			}
		}
	}

	return NewDataModel(table, fields)
}

func excluded(name string, opts *BuildOptions) bool {
	if opts.ExcludePrefix != "" && strings.HasPrefix(name, opts.ExcludePrefix) {
		return true
	}
	if len(opts.IncludeFields) > 0 {
		for _, inc := range opts.IncludeFields {
			if inc == name {
				return false
			}
		}
		return true
	}
	return false
}

// constraint keywords that terminate the native type token sequence
var constraintKeywords = map[string]bool{
	"primary": true, "not": true, "null": true, "default": true,
	"unique": true, "references": true, "check": true, "collate": true,
	"auto_increment": true, "autoincrement": true, "generated": true,
	"constraint": true, "on": true, "comment": true, "unsigned": true,
}

// parseColumn matches one fragment as `name type[(length[,scale])] constraints`.
func parseColumn(fragment string, types TypeMapper) (Field, bool) {
	name, rest, ok := takeIdent(fragment)
	if !ok {
		return Field{}, false
	}
	// reserved words open table-level constraints, not columns
	switch strings.ToLower(name) {
	case "primary", "constraint", "foreign", "unique", "check", "key", "index":
		return Field{}, false
	}

	var typeTokens []string
	var maxLength int
	rest = strings.TrimSpace(rest)
	for rest != "" {
		if rest[0] == '(' {
			body, ok := parenBody(rest)
			if !ok {
				return Field{}, false
			}
			params := splitTopLevel(body, ',')
			if n, err := strconv.Atoi(strings.TrimSpace(params[0])); err == nil && n >= 0 {
				maxLength = n
			}
			rest = strings.TrimSpace(rest[len(body)+2:])
			break
		}
		token, tail, ok := takeIdent(rest)
		if !ok {
			break
		}
		if constraintKeywords[strings.ToLower(token)] {
			break
		}
		typeTokens = append(typeTokens, token)
		rest = strings.TrimSpace(tail)
	}
	if len(typeTokens) == 0 {
		return Field{}, false
	}
	nativeType := strings.Join(typeTokens, " ")

	f := Field{
		Name:       name,
		NativeType: nativeType,
		Type:       types.DataType(nativeType),
		MaxLength:  maxLength,
	}

	upper := " " + strings.ToUpper(rest) + " "
	if strings.Contains(upper, " PRIMARY KEY") {
		f.IsPrimaryKey = true
		f.IsNotNull = true
	}
	if strings.Contains(upper, " NOT NULL ") {
		f.IsNotNull = true
	}
	if strings.Contains(upper, "AUTO_INCREMENT") || strings.Contains(upper, "AUTOINCREMENT") ||
		strings.Contains(upper, " IDENTITY ") ||
		strings.Contains(strings.ToUpper(nativeType), "SERIAL") {
		f.IsAutoIncrement = true
	}
	return f, true
}

var tablePKRe = regexp.MustCompile(`(?i)^(?:constraint\s+\S+\s+)?primary\s+key\s*\(([^)]+)\)`)

func parsePrimaryKeyConstraint(fragment string) ([]string, bool) {
	m := tablePKRe.FindStringSubmatch(fragment)
	if m == nil {
		return nil, false
	}
	var cols []string
	for _, col := range strings.Split(m[1], ",") {
		cols = append(cols, unquoteIdent(strings.TrimSpace(col)))
	}
	return cols, true
}

// splitTopLevel splits s on sep, ignoring separators nested inside
// parentheses, e.g. DECIMAL(10,2) stays one fragment.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
			current.WriteByte(s[i])
		case ')':
			depth--
			current.WriteByte(s[i])
		case sep:
			if depth == 0 {
				parts = append(parts, current.String())
				current.Reset()
			} else {
				current.WriteByte(s[i])
			}
		default:
			current.WriteByte(s[i])
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// parenBody returns the content of the parenthesis group s starts with.
func parenBody(s string) (string, bool) {
	if s == "" || s[0] != '(' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], true
			}
		}
	}
	return "", false
}

// takeIdent consumes one identifier (optionally quoted with "", ``, or [])
// from the front of s.
func takeIdent(s string) (ident, rest string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	var close byte
	switch s[0] {
	case '"':
		close = '"'
	case '`':
		close = '`'
	case '[':
		close = ']'
	}
	if close != 0 {
		if end := strings.IndexByte(s[1:], close); end >= 0 {
			return s[1 : end+1], s[end+2:], true
		}
		return "", "", false
	}
	end := 0
	for end < len(s) {
		c := s[end]
		if c == '_' || c == '$' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(end > 0 && c >= '0' && c <= '9') {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return "", "", false
	}
	return s[:end], s[end:], true
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') ||
			(s[0] == '`' && s[len(s)-1] == '`') ||
			(s[0] == '[' && s[len(s)-1] == ']') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
