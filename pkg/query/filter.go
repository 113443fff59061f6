// Package query parses the client-facing filter, order, and limit languages
// into dialect-independent values and renders them to SQL fragments against a
// data model. Parse values are request-scoped: build, render once, discard.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// SyntaxError reports client filter input that matches no production of the
// filter grammar. It carries the offending substring.
type SyntaxError struct {
	Fragment string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid filter syntax near %q", e.Fragment)
}

// CmpOp is a comparison operator of a filter condition.
type CmpOp string

const (
	OpLt   CmpOp = "lt"
	OpLe   CmpOp = "le"
	OpEq   CmpOp = "eq"
	OpGe   CmpOp = "ge"
	OpGt   CmpOp = "gt"
	OpLike CmpOp = "like"
)

var sqlCmpOps = map[CmpOp]string{
	OpLt:   " < ",
	OpLe:   " <= ",
	OpEq:   " = ",
	OpGe:   " >= ",
	OpGt:   " > ",
	OpLike: " LIKE ",
}

// BoolOp combines filter expressions.
type BoolOp string

const (
	OpAnd BoolOp = "and"
	OpOr  BoolOp = "or"
	OpNot BoolOp = "not"
)

// Expr is a parsed filter expression: a Condition leaf, a Combinator node, or
// the distinguished empty expression returned by ParseFilter("").
type Expr interface {
	// ToSQL renders the expression as a SQL predicate with no surrounding
	// WHERE keyword. The empty expression renders to "".
	ToSQL(model *schema.DataModel, d dialect.Dialect) (string, error)

	isExpr()
}

// Empty is the distinguished empty filter. It renders to the empty string and
// contributes no predicate when combined.
var Empty Expr = emptyExpr{}

type emptyExpr struct{}

func (emptyExpr) isExpr() {}

func (emptyExpr) ToSQL(*schema.DataModel, dialect.Dialect) (string, error) { return "", nil }

// Condition is a single field comparison leaf.
type Condition struct {
	Field   string
	Op      CmpOp
	Literal string
}

func (*Condition) isExpr() {}

// ToSQL renders `(ident <op> literal)`. When the field resolves against the
// model the literal goes through the field's type-aware printer; an unknown
// field keeps the raw literal untouched, a leniency kept from the original
// query language.
func (c *Condition) ToSQL(model *schema.DataModel, d dialect.Dialect) (string, error) {
	f, ok := model.Field(c.Field)
	literal := c.Literal
	if ok {
		cell, err := d.ParseLiteral(c.Literal, f)
		if err != nil {
			return "", &SyntaxError{Fragment: c.Literal}
		}
		literal = d.PrintLiteral(cell, f)
	}
	return "(" + d.QuoteIdentifier(c.Field) + sqlCmpOps[c.Op] + literal + ")", nil
}

// Combinator joins two sub-expressions with and/or, or negates Left when Op
// is not (Right is nil in that case).
type Combinator struct {
	Left  Expr
	Op    BoolOp
	Right Expr
}

func (*Combinator) isExpr() {}

func (c *Combinator) ToSQL(model *schema.DataModel, d dialect.Dialect) (string, error) {
	left, err := renderSide(c.Left, model, d)
	if err != nil {
		return "", err
	}
	if c.Op == OpNot {
		if left == "" {
			return "", nil
		}
		return "NOT (" + left + ")", nil
	}
	right, err := renderSide(c.Right, model, d)
	if err != nil {
		return "", err
	}
	// an empty side contributes no predicate
	switch {
	case left == "" && right == "":
		return "", nil
	case left == "":
		return right, nil
	case right == "":
		return left, nil
	}
	return "(" + left + " " + strings.ToUpper(string(c.Op)) + " " + right + ")", nil
}

func renderSide(e Expr, model *schema.DataModel, d dialect.Dialect) (string, error) {
	if e == nil {
		return "", nil
	}
	return e.ToSQL(model, d)
}

// condition := "(" field ")" "-" cmpOp "(" literal ")"
// field and literal must not contain unescaped quotes or parentheses.
var conditionRe = regexp.MustCompile(`(?i)^\(([^'"()]*)\)-(lt|le|eq|ge|gt|like)\(([^'"()]*)\)$`)

// ParseFilter parses a filter string into an expression tree. The empty
// string parses to Empty. Anything matching no grammar production fails with
// a SyntaxError naming the offending substring.
func ParseFilter(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, nil
	}

	if m := conditionRe.FindStringSubmatch(s); m != nil {
		return &Condition{Field: m[1], Op: CmpOp(strings.ToLower(m[2])), Literal: m[3]}, nil
	}

	if inner, ok := matchNegation(s); ok {
		sub, err := ParseFilter(inner)
		if err != nil {
			return nil, err
		}
		return &Combinator{Left: sub, Op: OpNot}, nil
	}

	if left, op, right, ok := splitConjunction(s); ok {
		// a conjunction needs both sides
		if strings.TrimSpace(left) == "" || strings.TrimSpace(right) == "" {
			return nil, &SyntaxError{Fragment: s}
		}
		leftExpr, err := ParseFilter(left)
		if err != nil {
			return nil, err
		}
		rightExpr, err := ParseFilter(right)
		if err != nil {
			return nil, err
		}
		return &Combinator{Left: leftExpr, Op: op, Right: rightExpr}, nil
	}

	// a filter wrapped in one outer parenthesis group is the inner filter
	if inner, ok := outerParens(s); ok {
		return ParseFilter(inner)
	}

	return nil, &SyntaxError{Fragment: s}
}

// matchNegation matches `-not( filter )` where the opening parenthesis pairs
// with the final character.
func matchNegation(s string) (string, bool) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "-not(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	body := s[len("-not"):]
	if inner, ok := outerParens(body); ok {
		return inner, true
	}
	return "", false
}

// splitConjunction finds a top-level `-and` / `-or` connective and returns
// the segments on either side.
func splitConjunction(s string) (left string, op BoolOp, right string, ok bool) {
	depth := 0
	lower := strings.ToLower(s)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '-':
			if depth != 0 {
				continue
			}
			switch {
			case strings.HasPrefix(lower[i:], "-and"):
				return s[:i], OpAnd, s[i+len("-and"):], true
			case strings.HasPrefix(lower[i:], "-or"):
				return s[:i], OpOr, s[i+len("-or"):], true
			}
		}
	}
	return "", "", "", false
}

// outerParens reports whether s is exactly one balanced parenthesis group and
// returns its content.
func outerParens(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return "", false
			}
		}
	}
	if depth != 0 {
		return "", false
	}
	return s[1 : len(s)-1], true
}
