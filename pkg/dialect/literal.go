package dialect

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/restable/restable/pkg/schema"
)

// QuoteString renders s as an ANSI single-quoted string literal, doubling
// embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// PrintLiteral renders a cell as an ANSI SQL literal for f's logical type.
// Engine-specific dialects wrap it where their syntax diverges (bytea, bit
// booleans, backtick identifiers).
func PrintLiteral(v schema.Cell, f schema.Field) string {
	if schema.IsNull(v) {
		return "NULL"
	}
	switch f.Type {
	case schema.TypeNumber:
		return printNumber(v)
	case schema.TypeBoolean:
		if asBool(v) {
			return "TRUE"
		}
		return "FALSE"
	case schema.TypeDatetime:
		if t, ok := asTime(v); ok {
			return QuoteString(t.Format(time.RFC3339Nano))
		}
		return QuoteString(fmt.Sprint(v))
	case schema.TypeBlob:
		if b, ok := v.([]byte); ok {
			return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
		}
		return QuoteString(fmt.Sprint(v))
	default:
		return QuoteString(fmt.Sprint(v))
	}
}

// ParseLiteral converts a client-supplied literal to a typed cell for f's
// logical type. Unparseable numbers and dates are reported, not coerced.
func ParseLiteral(text string, f schema.Field) (schema.Cell, error) {
	switch f.Type {
	case schema.TypeNumber:
		if text == "" {
			return int64(0), nil
		}
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		fl, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number literal %q for field %q", text, f.Name)
		}
		return fl, nil
	case schema.TypeBoolean:
		return ParseBool(text), nil
	case schema.TypeDatetime:
		t, err := ParseTime(text)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime literal %q for field %q: %w", text, f.Name, err)
		}
		return t, nil
	case schema.TypeBlob:
		return []byte(text), nil
	default:
		return text, nil
	}
}

// ParseBool implements the wire boolean convention: the empty string, "false"
// (any case) and all-zero digit strings are false, everything else is true.
func ParseBool(text string) bool {
	if text == "" || strings.EqualFold(text, "false") {
		return false
	}
	allZero := true
	for i := 0; i < len(text); i++ {
		if text[i] != '0' {
			allZero = false
			break
		}
	}
	return !allZero
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts any of the date layouts the supported engines emit.
func ParseTime(text string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", text)
}

func printNumber(v schema.Cell) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func asBool(v schema.Cell) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return ParseBool(b)
	default:
		return false
	}
}

func asTime(v schema.Cell) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		if parsed, err := ParseTime(t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
