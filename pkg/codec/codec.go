// Package codec serializes rows between wire formats and typed cells, driven
// by the data model's per-field logical types. One codec exists per content
// type; all of them share a single lookup table of per-type text rules.
package codec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/restable/restable/pkg/dialect"
	"github.com/restable/restable/pkg/schema"
)

// Supported media types.
const (
	TypeJSON       = "application/json"
	TypeCSV        = "text/csv"
	TypeMultipart  = "multipart/form-data"
	TypeURLEncoded = "application/x-www-form-urlencoded"
)

// SerializationError reports a malformed body for the declared content type.
// It carries the offending fragment; a malformed row is never dropped
// silently.
type SerializationError struct {
	ContentType string
	Fragment    string
	Err         error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot decode %s near %q: %v", e.ContentType, e.Fragment, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// RowSource is a forward-only supplier of rows, satisfied by engine.RowSet.
type RowSource interface {
	Next() bool
	Row() (schema.Row, error)
	Err() error
}

// Codec converts between one wire representation and typed rows. Encode
// buffers each row fully before emitting it, so a failing row never leaves a
// partial record on the wire.
type Codec interface {
	ContentType() string
	Encode(w io.Writer, model *schema.DataModel, rows RowSource) error
	Decode(r io.Reader, model *schema.DataModel) ([]schema.Row, error)
}

// ErrUnsupportedMediaType is returned by New for a content type no codec
// serves.
var ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")

// New selects a codec for a media type string such as
// "multipart/form-data; boundary=xyz". The media type may carry parameters;
// multipart requires a boundary, since a body cannot be split without one.
func New(mediaType string) (Codec, error) {
	return newCodec(mediaType, false)
}

// NewResponse selects a codec for producing a body. It differs from New only
// for multipart, where no inbound boundary exists: one is generated and
// advertised through the codec's ContentType.
func NewResponse(mediaType string) (Codec, error) {
	return newCodec(mediaType, true)
}

func newCodec(mediaType string, generateBoundary bool) (Codec, error) {
	if strings.TrimSpace(mediaType) == "" {
		return JSONCodec{}, nil
	}
	mt, params, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
	switch mt {
	case TypeJSON:
		return JSONCodec{}, nil
	case TypeCSV:
		return CSVCodec{}, nil
	case TypeURLEncoded:
		return URLEncodedCodec{}, nil
	case TypeMultipart:
		boundary := params["boundary"]
		if boundary == "" {
			if !generateBoundary {
				return nil, fmt.Errorf("%w: multipart/form-data without boundary", ErrUnsupportedMediaType)
			}
			boundary = randomBoundary()
		}
		return MultipartCodec{Boundary: boundary}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mt)
	}
}

func randomBoundary() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", buf)
}

// textRule is the serialize/deserialize pair for one logical type in the
// text-based formats. Nulls are handled by the caller before dispatch.
type textRule struct {
	encode func(schema.Cell) (string, error)
	decode func(string) (schema.Cell, error)
}

var textRules = map[schema.DataType]textRule{
	schema.TypeString: {
		encode: func(c schema.Cell) (string, error) { return cellString(c), nil },
		decode: func(s string) (schema.Cell, error) { return s, nil },
	},
	schema.TypeNumber: {
		encode: encodeNumber,
		decode: decodeNumber,
	},
	schema.TypeBoolean: {
		encode: func(c schema.Cell) (string, error) {
			if cellBool(c) {
				return "true", nil
			}
			return "false", nil
		},
		decode: func(s string) (schema.Cell, error) { return dialect.ParseBool(s), nil },
	},
	schema.TypeDatetime: {
		encode: func(c schema.Cell) (string, error) {
			if t, ok := cellTime(c); ok {
				return t.Format(time.RFC3339Nano), nil
			}
			return "", fmt.Errorf("not a datetime value: %v", c)
		},
		decode: func(s string) (schema.Cell, error) {
			if s == "" {
				return nil, nil
			}
			return dialect.ParseTime(s)
		},
	},
	schema.TypeBlob: {
		encode: func(c schema.Cell) (string, error) {
			if b, ok := c.([]byte); ok {
				return base64.StdEncoding.EncodeToString(b), nil
			}
			return "", fmt.Errorf("not a blob value: %v", c)
		},
		decode: func(s string) (schema.Cell, error) {
			return base64.StdEncoding.DecodeString(s)
		},
	},
}

// encodeCell renders a cell as wire text for f's logical type. Null encodes
// to the empty string.
func encodeCell(c schema.Cell, f schema.Field) (string, error) {
	if schema.IsNull(c) {
		return "", nil
	}
	return textRules[typeOf(f)].encode(c)
}

// decodeCell converts wire text to a typed cell for f's logical type. A null
// blob decodes to a zero-length buffer, not nil.
func decodeCell(text string, f schema.Field, present bool) (schema.Cell, error) {
	t := typeOf(f)
	if !present {
		if t == schema.TypeBlob {
			return []byte{}, nil
		}
		return nil, nil
	}
	return textRules[t].decode(text)
}

func typeOf(f schema.Field) schema.DataType {
	if _, ok := textRules[f.Type]; ok {
		return f.Type
	}
	return schema.TypeString
}

func encodeNumber(c schema.Cell) (string, error) {
	switch n := c.(type) {
	case int64:
		return strconv.FormatInt(n, 10), nil
	case int:
		return strconv.Itoa(n), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
	case string:
		return n, nil
	default:
		return "", fmt.Errorf("not a number value: %v", c)
	}
}

func decodeNumber(s string) (schema.Cell, error) {
	// an empty number cell reads as zero
	if s == "" {
		return int64(0), nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func cellString(c schema.Cell) string {
	switch s := c.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(c)
	}
}

func cellBool(c schema.Cell) bool {
	switch b := c.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return dialect.ParseBool(b)
	default:
		return false
	}
}

func cellTime(c schema.Cell) (time.Time, bool) {
	switch t := c.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		if parsed, err := dialect.ParseTime(t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// SliceSource adapts a row slice to RowSource.
type SliceSource struct {
	Rows []schema.Row
	pos  int
}

func (s *SliceSource) Next() bool {
	if s.pos >= len(s.Rows) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Row() (schema.Row, error) { return s.Rows[s.pos-1], nil }

func (s *SliceSource) Err() error { return nil }
