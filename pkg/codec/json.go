package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/restable/restable/pkg/schema"
)

// JSONCodec encodes a row set as an array of objects keyed by field name.
// Decode accepts either a single object or an array of objects.
type JSONCodec struct{}

func (JSONCodec) ContentType() string { return TypeJSON }

func (JSONCodec) Encode(w io.Writer, model *schema.DataModel, rows RowSource) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	first := true
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return err
		}
		// buffer the full row before emitting anything
		buf, err := marshalRow(row, model)
		if err != nil {
			return err
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "]")
	return err
}

func marshalRow(row schema.Row, model *schema.DataModel) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range model.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		buf.Write(name)
		buf.WriteByte(':')
		value, err := jsonValue(cellAt(row, i), f)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonValue(c schema.Cell, f schema.Field) ([]byte, error) {
	if schema.IsNull(c) {
		return []byte("null"), nil
	}
	switch typeOf(f) {
	case schema.TypeNumber:
		text, err := encodeNumber(c)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	case schema.TypeBoolean:
		if cellBool(c) {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case schema.TypeDatetime:
		if t, ok := cellTime(c); ok {
			return json.Marshal(t.Format(time.RFC3339Nano))
		}
		return nil, fmt.Errorf("not a datetime value: %v", c)
	case schema.TypeBlob:
		b, ok := c.([]byte)
		if !ok {
			return nil, fmt.Errorf("not a blob value: %v", c)
		}
		return json.Marshal(base64.StdEncoding.EncodeToString(b))
	default:
		return json.Marshal(cellString(c))
	}
}

func (JSONCodec) Decode(r io.Reader, model *schema.DataModel) ([]schema.Row, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	// UseNumber keeps large integer ids exact instead of routing them
	// through float64
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var objects []map[string]any
	if trimmed[0] == '[' {
		if err := dec.Decode(&objects); err != nil {
			return nil, &SerializationError{ContentType: TypeJSON, Fragment: clip(trimmed), Err: err}
		}
	} else {
		var object map[string]any
		if err := dec.Decode(&object); err != nil {
			return nil, &SerializationError{ContentType: TypeJSON, Fragment: clip(trimmed), Err: err}
		}
		objects = []map[string]any{object}
	}
	if dec.More() {
		return nil, &SerializationError{ContentType: TypeJSON, Fragment: clip(trimmed),
			Err: fmt.Errorf("trailing data after JSON value")}
	}

	rows := make([]schema.Row, 0, len(objects))
	for _, object := range objects {
		row := model.NewRow()
		for i, f := range model.Fields() {
			raw, present := object[f.Name]
			cell, err := jsonCell(raw, present, f)
			if err != nil {
				return nil, &SerializationError{ContentType: TypeJSON, Fragment: f.Name, Err: err}
			}
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func jsonCell(raw any, present bool, f schema.Field) (schema.Cell, error) {
	if !present || raw == nil {
		return decodeCell("", f, false)
	}
	switch v := raw.(type) {
	case json.Number:
		if typeOf(f) == schema.TypeNumber {
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
			fl, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", v.String())
			}
			return fl, nil
		}
		return decodeCell(v.String(), f, true)
	case float64:
		if typeOf(f) == schema.TypeNumber {
			if v == float64(int64(v)) {
				return int64(v), nil
			}
			return v, nil
		}
		text, _ := encodeNumber(v)
		return decodeCell(text, f, true)
	case bool:
		if typeOf(f) == schema.TypeBoolean {
			return v, nil
		}
		if v {
			return decodeCell("true", f, true)
		}
		return decodeCell("false", f, true)
	case string:
		return decodeCell(v, f, true)
	default:
		return nil, fmt.Errorf("unsupported JSON value %T for field %q", raw, f.Name)
	}
}

func cellAt(row schema.Row, i int) schema.Cell {
	if i < len(row) {
		return row[i]
	}
	return nil
}

func clip(b []byte) string {
	const max = 64
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
