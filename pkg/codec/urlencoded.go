package codec

import (
	"bufio"
	"io"
	"net/url"
	"strings"

	"github.com/restable/restable/pkg/schema"
)

// URLEncodedCodec maps one row to `field=value` pairs joined by `&`, values
// percent-encoded. Multiple rows are separated by newlines; null cells are
// omitted from the pair list.
type URLEncodedCodec struct{}

func (URLEncodedCodec) ContentType() string { return TypeURLEncoded }

func (URLEncodedCodec) Encode(w io.Writer, model *schema.DataModel, rows RowSource) error {
	first := true
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return err
		}
		var pairs []string
		for i, f := range model.Fields() {
			cell := cellAt(row, i)
			if schema.IsNull(cell) {
				continue
			}
			text, err := encodeCell(cell, f)
			if err != nil {
				return err
			}
			pairs = append(pairs, url.QueryEscape(f.Name)+"="+url.QueryEscape(text))
		}
		line := strings.Join(pairs, "&")
		if !first {
			line = "\n" + line
		}
		first = false
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (URLEncodedCodec) Decode(r io.Reader, model *schema.DataModel) ([]schema.Row, error) {
	var rows []schema.Row
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		values, err := url.ParseQuery(line)
		if err != nil {
			return nil, &SerializationError{ContentType: TypeURLEncoded, Fragment: line, Err: err}
		}
		row := model.NewRow()
		for i, f := range model.Fields() {
			text, present := firstValue(values, f.Name)
			cell, err := decodeCell(text, f, present)
			if err != nil {
				return nil, &SerializationError{ContentType: TypeURLEncoded, Fragment: text, Err: err}
			}
			row[i] = cell
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func firstValue(values url.Values, name string) (string, bool) {
	vs, ok := values[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
