package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/restable/restable/pkg/schema"
)

// CSVCodec encodes rows as RFC 4180 CSV. The header row is the field names in
// model order; commas, quotes and newlines inside a cell survive through
// doubled-quote escaping.
type CSVCodec struct{}

func (CSVCodec) ContentType() string { return TypeCSV }

func (CSVCodec) Encode(w io.Writer, model *schema.DataModel, rows RowSource) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.Names()); err != nil {
		return err
	}
	record := make([]string, model.Len())
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return err
		}
		for i, f := range model.Fields() {
			text, err := encodeCell(cellAt(row, i), f)
			if err != nil {
				return err
			}
			record[i] = text
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (CSVCodec) Decode(r io.Reader, model *schema.DataModel) ([]schema.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, &SerializationError{ContentType: TypeCSV, Fragment: "header", Err: err}
	}

	columns := make([]int, len(header)) // header position -> model position
	for i, name := range header {
		columns[i] = model.FieldIndex(strings.TrimSpace(name))
	}

	var rows []schema.Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &SerializationError{
				ContentType: TypeCSV,
				Fragment:    fmt.Sprintf("line %d", line),
				Err:         err,
			}
		}
		row := model.NewRow()
		seen := make([]bool, model.Len())
		for i, text := range record {
			if i >= len(columns) || columns[i] < 0 {
				continue
			}
			f := model.Fields()[columns[i]]
			cell, err := decodeCell(text, f, true)
			if err != nil {
				return nil, &SerializationError{ContentType: TypeCSV, Fragment: text, Err: err}
			}
			row[columns[i]] = cell
			seen[columns[i]] = true
		}
		for i := range seen {
			if !seen[i] {
				row[i], _ = decodeCell("", model.Fields()[i], false)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
