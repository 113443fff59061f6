package codec

import (
	"io"
	"mime"
	"mime/multipart"

	"github.com/restable/restable/pkg/schema"
)

// MultipartCodec maps one row to one part-group of a multipart/form-data
// message using an externally supplied boundary. Blob fields travel as file
// parts with name/filename headers and application/octet-stream bodies;
// scalar fields are plain form fields. On decode a part whose name repeats a
// field already present in the current group starts the next row.
type MultipartCodec struct {
	Boundary string
}

// ContentType advertises the boundary so receivers can split the body.
func (c MultipartCodec) ContentType() string {
	return mime.FormatMediaType(TypeMultipart, map[string]string{"boundary": c.Boundary})
}

func (c MultipartCodec) Encode(w io.Writer, model *schema.DataModel, rows RowSource) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(c.Boundary); err != nil {
		return err
	}
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return err
		}
		for i, f := range model.Fields() {
			cell := cellAt(row, i)
			if schema.IsNull(cell) {
				continue
			}
			if typeOf(f) == schema.TypeBlob {
				b, ok := cell.([]byte)
				if !ok {
					b = []byte(cellString(cell))
				}
				part, err := mw.CreateFormFile(f.Name, f.Name)
				if err != nil {
					return err
				}
				if _, err := part.Write(b); err != nil {
					return err
				}
				continue
			}
			text, err := encodeCell(cell, f)
			if err != nil {
				return err
			}
			if err := mw.WriteField(f.Name, text); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return mw.Close()
}

func (c MultipartCodec) Decode(r io.Reader, model *schema.DataModel) ([]schema.Row, error) {
	mr := multipart.NewReader(r, c.Boundary)

	var rows []schema.Row
	group := make(map[string]partValue)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &SerializationError{ContentType: TypeMultipart, Fragment: "part", Err: err}
		}
		name := part.FormName()
		body, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, &SerializationError{ContentType: TypeMultipart, Fragment: name, Err: err}
		}
		if _, dup := group[name]; dup {
			row, err := c.groupToRow(group, model)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
			group = make(map[string]partValue)
		}
		group[name] = partValue{body: body, file: part.FileName() != ""}
	}
	if len(group) > 0 {
		row, err := c.groupToRow(group, model)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type partValue struct {
	body []byte
	file bool
}

func (c MultipartCodec) groupToRow(group map[string]partValue, model *schema.DataModel) (schema.Row, error) {
	row := model.NewRow()
	for i, f := range model.Fields() {
		part, present := group[f.Name]
		if !present {
			row[i], _ = decodeCell("", f, false)
			continue
		}
		// file parts carry raw bytes, not base64 text
		if part.file && typeOf(f) == schema.TypeBlob {
			row[i] = part.body
			continue
		}
		cell, err := decodeCell(string(part.body), f, true)
		if err != nil {
			return nil, &SerializationError{ContentType: TypeMultipart, Fragment: f.Name, Err: err}
		}
		row[i] = cell
	}
	return row, nil
}
