package codec_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restable/restable/pkg/codec"
	"github.com/restable/restable/pkg/schema"
)

func newTestModel(t *testing.T) *schema.DataModel {
	t.Helper()
	model, err := schema.NewDataModel("users", []schema.Field{
		{Name: "id", Type: schema.TypeNumber, NativeType: "INTEGER", IsPrimaryKey: true},
		{Name: "name", Type: schema.TypeString, NativeType: "VARCHAR"},
		{Name: "active", Type: schema.TypeBoolean, NativeType: "BOOLEAN"},
		{Name: "created", Type: schema.TypeDatetime, NativeType: "DATETIME"},
		{Name: "avatar", Type: schema.TypeBlob, NativeType: "BLOB"},
	})
	require.NoError(t, err)
	return model
}

func encodeRows(t *testing.T, c codec.Codec, model *schema.DataModel, rows []schema.Row) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, model, &codec.SliceSource{Rows: rows}))
	return buf.Bytes()
}

func TestNewSelectsCodec(t *testing.T) {
	tests := []struct {
		mediaType string
		want      string
		wantErr   bool
	}{
		{"", codec.TypeJSON, false},
		{"application/json", codec.TypeJSON, false},
		{"application/json; charset=utf-8", codec.TypeJSON, false},
		{"text/csv", codec.TypeCSV, false},
		{"application/x-www-form-urlencoded", codec.TypeURLEncoded, false},
		{"multipart/form-data; boundary=xyz", "multipart/form-data; boundary=xyz", false},
		{"multipart/form-data", "", true},
		{"application/xml", "", true},
		{"not a media type;;", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			c, err := codec.New(tt.mediaType)
			if tt.wantErr {
				assert.ErrorIs(t, err, codec.ErrUnsupportedMediaType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.ContentType())
		})
	}
}

func TestNewResponseGeneratesMultipartBoundary(t *testing.T) {
	c, err := codec.NewResponse("multipart/form-data")
	require.NoError(t, err)

	mc, ok := c.(codec.MultipartCodec)
	require.True(t, ok)
	assert.NotEmpty(t, mc.Boundary)
	assert.Contains(t, c.ContentType(), "boundary="+mc.Boundary)

	// two response codecs never share a boundary
	c2, err := codec.NewResponse("multipart/form-data")
	require.NoError(t, err)
	assert.NotEqual(t, mc.Boundary, c2.(codec.MultipartCodec).Boundary)

	// request bodies still have to declare their own boundary
	_, err = codec.New("multipart/form-data")
	assert.ErrorIs(t, err, codec.ErrUnsupportedMediaType)
}

func TestBooleanDecodeConvention(t *testing.T) {
	model, err := schema.NewDataModel("flags", []schema.Field{
		{Name: "flag", Type: schema.TypeBoolean, NativeType: "BOOLEAN"},
	})
	require.NoError(t, err)
	c := codec.CSVCodec{}

	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"false", false},
		{"FALSE", false},
		{"0", false},
		{"000", false},
		{"1", true},
		{"true", true},
		{"00a", true},
	}
	for _, tt := range tests {
		t.Run("value "+tt.text, func(t *testing.T) {
			body := "flag\n\"" + tt.text + "\"\n"
			rows, err := c.Decode(bytes.NewReader([]byte(body)), model)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.want, rows[0][0])
		})
	}
}

func TestEmptyNumberDecodesToZero(t *testing.T) {
	model, err := schema.NewDataModel("t", []schema.Field{
		{Name: "n", Type: schema.TypeNumber, NativeType: "INTEGER"},
	})
	require.NoError(t, err)

	rows, err := codec.CSVCodec{}.Decode(bytes.NewReader([]byte("n\n\"\"\n")), model)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0][0])
}

func testTime() time.Time {
	return time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
}
