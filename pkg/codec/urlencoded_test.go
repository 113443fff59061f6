package codec_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restable/restable/pkg/codec"
	"github.com/restable/restable/pkg/schema"
)

func TestURLEncodedRoundTrip(t *testing.T) {
	model := newTestModel(t)
	c := codec.URLEncodedCodec{}

	in := []schema.Row{
		{int64(1), "John & Jane", true, testTime(), []byte{0xFF}},
		{int64(2), "", false, nil, nil},
	}
	body := encodeRows(t, c, model, in)

	out, err := c.Decode(bytes.NewReader(body), model)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, schema.Row{int64(1), "John & Jane", true, testTime(), []byte{0xFF}}, out[0])
	assert.Equal(t, int64(2), out[1][0])
	// null cells are omitted on encode, so they read back as absent
	assert.Nil(t, out[1][3])
	assert.Equal(t, []byte{}, out[1][4])
}

func TestURLEncodedEncodeShape(t *testing.T) {
	model := newTestModel(t)
	body := encodeRows(t, codec.URLEncodedCodec{}, model, []schema.Row{
		{int64(1), "a b", nil, nil, nil},
		{int64(2), "c", nil, nil, nil},
	})

	lines := strings.Split(string(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id=1&name=a+b", lines[0])
	assert.Equal(t, "id=2&name=c", lines[1])
}

func TestURLEncodedDecodeMalformed(t *testing.T) {
	model := newTestModel(t)

	_, err := codec.URLEncodedCodec{}.Decode(strings.NewReader("name=%zz"), model)
	var serErr *codec.SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, codec.TypeURLEncoded, serErr.ContentType)
}

func TestURLEncodedDecodeSkipsBlankLines(t *testing.T) {
	model := newTestModel(t)
	rows, err := codec.URLEncodedCodec{}.Decode(strings.NewReader("id=1\n\n\nid=2"), model)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
