package format_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"s3sink/format"
	"s3sink/kcql"
	"s3sink/record"
	"s3sink/sinkerr"
)

func TestTextWriterAppendsNewlinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	opener, err := format.OpenerFor(kcql.FormatText)
	assert.NoError(t, err)

	w, err := opener(&buf, nil)
	assert.NoError(t, err)

	assert.NoError(t, w.Write(record.String("hello")))
	assert.NoError(t, w.Write(record.String("world")))
	assert.NoError(t, w.Close())

	assert.Equal(t, "hello\nworld\n", buf.String())
}

func TestTextWriterRejectsNonString(t *testing.T) {
	opener, _ := format.OpenerFor(kcql.FormatText)
	w, _ := opener(&bytes.Buffer{}, nil)

	err := w.Write(record.Long(1))
	assert.ErrorIs(t, err, sinkerr.ErrRecordType)
}

func TestBytesWriterWritesRaw(t *testing.T) {
	var buf bytes.Buffer
	opener, err := format.OpenerFor(kcql.FormatBytes)
	assert.NoError(t, err)

	w, err := opener(&buf, nil)
	assert.NoError(t, err)

	assert.NoError(t, w.Write(record.Bytes([]byte{0x01, 0x02})))
	assert.NoError(t, w.Close())

	assert.Equal(t, []byte{0x01, 0x02}, buf.Bytes())
	assert.Equal(t, int64(2), w.CurrentSize())
}

func TestBytesWriterRejectsNonBytes(t *testing.T) {
	opener, _ := format.OpenerFor(kcql.FormatBytes)
	w, _ := opener(&bytes.Buffer{}, nil)

	err := w.Write(record.String("not bytes"))
	assert.ErrorIs(t, err, sinkerr.ErrRecordType)
}
