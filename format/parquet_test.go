package format_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"

	"s3sink/format"
	"s3sink/kcql"
	"s3sink/record"
	"s3sink/sinkerr"
)

func TestParquetWriterRoundTrips(t *testing.T) {
	schema := &record.Schema{Name: "order", Fields: []record.FieldSchema{
		{Name: "id", Kind: record.KindLong},
		{Name: "label", Kind: record.KindString},
	}}

	var buf bytes.Buffer
	opener, err := format.OpenerFor(kcql.FormatParquet)
	assert.NoError(t, err)

	w, err := opener(&buf, schema)
	assert.NoError(t, err)

	value := record.Struct(schema, map[string]record.SinkData{
		"id":    record.Long(7),
		"label": record.String("widget"),
	})
	assert.NoError(t, w.Write(value))
	assert.NoError(t, w.Close())

	reader := parquet.NewGenericReader[map[string]interface{}](bytes.NewReader(buf.Bytes()))
	defer reader.Close()

	rows := make([]map[string]interface{}, 1)
	n, err := reader.Read(rows)
	assert.True(t, n == 1 || err == io.EOF)
	assert.EqualValues(t, 7, rows[0]["id"])
	assert.Equal(t, "widget", rows[0]["label"])
}

func TestParquetWriterRejectsSchemalessOpen(t *testing.T) {
	opener, _ := format.OpenerFor(kcql.FormatParquet)
	_, err := opener(&bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, sinkerr.ErrRecordType)
}

func TestParquetWriterRejectsNonStructValue(t *testing.T) {
	schema := &record.Schema{Fields: []record.FieldSchema{{Name: "id", Kind: record.KindLong}}}
	opener, _ := format.OpenerFor(kcql.FormatParquet)
	w, err := opener(&bytes.Buffer{}, schema)
	assert.NoError(t, err)

	err = w.Write(record.Long(1))
	assert.ErrorIs(t, err, sinkerr.ErrRecordType)
}
