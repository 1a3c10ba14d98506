package format

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"s3sink/record"
	"s3sink/sinkerr"
)

// parquetWriter wraps a parquet.GenericWriter over map[string]interface{}
// rows, with the row-group schema built from this repo's Schema descriptor.
//
// Parquet is not append-continuable across files: a schema-change roll, or
// any other roll, always means a brand new parquetWriter over a brand new
// stream.
type parquetWriter struct {
	cw *countingWriter
	pw *parquet.GenericWriter[map[string]interface{}]
}

func openParquet(dst io.Writer, schema *record.Schema) (Writer, error) {
	if schema == nil {
		return nil, fmt.Errorf("PARQUET requires a known value schema: %w", sinkerr.ErrRecordType)
	}
	pqSchema, err := parquetSchemaFor(schema)
	if err != nil {
		return nil, err
	}
	cw := &countingWriter{dst: dst}
	pw := parquet.NewGenericWriter[map[string]interface{}](cw, pqSchema)
	return &parquetWriter{cw: cw, pw: pw}, nil
}

func (w *parquetWriter) Write(value record.SinkData) error {
	if value.Kind != record.KindStruct && value.Kind != record.KindMap {
		return fmt.Errorf("PARQUET requires a Struct or Map value, got %s: %w", value.Kind, sinkerr.ErrRecordType)
	}
	row, ok := value.ToGo().(map[string]interface{})
	if !ok {
		return fmt.Errorf("PARQUET row conversion failed: %w", sinkerr.ErrRecordType)
	}
	_, err := w.pw.Write([]map[string]interface{}{row})
	return err
}

// CurrentSize reports the bytes parquet-go has written to the output stream
// so far. Rows still buffered in the open row group and the footer (written
// only on Close) are not counted, so this can undershoot the final file
// size; WITH_FLUSH_SIZE thresholds on Parquet are evaluated against this
// count, not the eventual object size.
func (w *parquetWriter) CurrentSize() int64 { return w.cw.size }

func (w *parquetWriter) Close() error { return w.pw.Close() }

func parquetSchemaFor(s *record.Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)
	for _, f := range s.Fields {
		var node parquet.Node
		switch f.Kind {
		case record.KindInt:
			node = parquet.Leaf(parquet.Int32Type)
		case record.KindLong:
			node = parquet.Leaf(parquet.Int64Type)
		case record.KindFloat:
			node = parquet.Leaf(parquet.FloatType)
		case record.KindDouble:
			node = parquet.Leaf(parquet.DoubleType)
		case record.KindBoolean:
			node = parquet.Leaf(parquet.BooleanType)
		case record.KindBytes:
			node = parquet.Leaf(parquet.ByteArrayType)
		case record.KindString:
			node = parquet.String()
		default:
			node = parquet.String()
		}
		if f.Nullable {
			node = parquet.Optional(node)
		}
		root[f.Name] = node
	}
	name := s.Name
	if name == "" {
		name = "record"
	}
	return parquet.NewSchema(name, root), nil
}
