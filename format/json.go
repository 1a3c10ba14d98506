package format

import (
	"encoding/json"
	"io"

	"s3sink/record"
)

// jsonWriter writes newline-delimited JSON, one object per record,
// concatenated directly into the staged object with no enclosing array.
type jsonWriter struct {
	cw  *countingWriter
	enc *json.Encoder
}

func openJSON(dst io.Writer, _ *record.Schema) (Writer, error) {
	cw := &countingWriter{dst: dst}
	return &jsonWriter{cw: cw, enc: json.NewEncoder(cw)}, nil
}

func (w *jsonWriter) Write(value record.SinkData) error {
	return w.enc.Encode(value.ToGo())
}

func (w *jsonWriter) CurrentSize() int64 { return w.cw.size }

func (w *jsonWriter) Close() error { return nil }
