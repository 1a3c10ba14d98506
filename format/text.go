package format

import (
	"fmt"
	"io"

	"s3sink/record"
	"s3sink/sinkerr"
)

// textWriter requires every value to be a String; anything else is a fatal
// record-type error.
type textWriter struct {
	cw *countingWriter
}

func openText(dst io.Writer, _ *record.Schema) (Writer, error) {
	return &textWriter{cw: &countingWriter{dst: dst}}, nil
}

func (w *textWriter) Write(value record.SinkData) error {
	if value.Kind != record.KindString {
		return fmt.Errorf("TEXT requires a String value, got %s: %w", value.Kind, sinkerr.ErrRecordType)
	}
	_, err := fmt.Fprintln(w.cw, value.AsString())
	return err
}

func (w *textWriter) CurrentSize() int64 { return w.cw.size }

func (w *textWriter) Close() error { return nil }

// bytesWriter requires every value to be Bytes; anything else is a fatal
// RecordType error. Unlike the other formats, BYTES accepts exactly one
// record per file in practice (there is no framing), but this writer does
// not enforce that itself — the commit policy and manager drive rolling.
type bytesWriter struct {
	cw *countingWriter
}

func openBytes(dst io.Writer, _ *record.Schema) (Writer, error) {
	return &bytesWriter{cw: &countingWriter{dst: dst}}, nil
}

func (w *bytesWriter) Write(value record.SinkData) error {
	if value.Kind != record.KindBytes {
		return fmt.Errorf("BYTES requires a Bytes value, got %s: %w", value.Kind, sinkerr.ErrRecordType)
	}
	_, err := w.cw.Write(value.AsBytes())
	return err
}

func (w *bytesWriter) CurrentSize() int64 { return w.cw.size }

func (w *bytesWriter) Close() error { return nil }
