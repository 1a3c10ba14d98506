package format

import (
	"encoding/csv"
	"fmt"
	"io"

	"s3sink/record"
	"s3sink/sinkerr"
)

// csvWriter writes one row per record. CSV requires a Struct value with
// primitive fields. The header row, when requested, is written once per
// new file from the first schema seen.
type csvWriter struct {
	cw         *countingWriter
	w          *csv.Writer
	withHeader bool
	columns    []string
	wroteHead  bool
}

func newCSVWriter(dst io.Writer, schema *record.Schema, withHeader bool) (Writer, error) {
	cw := &countingWriter{dst: dst}
	w := &csvWriter{cw: cw, w: csv.NewWriter(cw), withHeader: withHeader}
	if schema != nil {
		w.columns = record.SortedFieldNames(schema)
	}
	return w, nil
}

func (w *csvWriter) Write(value record.SinkData) error {
	if value.Kind != record.KindStruct {
		return fmt.Errorf("CSV requires a Struct value, got %s: %w", value.Kind, sinkerr.ErrRecordType)
	}
	columns := w.columns
	if columns == nil {
		columns = value.FieldNames()
	}
	if w.withHeader && !w.wroteHead {
		if err := w.w.Write(columns); err != nil {
			return err
		}
		w.wroteHead = true
	}
	row := make([]string, len(columns))
	for i, col := range columns {
		fv, ok := value.Field(col)
		if !ok {
			row[i] = ""
			continue
		}
		if !fv.Kind.IsPrimitive() && fv.Kind != record.KindNull {
			return fmt.Errorf("CSV requires primitive fields, field %q is %s: %w", col, fv.Kind, sinkerr.ErrRecordType)
		}
		if s, ok := fv.CanonicalDecimal(); ok {
			row[i] = s
		} else {
			row[i] = ""
		}
	}
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *csvWriter) CurrentSize() int64 {
	w.w.Flush()
	return w.cw.size
}

func (w *csvWriter) Close() error {
	w.w.Flush()
	return w.w.Error()
}
