// Package format implements the streaming format writer abstraction: a
// per-format byte producer that appends SinkData records, reports its
// current size, and finalizes to a complete byte stream. Each writer is
// incremental so its owner can append records one at a time and poll size
// between appends.
package format

import (
	"fmt"
	"io"

	"s3sink/kcql"
	"s3sink/record"
	"s3sink/sinkerr"
)

// Writer is a single open format writer, backed by some io.Writer (the
// staging store's sink). It is not safe for concurrent use; the owning
// partition writer holds it exclusively for the lifetime of one open file.
type Writer interface {
	// Write appends one record. The writer enforces format-specific
	// compatibility and returns sinkerr.ErrRecordType on mismatch.
	Write(value record.SinkData) error

	// CurrentSize reports the best-effort, monotonically increasing number
	// of bytes produced so far.
	CurrentSize() int64

	// Close finalizes the writer (footers, compressors). After Close the
	// underlying stream is complete and must not be written to again.
	Close() error
}

// Opener constructs a new Writer over dst for one open file. schema may be
// nil for schemaless formats (TEXT, BYTES).
type Opener func(dst io.Writer, schema *record.Schema) (Writer, error)

// OpenerFor returns the Opener for a configured format.
func OpenerFor(f kcql.Format) (Opener, error) {
	switch f {
	case kcql.FormatJSON:
		return openJSON, nil
	case kcql.FormatCSV:
		return func(dst io.Writer, schema *record.Schema) (Writer, error) {
			return newCSVWriter(dst, schema, false)
		}, nil
	case kcql.FormatCSVWithHeaders:
		return func(dst io.Writer, schema *record.Schema) (Writer, error) {
			return newCSVWriter(dst, schema, true)
		}, nil
	case kcql.FormatText:
		return openText, nil
	case kcql.FormatBytes:
		return openBytes, nil
	case kcql.FormatAvro:
		return openAvro, nil
	case kcql.FormatParquet:
		return openParquet, nil
	default:
		return nil, fmt.Errorf("unsupported format %v: %w", f, sinkerr.ErrConfig)
	}
}

// countingWriter wraps an io.Writer and tracks bytes written, the common
// size-tracking primitive every format writer below embeds.
type countingWriter struct {
	dst  io.Writer
	size int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.dst.Write(p)
	c.size += int64(n)
	return n, err
}
