// Package writer implements the per-partition writer: the state machine
// for a single (topic, kafkaPartition, logicalPartitionKey) open file —
// buffering records, rolling on schema change or commit policy, staging
// bytes, and uploading.
package writer

import (
	"context"
	"fmt"

	"s3sink/format"
	"s3sink/kcql"
	"s3sink/naming"
	"s3sink/partition"
	"s3sink/policy"
	"s3sink/record"
	"s3sink/sinkerr"
	"s3sink/stage"
)

// State enumerates the writer's lifecycle states.
type State int

const (
	Idle State = iota
	Open
	Flushing
	Uploading
	Failed
)

// Result describes one committed file, returned to the manager so it can
// advance the per-(topic,kafkaPartition) committed offset.
type Result struct {
	ObjectName   string
	RecordCount  int64
	BytesWritten int64
	FirstOffset  int64
	LastOffset   int64
}

// Writer is the state machine for one logical partition's open file.
type Writer struct {
	Topic          string
	KafkaPartition int
	Key            partition.Key

	opener  format.Opener
	ext     string
	naming  naming.Strategy
	prefix  string
	mode    kcql.PartitionerMode
	commit  policy.CommitPolicy
	stageFn func(ctx context.Context) (stage.Handle, error)

	state             State
	handle            stage.Handle
	fw                format.Writer
	fwClosed          bool
	objectName        string
	recordCount       int64
	firstOffset       int64
	lastOffset        int64
	openedAtMillis    int64
	schemaFingerprint string
}

// New constructs an idle Writer for one logical partition. nowMillis and a
// stage-handle factory are injected so tests can control time and avoid
// real disk/network I/O.
func New(
	topic string,
	kafkaPartition int,
	key partition.Key,
	opener format.Opener,
	ext string,
	namingStrategy naming.Strategy,
	prefix string,
	mode kcql.PartitionerMode,
	commit policy.CommitPolicy,
	stageFn func(ctx context.Context) (stage.Handle, error),
) *Writer {
	return &Writer{
		Topic:          topic,
		KafkaPartition: kafkaPartition,
		Key:            key,
		opener:         opener,
		ext:            ext,
		naming:         namingStrategy,
		prefix:         prefix,
		mode:           mode,
		commit:         commit,
		stageFn:        stageFn,
		state:          Idle,
	}
}

// State returns the writer's current state.
func (w *Writer) State() State { return w.state }

// IsEmpty reports whether the writer has no buffered records (nothing to
// flush).
func (w *Writer) IsEmpty() bool { return w.state != Open && w.state != Flushing }

// Append appends one record at offset, rolling to a new file first if the
// record's schema fingerprint differs from the currently open file's
// (schema-change roll) or if no file is open yet (Idle -> Open transition).
// Offsets are never skipped across a roll.
func (w *Writer) Append(ctx context.Context, value record.SinkData, offset int64, nowMillis int64) error {
	fp := record.Fingerprint(value.Schema)

	if w.state == Open && fp != w.schemaFingerprint {
		if _, err := w.Flush(ctx); err != nil {
			return err
		}
	}

	if w.state == Idle {
		if err := w.open(ctx, value.Schema, offset, nowMillis); err != nil {
			return err
		}
	}

	if err := w.fw.Write(value); err != nil {
		if w.handle.Corrupted() {
			discarded := w.objectName
			w.reset()
			return fmt.Errorf("staging handle for %q gone during write: %w", discarded, sinkerr.ErrStageCorruption)
		}
		w.state = Failed
		return err
	}
	w.recordCount++
	w.lastOffset = offset
	w.state = Open
	return nil
}

func (w *Writer) open(ctx context.Context, schema *record.Schema, offset int64, nowMillis int64) error {
	handle, err := w.stageFn(ctx)
	if err != nil {
		return fmt.Errorf("opening staging handle: %w", err)
	}
	fw, err := w.opener(handle, schema)
	if err != nil {
		_ = handle.Abort(ctx)
		return fmt.Errorf("opening format writer: %w", err)
	}
	objectName, err := naming.ObjectName(w.naming, w.prefix, w.Topic, w.KafkaPartition, offset, w.Key, w.mode, w.ext)
	if err != nil {
		_ = handle.Abort(ctx)
		return fmt.Errorf("computing object name: %w", err)
	}

	w.handle = handle
	w.fw = fw
	w.objectName = objectName
	w.firstOffset = offset
	w.lastOffset = offset
	w.recordCount = 0
	w.openedAtMillis = nowMillis
	w.schemaFingerprint = record.Fingerprint(schema)
	w.state = Open
	return nil
}

// ShouldFlush evaluates the commit policy against the writer's current
// state, sampled on every Put including empty ones (time-based thresholds).
func (w *Writer) ShouldFlush(nowMillis int64) bool {
	if w.state != Open {
		return false
	}
	return w.commit.ShouldFlush(policy.FileState{
		RecordCount:    w.recordCount,
		BytesWritten:   w.fw.CurrentSize(),
		OpenedAtMillis: w.openedAtMillis,
	}, nowMillis)
}

// Flush closes the format writer, uploads the staged bytes, and returns to
// Idle. On success it returns a Result the manager uses to advance the
// committed offset; the writer entry should then be removed from the
// manager's table.
func (w *Writer) Flush(ctx context.Context) (*Result, error) {
	if w.state != Open {
		return nil, nil
	}
	w.state = Flushing

	// A retried Flush (the previous attempt got past Close but failed to
	// Commit) must not close an already-closed format writer a second
	// time: Close finalizes the on-disk format (footers, trailers) and is
	// not safe to call twice for every format.
	if !w.fwClosed {
		if err := w.fw.Close(); err != nil {
			w.state = Failed
			return nil, fmt.Errorf("closing format writer for %q: %w", w.objectName, err)
		}
		w.fwClosed = true
	}

	w.state = Uploading
	if w.handle.Corrupted() {
		w.state = Idle
		discarded := w.objectName
		w.reset()
		return nil, fmt.Errorf("staging handle for %q gone: %w", discarded, sinkerr.ErrStageCorruption)
	}

	// The committed object's name encodes the last offset in the file.
	objectName, err := naming.ObjectName(w.naming, w.prefix, w.Topic, w.KafkaPartition, w.lastOffset, w.Key, w.mode, w.ext)
	if err != nil {
		w.state = Open
		return nil, fmt.Errorf("computing object name: %w", err)
	}
	w.objectName = objectName

	bytesWritten := w.handle.Size()
	if err := w.handle.Commit(ctx, w.objectName); err != nil {
		// Preserve state for retry: do not reset, do not advance offsets.
		w.state = Open
		return nil, err
	}

	result := &Result{
		ObjectName:   w.objectName,
		RecordCount:  w.recordCount,
		BytesWritten: bytesWritten,
		FirstOffset:  w.firstOffset,
		LastOffset:   w.lastOffset,
	}
	w.reset()
	return result, nil
}

// Abort discards the currently open file without committing anything,
// used on stop() for files the caller has decided not to flush, and after
// stage corruption.
func (w *Writer) Abort(ctx context.Context) {
	if w.handle != nil {
		_ = w.handle.Abort(ctx)
	}
	w.reset()
}

func (w *Writer) reset() {
	w.handle = nil
	w.fw = nil
	w.fwClosed = false
	w.objectName = ""
	w.recordCount = 0
	w.firstOffset = 0
	w.lastOffset = 0
	w.openedAtMillis = 0
	w.schemaFingerprint = ""
	w.state = Idle
}

// LastOffset returns the highest offset buffered in the currently open
// file (valid only while State() == Open or Flushing).
func (w *Writer) LastOffset() int64 { return w.lastOffset }
