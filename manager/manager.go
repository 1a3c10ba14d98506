// Package manager implements the writer manager: the fan-out dispatcher
// that derives each record's logical partition, selects or creates its
// writer, enforces schema-change rolls, drives commits, and keeps
// per-(topic, kafkaPartition) offset bookkeeping for dedup.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"s3sink/format"
	"s3sink/kcql"
	"s3sink/naming"
	"s3sink/partition"
	"s3sink/policy"
	"s3sink/record"
	"s3sink/sinkerr"
	"s3sink/stage"
	"s3sink/writer"
)

// tp identifies one (topic, kafkaPartition).
type tp struct {
	topic     string
	partition int
}

// TopicPartition identifies one (topic, kafkaPartition) assignment, the
// unit the upstream runtime opens, closes, and rebalances.
type TopicPartition struct {
	Topic     string
	Partition int
}

// tableKey identifies one (topic, kafkaPartition, logicalPartitionKey).
type tableKey struct {
	tp  tp
	key string // partition.Key.String(), used as a comparable map key
}

// Clock abstracts wall-clock time so tests can drive time-based commit
// policy deterministically.
type Clock func() int64

// Committer is called whenever a writer successfully uploads a file; the
// manager uses it to report lastOffset+1 to the upstream runtime only
// after the upload actually succeeds, never before.
type Committer func(topic string, kafkaPartition int, nextOffset int64)

// Manager is the fan-out dispatcher. One Manager instance per task.
type Manager struct {
	stmt     kcql.Statement
	opener   format.Opener
	ext      string
	naming   naming.Strategy
	store    *stage.Store
	clock    Clock
	commit   policy.CommitPolicy
	onCommit Committer

	table               map[tableKey]*writer.Writer
	lastCommittedOffset map[tp]int64
}

// New builds a Manager for one KCQL statement.
func New(stmt kcql.Statement, opener format.Opener, namingStrategy naming.Strategy, store *stage.Store, clock Clock, onCommit Committer) (*Manager, error) {
	if err := stmt.Commit.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		stmt:                stmt,
		opener:              opener,
		ext:                 stmt.Format.Extension(),
		naming:              namingStrategy,
		store:               store,
		clock:               clock,
		commit:              policy.New(stmt.Commit),
		onCommit:            onCommit,
		table:               make(map[tableKey]*writer.Writer),
		lastCommittedOffset: make(map[tp]int64),
	}, nil
}

// SetLastCommittedOffset seeds dedup state, called by the task after the
// offset seeker determines the highest committed offset for a partition
// on open/rebalance.
func (m *Manager) SetLastCommittedOffset(topic string, kafkaPartition int, offset int64) {
	m.lastCommittedOffset[tp{topic, kafkaPartition}] = offset
}

// Put processes one batch in delivery order. It returns the
// first fatal error encountered, if any; retriable store errors (schema
// change flush failures, threshold flush failures) abort the batch but
// preserve every writer's buffered state for redelivery. A stage-corruption
// error discards only the affected open file: the remaining records are
// still processed, and the first such error is returned after the batch.
func (m *Manager) Put(ctx context.Context, batch []record.Record) error {
	now := m.clock()

	var corruption error
	for _, rec := range batch {
		if err := m.putOne(ctx, rec, now); err != nil {
			if !errors.Is(err, sinkerr.ErrStageCorruption) {
				return err
			}
			if corruption == nil {
				corruption = err
			}
		}
	}

	// A pure time-based sweep only matters for policies that can flush on
	// elapsed time alone; count/byte thresholds never newly become true
	// without a fresh Append, which putOne already checks per-record above.
	if !m.commit.HasTimeThreshold() {
		return corruption
	}
	// After the batch, additionally flush any OpenFile whose commit policy
	// now fires, even if it received no record this batch (the "half-full
	// files also flushed" behavior when partitioning fans out).
	if err := m.sweepTimeBasedFlushes(ctx, now); err != nil {
		return err
	}
	return corruption
}

func (m *Manager) putOne(ctx context.Context, rec record.Record, now int64) error {
	key := tp{rec.Topic, rec.KafkaPartition}

	if last, ok := m.lastCommittedOffset[key]; ok && rec.Offset <= last {
		return nil // dedup: already committed
	}

	pk, err := partition.BuildKey(rec, m.stmt.PartitionBy)
	if err != nil {
		return err
	}

	tk := tableKey{tp: key, key: pk.String()}
	w, ok := m.table[tk]
	alreadyBuffered := ok && w.State() != writer.Idle && rec.Offset <= w.LastOffset()
	if !ok {
		w = writer.New(
			rec.Topic, rec.KafkaPartition, pk,
			m.opener, m.ext, m.naming, m.stmt.Prefix, m.stmt.PartitionerMode, m.commit,
			func(ctx context.Context) (stage.Handle, error) { return m.store.Open(ctx) },
		)
		m.table[tk] = w
	}

	if !alreadyBuffered {
		if err := w.Append(ctx, rec.Value, rec.Offset, now); err != nil {
			return err
		}
	}
	// Already buffered in the currently open file from an earlier Put that
	// failed to commit: the runtime is redelivering it while retrying the
	// commit, not asking for a second append. Still re-check ShouldFlush so
	// the retry itself (flushWriter below) actually happens on this Put
	// rather than waiting on a time-based sweep that may never fire for a
	// count/byte-only policy.

	if w.ShouldFlush(now) {
		if err := m.flushWriter(ctx, tk, w); err != nil {
			return err
		}
	}
	return nil
}

// sweepTimeBasedFlushes flushes every remaining open file whose policy now
// fires, preserving per-(topic,kafkaPartition) offset monotonicity: within
// one kafka partition, writers are flushed smallest-lastOffset-first.
func (m *Manager) sweepTimeBasedFlushes(ctx context.Context, now int64) error {
	byPartition := make(map[tp][]tableKey)
	for tk, w := range m.table {
		if w.ShouldFlush(now) {
			byPartition[tk.tp] = append(byPartition[tk.tp], tk)
		}
	}
	for p, keys := range byPartition {
		sort.Slice(keys, func(i, j int) bool {
			return m.table[keys[i]].LastOffset() < m.table[keys[j]].LastOffset()
		})
		for _, tk := range keys {
			if err := m.flushWriter(ctx, tk, m.table[tk]); err != nil {
				return fmt.Errorf("flushing %v: %w", p, err)
			}
		}
	}
	return nil
}

func (m *Manager) flushWriter(ctx context.Context, tk tableKey, w *writer.Writer) error {
	result, err := w.Flush(ctx)
	if err != nil {
		return err
	}
	delete(m.table, tk)
	if result == nil {
		return nil
	}
	m.lastCommittedOffset[tk.tp] = result.LastOffset
	if m.onCommit != nil {
		m.onCommit(tk.tp.topic, tk.tp.partition, result.LastOffset+1)
	}
	return nil
}

// CloseAll flushes every OpenFile belonging to the given (topic,
// kafkaPartition)s, regardless of commit policy, honoring per-partition
// offset monotonicity the same way sweepTimeBasedFlushes does.
func (m *Manager) CloseAll(ctx context.Context, partitions []TopicPartition) error {
	closing := make(map[tp]bool, len(partitions))
	for _, p := range partitions {
		closing[tp{p.Topic, p.Partition}] = true
	}

	byPartition := make(map[tp][]tableKey)
	for tk := range m.table {
		if closing[tk.tp] {
			byPartition[tk.tp] = append(byPartition[tk.tp], tk)
		}
	}
	for _, keys := range byPartition {
		sort.Slice(keys, func(i, j int) bool {
			return m.table[keys[i]].LastOffset() < m.table[keys[j]].LastOffset()
		})
		for _, tk := range keys {
			if err := m.flushWriter(ctx, tk, m.table[tk]); err != nil {
				return err
			}
		}
	}
	return nil
}

// AbortAll discards every OpenFile without committing, used on stop() for
// a task that never successfully started, or that wants an unconditional
// teardown without uploading partially buffered data.
func (m *Manager) AbortAll(ctx context.Context) {
	for tk, w := range m.table {
		w.Abort(ctx)
		delete(m.table, tk)
	}
}

// OpenFileCount reports how many writers currently hold an open file,
// exposed for tests and metrics.
func (m *Manager) OpenFileCount() int { return len(m.table) }
