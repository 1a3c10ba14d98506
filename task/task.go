// Package task implements the task lifecycle: the start/open/put/
// close/stop surface a Kafka Connect-style runtime drives, bridging its
// record-delivery and rebalance protocol to the writer manager and offset
// seeker.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"s3sink/config"
	"s3sink/format"
	"s3sink/internal/connlog"
	"s3sink/manager"
	"s3sink/naming"
	"s3sink/record"
	"s3sink/s3store"
	"s3sink/seek"
	"s3sink/sinkerr"
	"s3sink/stage"
)

// SinkTaskContext is the subset of the upstream runtime's connector API
// this task drives: requesting a rewind to a given offset, and reporting
// retriable failures with a backoff hint. The runtime implements this; its
// real shape lives outside this repo.
type SinkTaskContext interface {
	Seek(topic string, kafkaPartition int, offset int64)
	RequestRetry(after time.Duration)
}

// noopContext is used when a task is started without a runtime context
// (e.g. in tests); seeks are simply dropped rather than requiring a
// runtime to be present.
type noopContext struct{}

func (noopContext) Seek(string, int, int64)    {}
func (noopContext) RequestRetry(time.Duration) {}

// Task bridges one connector task instance's lifecycle to a Manager per
// configured KCQL statement.
type Task struct {
	cfg      *config.Config
	s3Client *s3.Client
	ctx      SinkTaskContext
	log      *connlog.Logger

	managers map[string]*manager.Manager // keyed by topic
	seekers  map[string]*seek.Seeker     // keyed by topic
	store    *stage.Store
	started  bool
}

// New constructs a Task. s3Client is the already-authenticated AWS SDK v2
// client the caller built from cfg's credential settings; credential
// chains are resolved by the caller, not by this package.
func New(s3Client *s3.Client, rtCtx SinkTaskContext) *Task {
	if rtCtx == nil {
		rtCtx = noopContext{}
	}
	return &Task{
		s3Client: s3Client,
		ctx:      rtCtx,
		log:      connlog.New("task"),
	}
}

// Start parses and validates configuration, wires a Manager per KCQL
// statement, and sweeps any orphaned BuildLocal staging files left behind
// by a previous crashed instance.
func (t *Task) Start(cfg *config.Config) error {
	t.cfg = cfg

	mode := stage.Streamed
	if cfg.WriteMode == config.WriteModeBuildLocal {
		mode = stage.BuildLocal
	}

	t.managers = make(map[string]*manager.Manager)
	t.seekers = make(map[string]*seek.Seeker)

	for _, stmt := range cfg.Statements {
		client := s3store.New(t.s3Client, stmt.Bucket)
		t.store = stage.New(mode, cfg.LocalTmpDir, client)
		if err := t.store.Sweep(t.log.Printf); err != nil {
			return fmt.Errorf("sweeping staging directory: %w", err)
		}

		opener, err := format.OpenerFor(stmt.Format)
		if err != nil {
			return err
		}
		namingStrategy := naming.StrategyFor(stmt)

		store := t.store
		mgr, err := manager.New(stmt, opener, namingStrategy, store, nowMillis, t.reportCommit(stmt.Topic))
		if err != nil {
			return err
		}
		t.managers[stmt.Topic] = mgr
		t.seekers[stmt.Topic] = seek.New(client, stmt, namingStrategy)
	}

	t.started = true
	return nil
}

func (t *Task) reportCommit(topic string) manager.Committer {
	return func(committedTopic string, kafkaPartition int, nextOffset int64) {
		t.ctx.Seek(committedTopic, kafkaPartition, nextOffset)
	}
}

// Open runs the offset seeker for each assigned (topic, kafkaPartition) and
// requests the runtime rewind to the highest committed offset + 1, seeding
// the manager's dedup state so replayed records are silently discarded.
func (t *Task) Open(ctx context.Context, partitions []manager.TopicPartition) error {
	byTopic := map[string][]manager.TopicPartition{}
	for _, p := range partitions {
		byTopic[p.Topic] = append(byTopic[p.Topic], p)
	}
	for topic, tps := range byTopic {
		seeker, ok := t.seekers[topic]
		if !ok {
			continue
		}
		for _, p := range tps {
			offset, found, err := seeker.HighestCommittedOffset(ctx, p.Topic, p.Partition)
			if err != nil {
				return fmt.Errorf("opening %s[%d]: %w", p.Topic, p.Partition, err)
			}
			if found {
				t.managers[topic].SetLastCommittedOffset(p.Topic, p.Partition, offset)
				t.ctx.Seek(p.Topic, p.Partition, offset+1)
			}
		}
	}
	return nil
}

// Put drives the configured Manager for each record's topic. A batch may
// span multiple topics if multiple KCQL statements are configured; each
// topic's slice is handed to its own Manager independently.
func (t *Task) Put(ctx context.Context, batch []record.Record) error {
	byTopic := map[string][]record.Record{}
	for _, r := range batch {
		byTopic[r.Topic] = append(byTopic[r.Topic], r)
	}
	// Evaluate every configured manager even for topics with no records
	// this batch, so time-based commit policy still fires on an empty Put.
	// Every manager gets a chance to run regardless of an earlier one's
	// outcome; only the first fatal error is reported once all have run.
	var firstErr error
	for topic, mgr := range t.managers {
		recs := byTopic[topic]
		if err := mgr.Put(ctx, recs); err != nil {
			if handled := t.handlePutError(err); handled != nil && firstErr == nil {
				firstErr = handled
			}
		}
	}
	return firstErr
}

// handlePutError classifies a Put failure: transient store errors
// under RETRY are surfaced as a request to retry after a backoff interval
// (OpenFile state is untouched by the manager on a failed flush); stage
// corruption is logged and recovered (the affected open file has already
// been discarded); anything else is fatal.
func (t *Task) handlePutError(err error) error {
	switch {
	case errors.Is(err, sinkerr.ErrStoreTransient):
		if t.cfg.ErrorPolicy == config.ErrorPolicyRetry {
			t.ctx.RequestRetry(time.Duration(t.cfg.ErrorRetryInterval) * time.Millisecond)
			return nil
		}
		return err
	case errors.Is(err, sinkerr.ErrStageCorruption):
		t.log.Printf("stage corruption recovered: %v", err)
		return nil
	default:
		return err
	}
}

// Close flushes all OpenFiles belonging to the closing partitions,
// regardless of commit policy.
func (t *Task) Close(ctx context.Context, partitions []manager.TopicPartition) error {
	byTopic := map[string][]manager.TopicPartition{}
	for _, p := range partitions {
		byTopic[p.Topic] = append(byTopic[p.Topic], p)
	}
	for topic, tps := range byTopic {
		mgr, ok := t.managers[topic]
		if !ok {
			continue
		}
		if err := mgr.CloseAll(ctx, tps); err != nil {
			return err
		}
	}
	return nil
}

// Stop releases all local resources. It is a safe no-op if Start never
// succeeded.
func (t *Task) Stop(ctx context.Context) {
	if !t.started {
		return
	}
	for _, mgr := range t.managers {
		mgr.AbortAll(ctx)
	}
	t.started = false
}

func nowMillis() int64 { return time.Now().UnixMilli() }
