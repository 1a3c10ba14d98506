// Package seek implements the offset seeker: on open/rebalance, scans
// the remote store to determine the highest committed offset per (topic,
// kafkaPartition), so the upstream runtime can be rewound to resume
// exactly-once-past-there delivery (at-least-once with offset dedup).
package seek

import (
	"context"
	"fmt"

	"s3sink/kcql"
	"s3sink/manager"
	"s3sink/naming"
	"s3sink/s3store"
)

// Requester is how the seeker asks the upstream runtime to resume
// delivery at a given offset. Implemented by the task package's bridge to
// the runtime's SinkTaskContext.
type Requester interface {
	Seek(topic string, kafkaPartition int, offset int64)
}

// Seeker scans a bucket+prefix for the highest committed offset per
// partition.
type Seeker struct {
	client *s3store.Client
	stmt   kcql.Statement
	naming naming.Strategy
}

// New builds a Seeker bound to one statement's bucket/prefix/naming.
func New(client *s3store.Client, stmt kcql.Statement, namingStrategy naming.Strategy) *Seeker {
	return &Seeker{client: client, stmt: stmt, naming: namingStrategy}
}

// Open scans for every partition in partitions and, if any committed
// objects are found, requests a seek to maxOffset+1. Calling Open
// repeatedly for the same partition is idempotent: each call recomputes
// from the remote listing rather than trusting any cached result, so a
// repeated seek to the same offset is always safe.
func (s *Seeker) Open(ctx context.Context, partitions []manager.TopicPartition, req Requester) error {
	for _, p := range partitions {
		offset, found, err := s.HighestCommittedOffset(ctx, p.Topic, p.Partition)
		if err != nil {
			return fmt.Errorf("seeking %s[%d]: %w", p.Topic, p.Partition, err)
		}
		if found {
			req.Seek(p.Topic, p.Partition, offset+1)
		}
	}
	return nil
}

// HighestCommittedOffset lists every object under the statement's prefix
// (scanning all logical-partition subdirectories when naming is
// Partitioned) and returns the maximum offset found for (topic,
// kafkaPartition), or found=false if nothing has been committed yet.
func (s *Seeker) HighestCommittedOffset(ctx context.Context, topic string, kafkaPartition int) (int64, bool, error) {
	ext := s.stmt.Format.Extension()
	re := naming.OffsetRegex(s.naming, s.stmt.Prefix, topic, kafkaPartition, ext)

	keys, err := s.client.List(ctx, s.stmt.Prefix)
	if err != nil {
		return 0, false, err
	}

	var (
		max   int64
		found bool
	)
	for _, key := range keys {
		offset, ok := naming.ParseOffset(re, key)
		if !ok {
			continue
		}
		if !found || offset > max {
			max = offset
			found = true
		}
	}
	return max, found, nil
}
