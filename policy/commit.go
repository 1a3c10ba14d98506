// Package policy implements the commit policy: deciding whether an
// open file should be flushed based on record count, byte size, or elapsed
// time thresholds.
package policy

import "s3sink/kcql"

// FileState is the subset of an open file's state the commit policy needs
// to evaluate its thresholds.
type FileState struct {
	RecordCount    int64
	BytesWritten   int64
	OpenedAtMillis int64
}

// CommitPolicy decides shouldFlush(state) from configured thresholds. At
// least one threshold is guaranteed set by kcql.CommitPolicy.Validate.
type CommitPolicy struct {
	maxCount      *int64
	maxBytes      *int64
	maxIntervalMs *int64
}

// New builds a CommitPolicy from a validated kcql.CommitPolicy.
func New(cfg kcql.CommitPolicy) CommitPolicy {
	return CommitPolicy{
		maxCount:      cfg.MaxCount,
		maxBytes:      cfg.MaxBytes,
		maxIntervalMs: cfg.MaxIntervalMs,
	}
}

// ShouldFlush returns true if any configured threshold is met. Time-based
// evaluation uses nowMillis so it can be sampled on every Put call,
// including empty ones, without the policy needing its own timer.
func (p CommitPolicy) ShouldFlush(state FileState, nowMillis int64) bool {
	if p.maxCount != nil && state.RecordCount >= *p.maxCount {
		return true
	}
	if p.maxBytes != nil && state.BytesWritten >= *p.maxBytes {
		return true
	}
	if p.maxIntervalMs != nil && state.OpenedAtMillis > 0 && nowMillis-state.OpenedAtMillis >= *p.maxIntervalMs {
		return true
	}
	return false
}

// HasTimeThreshold reports whether this policy has a time-based threshold,
// so callers can decide whether evaluating it on an empty batch is useful.
func (p CommitPolicy) HasTimeThreshold() bool {
	return p.maxIntervalMs != nil
}
