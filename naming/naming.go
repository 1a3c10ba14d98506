// Package naming implements the object-name strategy: deterministic
// mapping from (topic, kafka-partition, offset, partition key, format) to a
// remote object key, and the regex used by the offset seeker to parse
// offsets back out of a strategy's committed names.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"s3sink/kcql"
	"s3sink/partition"
)

// Strategy enumerates the two supported layouts.
type Strategy int

const (
	// Hierarchical is used only when no PARTITIONBY is configured:
	// <prefix>/<topic>/<kafkaPartition>/<offset>.<ext>
	Hierarchical Strategy = iota
	// Partitioned is used whenever PARTITIONBY selectors are configured:
	// <prefix>/[name=]value[/name=value]*/<topic>(<kafkaPartition>_<offset>).<ext>
	Partitioned
)

// StrategyFor picks Hierarchical or Partitioned based on whether the
// statement configures PARTITIONBY.
func StrategyFor(stmt kcql.Statement) Strategy {
	if stmt.UsesPartitioning() {
		return Partitioned
	}
	return Hierarchical
}

// ObjectName computes the remote object key for one committed file.
func ObjectName(strategy Strategy, prefix, topic string, kafkaPartition int, offset int64, key partition.Key, mode kcql.PartitionerMode, ext string) (string, error) {
	if strings.Contains(ext, "/") {
		return "", fmt.Errorf("extension %q must not contain '/'", ext)
	}
	switch strategy {
	case Hierarchical:
		return fmt.Sprintf("%s/%s/%d/%d.%s", prefix, topic, kafkaPartition, offset, ext), nil
	case Partitioned:
		segs := make([]string, 0, len(key.Components)+1)
		for _, c := range key.Components {
			if strings.Contains(c.Value, "/") {
				return "", fmt.Errorf("rendered partition value %q must not contain '/'", c.Value)
			}
			if mode == kcql.Values {
				segs = append(segs, c.Value)
			} else {
				segs = append(segs, fmt.Sprintf("%s=%s", c.Name, c.Value))
			}
		}
		segs = append(segs, fmt.Sprintf("%s(%d_%d).%s", topic, kafkaPartition, offset, ext))
		return prefix + "/" + strings.Join(segs, "/"), nil
	default:
		return "", fmt.Errorf("unknown naming strategy %v", strategy)
	}
}

// OffsetRegex builds the regex used by the offset seeker to recover the
// committed offset from a listed object key for a given (topic,
// kafkaPartition). It must match exactly what ObjectName produces.
func OffsetRegex(strategy Strategy, prefix, topic string, kafkaPartition int, ext string) *regexp.Regexp {
	quotedPrefix := regexp.QuoteMeta(prefix)
	quotedTopic := regexp.QuoteMeta(topic)
	quotedExt := regexp.QuoteMeta(ext)
	switch strategy {
	case Hierarchical:
		pattern := fmt.Sprintf(`^%s/%s/%d/(\d+)\.%s$`, quotedPrefix, quotedTopic, kafkaPartition, quotedExt)
		return regexp.MustCompile(pattern)
	case Partitioned:
		// Any sequence of logical-partition segments, then the final
		// "<topic>(<kafkaPartition>_<offset>).<ext>" segment.
		pattern := fmt.Sprintf(`^%s/.*%s\(%d_(\d+)\)\.%s$`, quotedPrefix, quotedTopic, kafkaPartition, quotedExt)
		return regexp.MustCompile(pattern)
	default:
		return regexp.MustCompile(`$.`) // matches nothing
	}
}

// ParseOffset extracts the offset captured by OffsetRegex from a matched key.
func ParseOffset(re *regexp.Regexp, key string) (int64, bool) {
	m := re.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[len(m)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
