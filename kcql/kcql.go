// Package kcql defines the validated configuration statement the external
// KCQL lexer/parser is expected to produce, plus the structural validation
// required at parse time (slash rejection, unknown formats, threshold
// sanity). Tokenizing the KCQL string itself is out of scope; this package
// only shapes and validates the result.
package kcql

import (
	"fmt"
	"strings"

	"s3sink/sinkerr"
)

// PartitionerMode selects how a Partitioned object name renders the
// name=value pairs: with the "name=" prefix (KeysAndValues, the default) or
// bare values only (Values).
type PartitionerMode int

const (
	KeysAndValues PartitionerMode = iota
	Values
)

// SelectorKind enumerates the PartitionField variants.
type SelectorKind int

const (
	SelectorValuePath SelectorKind = iota
	SelectorKeyPath
	SelectorHeaderPath
	SelectorWholeKey
	SelectorTopic
	SelectorPartition
)

// Selector is one PARTITIONBY term.
type Selector struct {
	Kind       SelectorKind
	Path       []string // dotted path segments, for ValuePath/KeyPath
	HeaderName string   // for HeaderPath
	SubPath    []string // for HeaderPath, optional nested path into the header value
}

// Format enumerates the supported STOREAS formats.
type Format int

const (
	FormatJSON Format = iota
	FormatAvro
	FormatParquet
	FormatCSV
	FormatCSVWithHeaders
	FormatText
	FormatBytes
)

// Extension returns the file extension a committed object of this format
// carries.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatAvro:
		return "avro"
	case FormatParquet:
		return "parquet"
	case FormatCSV, FormatCSVWithHeaders:
		return "csv"
	case FormatText:
		return "text"
	case FormatBytes:
		return "bytes"
	default:
		return "bin"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.Trim(s, "`")) {
	case "JSON":
		return FormatJSON, nil
	case "AVRO":
		return FormatAvro, nil
	case "PARQUET":
		return FormatParquet, nil
	case "CSV":
		return FormatCSV, nil
	case "CSV_WITHHEADERS":
		return FormatCSVWithHeaders, nil
	case "TEXT":
		return FormatText, nil
	case "BYTES":
		return FormatBytes, nil
	default:
		return 0, fmt.Errorf("unknown format %q: %w", s, sinkerr.ErrConfig)
	}
}

// CommitPolicy names the thresholds a KCQL statement's WITH_FLUSH_* clauses
// configure for when an open file is rolled and uploaded.
type CommitPolicy struct {
	MaxCount      *int64
	MaxBytes      *int64
	MaxIntervalMs *int64
}

// Validate rejects a CommitPolicy with no configured threshold.
func (c CommitPolicy) Validate() error {
	if c.MaxCount == nil && c.MaxBytes == nil && c.MaxIntervalMs == nil {
		return fmt.Errorf("commit policy requires at least one of WITH_FLUSH_COUNT/WITH_FLUSH_SIZE/WITH_FLUSH_INTERVAL: %w", sinkerr.ErrConfig)
	}
	return nil
}

// Statement is one parsed `INSERT INTO <bucket>:<prefix> SELECT * FROM
// <topic> ...` KCQL statement.
type Statement struct {
	Bucket          string
	Prefix          string
	Topic           string
	PartitionBy     []Selector
	Format          Format
	PartitionerMode PartitionerMode
	Commit          CommitPolicy
}

// Validate applies every parse-time constraint: slash rejection in prefix
// and partition paths, and selector sanity.
func (s Statement) Validate() error {
	if strings.Contains(s.Prefix, "/") {
		return fmt.Errorf("prefix %q must not contain '/': %w (NESTED_PREFIX_UNSUPPORTED)", s.Prefix, sinkerr.ErrConfig)
	}
	if s.Bucket == "" {
		return fmt.Errorf("bucket is required: %w", sinkerr.ErrConfig)
	}
	if s.Topic == "" {
		return fmt.Errorf("source topic is required: %w", sinkerr.ErrConfig)
	}
	if err := s.Commit.Validate(); err != nil {
		return err
	}
	for _, sel := range s.PartitionBy {
		if err := validateSelector(sel); err != nil {
			return err
		}
		if (sel.Kind == SelectorTopic || sel.Kind == SelectorPartition) && s.PartitionerMode != Values {
			return fmt.Errorf("_topic/_partition selectors require WITHPARTITIONER=Values: %w", sinkerr.ErrConfig)
		}
	}
	return nil
}

func validateSelector(sel Selector) error {
	for _, seg := range sel.Path {
		if strings.Contains(seg, "/") {
			return fmt.Errorf("partition path segment %q must not contain '/': %w (INVALID_PARTITION_PATH)", seg, sinkerr.ErrConfig)
		}
	}
	for _, seg := range sel.SubPath {
		if strings.Contains(seg, "/") {
			return fmt.Errorf("partition path segment %q must not contain '/': %w (INVALID_PARTITION_PATH)", seg, sinkerr.ErrConfig)
		}
	}
	if sel.Kind == SelectorHeaderPath && sel.HeaderName == "" {
		return fmt.Errorf("header selector requires a header name: %w", sinkerr.ErrConfig)
	}
	return nil
}

// UsesPartitioning reports whether the statement names any PARTITIONBY
// selector, which decides Hierarchical vs Partitioned naming.
func (s Statement) UsesPartitioning() bool {
	return len(s.PartitionBy) > 0
}
