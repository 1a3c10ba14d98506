// Package kcqlparse is a minimal reference tokenizer for a KCQL grammar
// subset, existing only so cmd/s3sink has a runnable entry point. It
// intentionally covers only the subset spelled out in the configuration
// surface (kcql.Statement's fields), not the full upstream DSL (joins,
// WITHCONVERTER, WITHTAG, etc.).
package kcqlparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"s3sink/kcql"
	"s3sink/sinkerr"
)

// statementRe splits "INSERT INTO bucket:prefix SELECT * FROM topic" from
// its trailing clauses.
var statementRe = regexp.MustCompile(`(?i)^INSERT\s+INTO\s+([^:]+):(\S+)\s+SELECT\s+\*\s+FROM\s+(\S+)(.*)$`)

// Parse tokenizes one or more ';'-separated KCQL statements.
func Parse(raw string) ([]kcql.Statement, error) {
	var statements []kcql.Statement
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		stmt, err := parseOne(part)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("no KCQL statements found: %w", sinkerr.ErrConfig)
	}
	return statements, nil
}

func parseOne(s string) (kcql.Statement, error) {
	m := statementRe.FindStringSubmatch(s)
	if m == nil {
		return kcql.Statement{}, fmt.Errorf("malformed KCQL statement %q: %w", s, sinkerr.ErrConfig)
	}

	stmt := kcql.Statement{
		Bucket: strings.TrimSpace(m[1]),
		Prefix: strings.TrimSpace(m[2]),
		Topic:  strings.TrimSpace(m[3]),
		Format: kcql.FormatJSON,
	}

	clauses := m[4]

	if f := matchClause(clauses, `STOREAS\s+(\S+)`); f != "" {
		format, err := kcql.ParseFormat(f)
		if err != nil {
			return kcql.Statement{}, err
		}
		stmt.Format = format
	}

	if pb := matchClause(clauses, `PARTITIONBY\s+([^\s][^\n]*?)(?:\s+(?:STOREAS|WITHPARTITIONER|WITH_FLUSH)|\s*$)`); pb != "" {
		selectors, err := parsePartitionBy(pb)
		if err != nil {
			return kcql.Statement{}, err
		}
		stmt.PartitionBy = selectors
	}

	if pm := matchClause(clauses, `WITHPARTITIONER\s*=\s*(\S+)`); strings.EqualFold(pm, "Values") {
		stmt.PartitionerMode = kcql.Values
	}

	stmt.Commit = kcql.CommitPolicy{
		MaxCount:      matchInt(clauses, `WITH_FLUSH_COUNT\s*=\s*(\d+)`),
		MaxBytes:      matchInt(clauses, `WITH_FLUSH_SIZE\s*=\s*(\d+)`),
		MaxIntervalMs: matchInt(clauses, `WITH_FLUSH_INTERVAL\s*=\s*(\d+)`),
	}

	if err := stmt.Validate(); err != nil {
		return kcql.Statement{}, err
	}
	return stmt, nil
}

func matchClause(s, pattern string) string {
	re := regexp.MustCompile(`(?i)` + pattern)
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func matchInt(s, pattern string) *int64 {
	v := matchClause(s, pattern)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parsePartitionBy splits a comma-separated PARTITIONBY clause into
// selectors, recognizing _key, _topic, _partition, header.<name>[.<path>],
// and dotted value/key paths (value.* is the default, key.* is explicit).
func parsePartitionBy(raw string) ([]kcql.Selector, error) {
	var selectors []kcql.Selector
	for _, term := range strings.Split(raw, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		sel, err := parseSelector(term)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel)
	}
	return selectors, nil
}

func parseSelector(term string) (kcql.Selector, error) {
	switch {
	case strings.EqualFold(term, "_key"):
		return kcql.Selector{Kind: kcql.SelectorWholeKey}, nil
	case strings.EqualFold(term, "_topic"):
		return kcql.Selector{Kind: kcql.SelectorTopic}, nil
	case strings.EqualFold(term, "_partition"):
		return kcql.Selector{Kind: kcql.SelectorPartition}, nil
	case strings.HasPrefix(strings.ToLower(term), "header."):
		segs := strings.Split(term[len("header."):], ".")
		if len(segs) == 0 || segs[0] == "" {
			return kcql.Selector{}, fmt.Errorf("malformed header selector %q: %w", term, sinkerr.ErrConfig)
		}
		return kcql.Selector{Kind: kcql.SelectorHeaderPath, HeaderName: segs[0], SubPath: segs[1:]}, nil
	case strings.HasPrefix(strings.ToLower(term), "key."):
		return kcql.Selector{Kind: kcql.SelectorKeyPath, Path: strings.Split(term[len("key."):], ".")}, nil
	case strings.HasPrefix(strings.ToLower(term), "value."):
		return kcql.Selector{Kind: kcql.SelectorValuePath, Path: strings.Split(term[len("value."):], ".")}, nil
	default:
		return kcql.Selector{Kind: kcql.SelectorValuePath, Path: strings.Split(term, ".")}, nil
	}
}
