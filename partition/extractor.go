// Package partition implements the field extractor and logical
// partition-key builder: pure evaluation of dotted paths and header
// paths against a record, and the ordered (name, value) tuple that names a
// record's logical partition.
package partition

import (
	"fmt"

	"s3sink/kcql"
	"s3sink/record"
	"s3sink/sinkerr"
)

// Missing is the sentinel "absent field" result. It is not an error: field
// absence in a value or key is routine and renders as the literal
// "[missing]" in a partition path.
var Missing = record.SinkData{}

// IsMissing reports whether d is the Missing sentinel (a Null SinkData, or
// the zero value).
func IsMissing(d record.SinkData) bool {
	return d.Kind == record.KindNull
}

// Source selects which side of the record a path is evaluated against.
type Source int

const (
	SourceValue Source = iota
	SourceKey
)

// Extract evaluates a dotted path against a record's value or key.
// ValuePath([]) / KeyPath([]) return the whole value/key. Traversal through
// a null field, or into an absent map key, yields Missing rather than an
// error.
func Extract(r record.Record, src Source, path []string) (record.SinkData, error) {
	root := r.Value
	if src == SourceKey {
		root = r.Key
	}
	if len(path) == 0 {
		return root, nil
	}
	return extractPath(root, path)
}

func extractPath(d record.SinkData, path []string) (record.SinkData, error) {
	cur := d
	for _, seg := range path {
		switch cur.Kind {
		case record.KindNull:
			// A null field along the path is routine absence, not an error.
			return Missing, nil
		case record.KindStruct, record.KindMap:
			v, ok := cur.Field(seg)
			if !ok {
				return Missing, nil
			}
			cur = v
		default:
			// Reached a scalar (or array) with path segments still left to
			// traverse: the record's actual shape doesn't match the
			// configured nested partitioner, which is fatal for the batch.
			return record.SinkData{}, fmt.Errorf("path segment %q: cannot traverse into %s: %w", seg, cur.Kind, sinkerr.ErrRecordType)
		}
	}
	return cur, nil
}

// ExtractHeader evaluates a HeaderPath selector: find header `name` (error
// if absent — header absence during partitioning is fatal, unlike value/key
// field absence), decode it into SinkData, then recurse into subPath.
func ExtractHeader(r record.Record, name string, subPath []string) (record.SinkData, error) {
	raw, ok := r.HeaderValue(name)
	if !ok {
		return record.SinkData{}, fmt.Errorf("header %q: %w", name, sinkerr.ErrHeaderMissing)
	}
	val := decodeHeaderBytes(raw)
	if len(subPath) == 0 {
		return val, nil
	}
	return extractPath(val, subPath)
}

// decodeHeaderBytes makes a best-effort guess at a header's structured
// shape. Headers without an external schema arrive as raw bytes from the
// runtime; a header that looks like a decimal integer is treated as a Long
// so it renders canonically, otherwise it's a String.
func decodeHeaderBytes(raw []byte) record.SinkData {
	s := string(raw)
	if s == "" {
		return record.String(s)
	}
	if n, ok := parseInt64(s); ok {
		return record.Long(n)
	}
	return record.String(s)
}

func parseInt64(s string) (int64, bool) {
	neg := false
	i := 0
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		i = 1
	}
	if i == len(s) {
		return 0, false
	}
	var n int64
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// Render converts a SinkData to its canonical path-component string:
// strings as-is, numbers by canonical decimal, booleans lowercased,
// Missing as the literal "[missing]".
func Render(d record.SinkData) string {
	if IsMissing(d) {
		return "[missing]"
	}
	if s, ok := d.CanonicalDecimal(); ok {
		return s
	}
	return "[missing]"
}

// CheckPrimitive enforces the NON_PRIMITIVE_KEY / RecordType constraint: a
// value used directly as a partition value (whole-key, whole-value, or
// header leaf) must be a primitive scalar.
func CheckPrimitive(d record.SinkData) error {
	if IsMissing(d) {
		return nil
	}
	if !d.Kind.IsPrimitive() {
		return fmt.Errorf("value of kind %s used as partition value: %w", d.Kind, sinkerr.ErrNonPrimitiveKey)
	}
	return nil
}

// selectorSource maps a kcql.SelectorKind to the Source it reads from,
// where applicable.
func selectorSource(kind kcql.SelectorKind) Source {
	if kind == kcql.SelectorKeyPath || kind == kcql.SelectorWholeKey {
		return SourceKey
	}
	return SourceValue
}
