package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Schema is a minimal structural descriptor: enough to fingerprint for
// schema-change detection and to drive format writers (Parquet/Avro/CSV
// column lists) without runtime reflection over the original source type.
type Schema struct {
	Name     string
	Nullable bool
	Fields   []FieldSchema // ordered, for Struct; empty for scalars/maps
}

// FieldSchema is one declared field of a Struct schema.
type FieldSchema struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// Fingerprint computes a stable hash of the schema's shape: field names,
// kinds, and nullability in declared order. Two schemas with the same
// fingerprint are treated as compatible for the purposes of appending to
// the same open file; anything else forces a schema-change roll.
func Fingerprint(s *Schema) string {
	if s == nil {
		return "<schemaless>"
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|nullable=%v|", s.Name, s.Nullable)
	for _, f := range s.Fields {
		fmt.Fprintf(h, "%s:%s:%v;", f.Name, f.Kind, f.Nullable)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SortedFieldNames returns the schema's field names, sorted, for formats
// (CSV) that need a deterministic column order independent of declaration
// order inconsistencies across batches with the same logical schema.
func SortedFieldNames(s *Schema) []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}
