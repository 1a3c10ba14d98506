// Package record defines the untyped record shape the sink receives from the
// upstream runtime, and the tagged-union value representation (SinkData)
// every other package traverses, renders, or encodes.
package record

import (
	"fmt"
	"time"

	kafka "github.com/jessekempf/kafka-go"
)

// Header is a single record header. It mirrors the shape the upstream
// runtime's Kafka client already hands out, so records can be built directly
// from a delivered message without a conversion layer.
type Header = kafka.Header

// Record is one inbound message, already decoded into SinkData by the
// runtime's format decoder (decoding itself is out of scope for this repo).
type Record struct {
	Topic          string
	KafkaPartition int
	Offset         int64
	Key            SinkData
	Value          SinkData
	Headers        []Header
	Timestamp      time.Time
}

// HeaderValue returns the raw bytes of the named header and whether it was
// present. Header values arrive as bytes; structured header traversal
// (HeaderPath with a subpath) is handled by the partition package, which
// decodes these bytes into SinkData on demand.
func (r Record) HeaderValue(name string) ([]byte, bool) {
	for _, h := range r.Headers {
		if h.Key == name {
			return h.Value, true
		}
	}
	return nil, false
}

// Kind enumerates the tagged variants of SinkData.
type Kind int

const (
	KindNull Kind = iota
	KindStruct
	KindMap
	KindArray
	KindString
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBoolean
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindStruct:
		return "STRUCT"
	case KindMap:
		return "MAP"
	case KindArray:
		return "ARRAY"
	case KindString:
		return "STRING"
	case KindInt:
		return "INT"
	case KindLong:
		return "LONG"
	case KindFloat:
		return "FLOAT"
	case KindDouble:
		return "DOUBLE"
	case KindBoolean:
		return "BOOLEAN"
	case KindBytes:
		return "BYTES"
	default:
		return "UNKNOWN"
	}
}

// IsPrimitive reports whether this kind may stand alone as a partition
// value (a leaf scalar, as opposed to Struct/Map/Array/Null).
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindString, KindInt, KindLong, KindFloat, KindDouble, KindBoolean, KindBytes:
		return true
	default:
		return false
	}
}

// SinkData is the tagged union over every shape a record's key or value can
// take. Exactly one of the typed fields is meaningful, selected by Kind.
// A Null SinkData carries Schema non-nil if and only if the declared slot it
// occupies is nullable (enforced by whoever constructs the Null, not here).
type SinkData struct {
	Kind    Kind
	Schema  *Schema
	str     string
	i32     int32
	i64     int64
	f32     float32
	f64     float64
	boolean bool
	bytes   []byte
	fields  map[string]SinkData // Struct/Map
	array   []SinkData
}

// Null constructs a Null SinkData, optionally carrying a schema.
func Null(schema *Schema) SinkData { return SinkData{Kind: KindNull, Schema: schema} }

// String constructs a String SinkData.
func String(v string) SinkData { return SinkData{Kind: KindString, str: v} }

// Int constructs an Int32 SinkData.
func Int(v int32) SinkData { return SinkData{Kind: KindInt, i32: v} }

// Long constructs an Int64 SinkData.
func Long(v int64) SinkData { return SinkData{Kind: KindLong, i64: v} }

// Float constructs a Float32 SinkData.
func Float(v float32) SinkData { return SinkData{Kind: KindFloat, f32: v} }

// Double constructs a Float64 SinkData.
func Double(v float64) SinkData { return SinkData{Kind: KindDouble, f64: v} }

// Boolean constructs a Boolean SinkData.
func Boolean(v bool) SinkData { return SinkData{Kind: KindBoolean, boolean: v} }

// Bytes constructs a Bytes SinkData.
func Bytes(v []byte) SinkData { return SinkData{Kind: KindBytes, bytes: v} }

// Struct constructs a Struct SinkData from its declared fields, in schema
// order (the caller is expected to have validated the fields against schema).
func Struct(schema *Schema, fields map[string]SinkData) SinkData {
	return SinkData{Kind: KindStruct, Schema: schema, fields: fields}
}

// Map constructs a Map SinkData.
func Map(schema *Schema, entries map[string]SinkData) SinkData {
	return SinkData{Kind: KindMap, Schema: schema, fields: entries}
}

// Array constructs an Array SinkData.
func Array(schema *Schema, items []SinkData) SinkData {
	return SinkData{Kind: KindArray, Schema: schema, array: items}
}

// Field returns the named field of a Struct or Map, and whether it was
// present. A field whose value is explicitly Null is present but Kind ==
// KindNull; the caller (the partition extractor) treats that as Missing.
func (d SinkData) Field(name string) (SinkData, bool) {
	if d.Kind != KindStruct && d.Kind != KindMap {
		return SinkData{}, false
	}
	v, ok := d.fields[name]
	return v, ok
}

// Items returns the elements of an Array.
func (d SinkData) Items() []SinkData { return d.array }

// AsString returns the string payload; valid only when Kind == KindString.
func (d SinkData) AsString() string { return d.str }

// AsBytes returns the byte payload; valid only when Kind == KindBytes.
func (d SinkData) AsBytes() []byte { return d.bytes }

// AsBoolean returns the boolean payload; valid only when Kind == KindBoolean.
func (d SinkData) AsBoolean() bool { return d.boolean }

// AsInt64 widens any numeric kind to an int64, for formats that don't
// distinguish Int/Long on the wire.
func (d SinkData) AsInt64() int64 {
	switch d.Kind {
	case KindInt:
		return int64(d.i32)
	case KindLong:
		return d.i64
	default:
		return 0
	}
}

// AsFloat64 widens any floating kind to a float64.
func (d SinkData) AsFloat64() float64 {
	switch d.Kind {
	case KindFloat:
		return float64(d.f32)
	case KindDouble:
		return d.f64
	default:
		return 0
	}
}

// CanonicalDecimal renders a numeric or boolean SinkData in the canonical
// decimal form used for partition-value rendering and header display: no
// type suffixes, booleans lowercased.
func (d SinkData) CanonicalDecimal() (string, bool) {
	switch d.Kind {
	case KindInt:
		return fmt.Sprintf("%d", d.i32), true
	case KindLong:
		return fmt.Sprintf("%d", d.i64), true
	case KindFloat:
		return trimFloat(float64(d.f32)), true
	case KindDouble:
		return trimFloat(d.f64), true
	case KindBoolean:
		if d.boolean {
			return "true", true
		}
		return "false", true
	case KindString:
		return d.str, true
	default:
		return "", false
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

// ToGo converts a SinkData into a plain Go value (string, int32, int64,
// float32, float64, bool, []byte, map[string]any, []any, or nil), the shape
// every format writer below needs for encoding (encoding/json,
// encoding/csv, parquet-go, goavro all want native Go values, not the
// tagged union).
func (d SinkData) ToGo() any {
	switch d.Kind {
	case KindNull:
		return nil
	case KindString:
		return d.str
	case KindInt:
		return d.i32
	case KindLong:
		return d.i64
	case KindFloat:
		return d.f32
	case KindDouble:
		return d.f64
	case KindBoolean:
		return d.boolean
	case KindBytes:
		return d.bytes
	case KindArray:
		out := make([]any, len(d.array))
		for i, v := range d.array {
			out[i] = v.ToGo()
		}
		return out
	case KindStruct, KindMap:
		out := make(map[string]any, len(d.fields))
		for k, v := range d.fields {
			out[k] = v.ToGo()
		}
		return out
	default:
		return nil
	}
}

// FieldNames returns the declared field order of a Struct (from its
// Schema) if present, otherwise the map keys in indeterminate order (Map
// values have no declared order).
func (d SinkData) FieldNames() []string {
	if d.Schema != nil && len(d.Schema.Fields) > 0 {
		names := make([]string, len(d.Schema.Fields))
		for i, f := range d.Schema.Fields {
			names[i] = f.Name
		}
		return names
	}
	names := make([]string, 0, len(d.fields))
	for k := range d.fields {
		names = append(names, k)
	}
	return names
}
