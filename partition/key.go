package partition

import (
	"fmt"
	"strconv"
	"strings"

	"s3sink/kcql"
	"s3sink/record"
)

// Component is one (displayName, renderedValue) pair of a LogicalPartitionKey.
type Component struct {
	Name  string
	Value string
}

// Key is the ordered tuple that names a record's logical partition.
// Equality is by ordered tuple (two keys are equal iff their Components
// slices are equal element-wise).
type Key struct {
	Components []Component
}

// Equal reports whether two keys have the same ordered components.
func (k Key) Equal(other Key) bool {
	if len(k.Components) != len(other.Components) {
		return false
	}
	for i := range k.Components {
		if k.Components[i] != other.Components[i] {
			return false
		}
	}
	return true
}

// String renders the key as "name=value/name=value". The manager uses it as
// the comparable writer-table key; object names are rendered by the naming
// package, which also knows the partitioner mode.
func (k Key) String() string {
	parts := make([]string, len(k.Components))
	for i, c := range k.Components {
		parts[i] = fmt.Sprintf("%s=%s", c.Name, c.Value)
	}
	return strings.Join(parts, "/")
}

// BuildKey evaluates every PARTITIONBY selector against r and assembles the
// ordered Key. selectors must already be parse-time validated
// (kcql.Statement.Validate).
func BuildKey(r record.Record, selectors []kcql.Selector) (Key, error) {
	components := make([]Component, 0, len(selectors))
	for _, sel := range selectors {
		name, value, err := evalSelector(r, sel)
		if err != nil {
			return Key{}, err
		}
		components = append(components, Component{Name: name, Value: Render(value)})
	}
	return Key{Components: components}, nil
}

func evalSelector(r record.Record, sel kcql.Selector) (string, record.SinkData, error) {
	switch sel.Kind {
	case kcql.SelectorValuePath:
		v, err := Extract(r, SourceValue, sel.Path)
		if err != nil {
			return "", record.SinkData{}, err
		}
		if err := CheckPrimitive(v); err != nil {
			return "", record.SinkData{}, err
		}
		return displayNameForPath(sel.Path), v, nil

	case kcql.SelectorKeyPath:
		v, err := Extract(r, SourceKey, sel.Path)
		if err != nil {
			return "", record.SinkData{}, err
		}
		if err := CheckPrimitive(v); err != nil {
			return "", record.SinkData{}, err
		}
		return keyDisplayName(sel.Path), v, nil

	case kcql.SelectorWholeKey:
		if err := CheckPrimitive(r.Key); err != nil {
			return "", record.SinkData{}, err
		}
		return "key", r.Key, nil

	case kcql.SelectorHeaderPath:
		v, err := ExtractHeader(r, sel.HeaderName, sel.SubPath)
		if err != nil {
			return "", record.SinkData{}, err
		}
		return headerDisplayName(sel.HeaderName, sel.SubPath), v, nil

	case kcql.SelectorTopic:
		return "", record.String(r.Topic), nil

	case kcql.SelectorPartition:
		return "", record.String(strconv.Itoa(r.KafkaPartition)), nil

	default:
		return "", record.SinkData{}, fmt.Errorf("unknown selector kind %v", sel.Kind)
	}
}

// displayNameForPath computes the display name for a value path: the full
// dotted path for nested paths, the bare field name for a single top-level
// field.
func displayNameForPath(path []string) string {
	return strings.Join(path, ".")
}

// keyDisplayName implements _key's sub-path display-name rule: complex
// keys display by their sub-path (e.g. "region"), not prefixed with "key.".
func keyDisplayName(path []string) string {
	if len(path) == 0 {
		return "key"
	}
	return strings.Join(path, ".")
}

// headerDisplayName implements "<headerName>[.<subpath>]".
func headerDisplayName(name string, subPath []string) string {
	if len(subPath) == 0 {
		return name
	}
	return name + "." + strings.Join(subPath, ".")
}
