package novagrid

import (
	"fmt"
	"math"
	"strings"
)

// Absent marks a field that a record names but carries no value for. It is
// distinct from nil: nil is a null value, Absent means "the caller said
// nothing about this field". Rows decoded from the cluster use it for
// columns the server elided.
var Absent any = absent{}

type absent struct{}

func (absent) String() string { return "<absent>" }

// Tuple is an ordered set of named fields. Field names are unique under
// case-insensitive comparison; values are any of the supported primitive
// types (see ColumnType), nil for null, or Absent. A Tuple may hold any
// subset of a table's columns, in any order.
type Tuple struct {
	names []string
	vals  []any
	index map[string]int
}

// NewTuple returns an empty record.
func NewTuple() *Tuple {
	return &Tuple{index: make(map[string]int)}
}

// Set inserts the field or overwrites an existing one (matched
// case-insensitively, keeping the original name). It returns the tuple
// for chaining.
func (t *Tuple) Set(name string, v any) *Tuple {
	key := strings.ToLower(name)
	if i, ok := t.index[key]; ok {
		t.vals[i] = v
		return t
	}
	t.index[key] = len(t.names)
	t.names = append(t.names, name)
	t.vals = append(t.vals, v)
	return t
}

// ColumnOrdinal returns the ordinal of the named field, or -1.
func (t *Tuple) ColumnOrdinal(name string) int {
	i, ok := t.index[strings.ToLower(name)]
	if !ok {
		return -1
	}
	return i
}

// ColumnCount returns the number of fields in the record.
func (t *Tuple) ColumnCount() int { return len(t.names) }

// ColumnName returns the name of the field at ordinal i.
func (t *Tuple) ColumnName(i int) string { return t.names[i] }

// Get returns the value of the named field. Absent fields, named or not,
// report FieldNotFoundError.
func (t *Tuple) Get(name string) (any, error) {
	i := t.ColumnOrdinal(name)
	if i < 0 {
		return nil, &FieldNotFoundError{Name: name}
	}
	return t.GetAt(i)
}

// GetAt returns the value of the field at ordinal i.
func (t *Tuple) GetAt(i int) (any, error) {
	if i < 0 || i >= len(t.vals) {
		return nil, &FieldNotFoundError{Name: fmt.Sprintf("#%d", i)}
	}
	if _, ok := t.vals[i].(absent); ok {
		return nil, &FieldNotFoundError{Name: t.names[i]}
	}
	return t.vals[i], nil
}

// Has reports whether the record carries a value (possibly null) for the
// named field.
func (t *Tuple) Has(name string) bool {
	i := t.ColumnOrdinal(name)
	if i < 0 {
		return false
	}
	_, isAbsent := t.vals[i].(absent)
	return !isAbsent
}

// TupleGet returns the named field coerced to T. Integer values coerce
// across widths when the value fits; float32 and float64 convert into each
// other without a range check; anything else must match exactly.
func TupleGet[T any](t *Tuple, name string) (T, error) {
	var zero T
	v, err := t.Get(name)
	if err != nil {
		return zero, err
	}
	out, ok := coerce[T](v)
	if !ok {
		return zero, &TypeMismatchError{
			Column:   name,
			Expected: fmt.Sprintf("%T", zero),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return out, nil
}

func coerce[T any](v any) (T, bool) {
	if out, ok := v.(T); ok {
		return out, true
	}
	var zero T
	switch any(zero).(type) {
	case int8:
		if x, ok := asInt64(v); ok && x >= math.MinInt8 && x <= math.MaxInt8 {
			return any(int8(x)).(T), true
		}
	case int16:
		if x, ok := asInt64(v); ok && x >= math.MinInt16 && x <= math.MaxInt16 {
			return any(int16(x)).(T), true
		}
	case int32:
		if x, ok := asInt64(v); ok && x >= math.MinInt32 && x <= math.MaxInt32 {
			return any(int32(x)).(T), true
		}
	case int64:
		if x, ok := asInt64(v); ok {
			return any(x).(T), true
		}
	case float32:
		if x, ok := v.(float64); ok {
			return any(float32(x)).(T), true
		}
	case float64:
		if x, ok := v.(float32); ok {
			return any(float64(x)).(T), true
		}
	}
	return zero, false
}

// asInt64 accepts the integer types a caller is likely to hand in.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

// String renders the record for logs and test failures.
func (t *Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", name, t.vals[i])
	}
	sb.WriteByte('}')
	return sb.String()
}
