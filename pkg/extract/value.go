package extract

import "encoding/json"

// Kind discriminates the shape of an extracted value.
type Kind int

const (
	// KindScalar covers strings, numbers, booleans and null.
	KindScalar Kind = iota
	// KindObject is a JSON object.
	KindObject
	// KindArray is a JSON array.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "scalar"
	}
}

// Value is a tagged variant over the shapes a model may produce. Call-sites
// narrow with Object/Array/Scalar instead of ad-hoc type switches.
type Value struct {
	kind Kind
	data any
}

// FromAny wraps an already-decoded JSON value.
func FromAny(v any) Value {
	switch v.(type) {
	case map[string]any:
		return Value{kind: KindObject, data: v}
	case []any:
		return Value{kind: KindArray, data: v}
	default:
		return Value{kind: KindScalar, data: v}
	}
}

// ObjectValue wraps a map as an object Value.
func ObjectValue(m map[string]any) Value {
	return Value{kind: KindObject, data: m}
}

// Kind reports the shape of the value.
func (v Value) Kind() Kind { return v.kind }

// Interface returns the underlying decoded value.
func (v Value) Interface() any { return v.data }

// Object returns the value as a map if it is an object.
func (v Value) Object() (map[string]any, bool) {
	m, ok := v.data.(map[string]any)
	return m, ok
}

// Array returns the value as a slice if it is an array.
func (v Value) Array() ([]any, bool) {
	a, ok := v.data.([]any)
	return a, ok
}

// Scalar returns the underlying value if it is neither object nor array.
func (v Value) Scalar() (any, bool) {
	if v.kind == KindScalar {
		return v.data, true
	}
	return nil, false
}

// First returns the first element of an array value as a Value. For a
// non-array it returns the value itself. ok is false for an empty array.
func (v Value) First() (Value, bool) {
	if a, isArr := v.Array(); isArr {
		if len(a) == 0 {
			return Value{}, false
		}
		return FromAny(a[0]), true
	}
	return v, true
}

// Number returns the numeric field key of an object value.
func (v Value) Number(key string) (float64, bool) {
	m, ok := v.Object()
	if !ok {
		return 0, false
	}
	switch n := m[key].(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// String returns the string field key of an object value.
func (v Value) String(key string) (string, bool) {
	m, ok := v.Object()
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// MarshalJSON re-encodes the wrapped value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.data)
}
