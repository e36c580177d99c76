// Package value implements the JSON-shaped Value type that flows along the
// edges of a graph: null, boolean, number, string, ordered array, or
// string-keyed object. Values are immutable after construction; callers
// that need to mutate a composite value must build a new one.
package value

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged-union JSON datum. The zero value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	a    []Value
	o    map[string]Value
}

// NewNull returns the null value.
func NewNull() Value { return Value{kind: Null} }

// NewBool wraps a boolean.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewNumber wraps a float64.
func NewNumber(n float64) Value { return Value{kind: Number, n: n} }

// NewString wraps a string.
func NewString(s string) Value { return Value{kind: String, s: s} }

// NewArray copies elems into a new array value.
func NewArray(elems []Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: Array, a: cp}
}

// NewObject copies fields into a new object value.
func NewObject(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: Object, o: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

// Bool returns the boolean payload; false if v is not a Bool.
func (v Value) Bool() bool { return v.b }

// Number returns the numeric payload; 0 if v is not a Number.
func (v Value) Number() float64 { return v.n }

// Str returns the string payload; "" if v is not a String.
func (v Value) Str() string { return v.s }

// Elements returns the array payload; nil if v is not an Array.
// The returned slice is a copy and safe to mutate.
func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	cp := make([]Value, len(v.a))
	copy(cp, v.a)
	return cp
}

// Fields returns the object payload; nil if v is not an Object.
// The returned map is a copy and safe to mutate.
func (v Value) Fields() map[string]Value {
	if v.kind != Object {
		return nil
	}
	cp := make(map[string]Value, len(v.o))
	for k, val := range v.o {
		cp[k] = val
	}
	return cp
}

// Len returns the number of elements/fields for Array/Object, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.a)
	case Object:
		return len(v.o)
	default:
		return 0
	}
}

// Walk navigates a "/"-separated sub-path per spec: numeric tokens index
// arrays, other tokens index objects. An empty path returns v unchanged.
// Walk reports (value, true) on success, (Null value, false) if the path
// does not resolve.
func Walk(v Value, path string) (Value, bool) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return v, true
	}
	tokens := strings.Split(path, "/")
	cur := v
	for _, tok := range tokens {
		switch cur.kind {
		case Array:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(cur.a) {
				return Value{}, false
			}
			cur = cur.a[idx]
		case Object:
			next, ok := cur.o[tok]
			if !ok {
				return Value{}, false
			}
			cur = next
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// WrapAt builds a new value with inner placed at the given sub-path,
// nesting it in one fresh single-field object per path token (numeric
// tokens also become object keys). Used by the router to satisfy a
// destination's dst_sub before writing. An empty path returns inner
// unchanged, matching "no destination wrapping requested".
func WrapAt(path string, inner Value) Value {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return inner
	}
	tokens := strings.Split(path, "/")
	cur := inner
	for i := len(tokens) - 1; i >= 0; i-- {
		cur = NewObject(map[string]Value{tokens[i]: cur})
	}
	return cur
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(v.b)
	case Number:
		return json.Marshal(v.n)
	case String:
		return json.Marshal(v.s)
	case Array:
		return json.Marshal(v.a)
	case Object:
		return json.Marshal(v.o)
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromInterface(raw)
	return nil
}

// FromInterface converts a decoded interface{} (as produced by
// encoding/json) into a Value tree.
func FromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(t)
	case float64:
		return NewNumber(t)
	case string:
		return NewString(t)
	case []interface{}:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = FromInterface(e)
		}
		return Value{kind: Array, a: elems}
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = FromInterface(e)
		}
		return Value{kind: Object, o: fields}
	default:
		return NewNull()
	}
}

// String renders a compact debug representation (JSON where possible).
func (v Value) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<value kind=%s>", v.kind)
	}
	return string(b)
}

// Equal reports deep equality between two values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case String:
		return a.s == b.s
	case Array:
		if len(a.a) != len(b.a) {
			return false
		}
		for i := range a.a {
			if !Equal(a.a[i], b.a[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.o) != len(b.o) {
			return false
		}
		for k, av := range a.o {
			bv, ok := b.o[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
