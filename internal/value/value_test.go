package value

import "testing"

func TestWalkArrayAndObject(t *testing.T) {
	v := NewArray([]Value{
		NewObject(map[string]Value{"a": NewNumber(1)}),
		NewObject(map[string]Value{"a": NewNumber(2)}),
	})

	got, ok := Walk(v, "/1/a")
	if !ok {
		t.Fatalf("expected path to resolve")
	}
	if got.Number() != 2 {
		t.Fatalf("expected 2, got %v", got.Number())
	}
}

func TestWalkEmptyPathReturnsWhole(t *testing.T) {
	v := NewString("hello")
	got, ok := Walk(v, "")
	if !ok || got.Str() != "hello" {
		t.Fatalf("expected whole value back, got %v ok=%v", got, ok)
	}
}

func TestWalkMissingPathFails(t *testing.T) {
	v := NewObject(map[string]Value{"a": NewNumber(1)})
	if _, ok := Walk(v, "/b"); ok {
		t.Fatalf("expected missing path to fail")
	}
	if _, ok := Walk(v, "/0"); ok {
		t.Fatalf("expected out-of-kind index to fail")
	}
}

func TestWrapAtBuildsNesting(t *testing.T) {
	wrapped := WrapAt("/outer/inner", NewNumber(42))
	got, ok := Walk(wrapped, "/outer/inner")
	if !ok || got.Number() != 42 {
		t.Fatalf("expected nested value 42, got %v ok=%v", got, ok)
	}
}

func TestWrapAtEmptyPathIsNoop(t *testing.T) {
	v := NewString("x")
	if !Equal(WrapAt("", v), v) {
		t.Fatalf("expected empty path to return value unchanged")
	}
}

func TestEqual(t *testing.T) {
	a := NewArray([]Value{NewNumber(1), NewString("x")})
	b := NewArray([]Value{NewNumber(1), NewString("x")})
	c := NewArray([]Value{NewNumber(1), NewString("y")})
	if !Equal(a, b) {
		t.Fatalf("expected a == b")
	}
	if Equal(a, c) {
		t.Fatalf("expected a != c")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	v := NewObject(map[string]Value{
		"n":   NewNumber(3.5),
		"s":   NewString("hi"),
		"arr": NewArray([]Value{NewBool(true), NewNull()}),
	})
	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Value
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !Equal(v, back) {
		t.Fatalf("round-trip mismatch: %v != %v", v, back)
	}
}
