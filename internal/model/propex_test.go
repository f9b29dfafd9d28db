package model

import "testing"

func TestParsePropex_Simple(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"payload", "payload"},
		{"a.b.c", "a.b.c"},
		{"a[0]", "a[0]"},
		{"a[0][1]", "a[0][1]"},
		{"a['b']", "a.b"},
		{`a["b"]`, "a.b"},
		{"a.b[0].c", "a.b[0].c"},
	}
	for _, c := range cases {
		expr, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", c.in, err)
		}
		if got := expr.String(); got != c.want {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParsePropex_Nested(t *testing.T) {
	expr, err := Parse("a[msg.b[0]]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(expr.Segments))
	}
	nestedSeg := expr.Segments[1]
	if nestedSeg.Kind != SegNested {
		t.Fatalf("expected nested segment, got %v", nestedSeg.Kind)
	}
	if nestedSeg.Nested[0].Kind != SegString || nestedSeg.Nested[0].Str != "msg" {
		t.Fatalf("nested expression must start with bare identifier 'msg', got %+v", nestedSeg.Nested[0])
	}
}

func TestParsePropex_Errors(t *testing.T) {
	badCases := []string{
		"",
		"[0]",       // leading index is illegal: first segment must be a bare identifier
		"a[",        // unterminated bracket
		"a['b",      // unterminated quote
		"a.[0]",     // dot must be followed by an identifier, not a bracket
		"1abc",      // identifier cannot start with a digit
		"a[0] extra",
	}
	for _, in := range badCases {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got none", in)
		}
	}
}

func TestGetSetRemove_RoundTrip(t *testing.T) {
	root := NewEmptyObject()
	expr, err := Parse("a.b[0].c")
	if err != nil {
		t.Fatal(err)
	}
	if err := Set(&root, expr, NewString("hello"), nil); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, ok := Get(root, expr, nil)
	if !ok {
		t.Fatal("expected value to be found after Set")
	}
	if s, _ := got.AsString(); s != "hello" {
		t.Errorf("got %q, want hello", s)
	}

	// unrelated sub-path unaffected
	otherExpr, _ := Parse("a.b[1]")
	if _, ok := Get(root, otherExpr, nil); ok {
		t.Errorf("expected a.b[1] to be absent")
	}

	if !Remove(&root, expr, nil) {
		t.Fatal("expected Remove to report the value existed")
	}
	if _, ok := Get(root, expr, nil); ok {
		t.Errorf("expected value to be gone after Remove")
	}
}

func TestGetSetWithNestedIndex(t *testing.T) {
	root := NewEmptyObject()
	root.ObjectSet("a", NewArray([]Variant{NewString("x"), NewString("y"), NewString("z")}))

	env := Environment{"msg": func() Variant {
		m := NewEmptyObject()
		m.ObjectSet("idx", NewInt(2))
		return m
	}()}

	expr, err := Parse("a[msg.idx]")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := Get(root, expr, env)
	if !ok {
		t.Fatal("expected nested-index lookup to resolve")
	}
	if s, _ := got.AsString(); s != "z" {
		t.Errorf("got %q, want z", s)
	}
}
