package env

import "testing"

func TestThreeLevelChain(t *testing.T) {
	global, warns := NewBuilder().LoadJSON([]RawEntry{{Name: "A", Type: "str", Value: "global-a"}}).Build()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	flow, warns := NewBuilder().WithParent(global).LoadJSON([]RawEntry{
		{Name: "B", Type: "env", Value: "A"},
	}).Build()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	node, warns := NewBuilder().WithParent(flow).LoadJSON([]RawEntry{
		{Name: "C", Type: "str", Value: "${B}"},
	}).Build()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}

	v, ok := node.GetRaw("C")
	if !ok {
		t.Fatal("expected C to resolve")
	}
	if s, _ := v.AsString(); s != "global-a" {
		t.Errorf("got %q, want global-a", s)
	}
}

func TestLocalShadowsParent(t *testing.T) {
	parent, _ := NewBuilder().LoadJSON([]RawEntry{{Name: "X", Type: "str", Value: "parent"}}).Build()
	child, _ := NewBuilder().WithParent(parent).LoadJSON([]RawEntry{{Name: "X", Type: "str", Value: "child"}}).Build()

	v, ok := child.GetRaw("X")
	if !ok {
		t.Fatal("expected X")
	}
	if s, _ := v.AsString(); s != "child" {
		t.Errorf("got %q, want child (local shadow)", s)
	}
}

func TestDedupeKeepsLast(t *testing.T) {
	s, _ := NewBuilder().LoadJSON([]RawEntry{
		{Name: "X", Type: "str", Value: "first"},
		{Name: "X", Type: "str", Value: "second"},
	}).Build()
	v, _ := s.GetRaw("X")
	if str, _ := v.AsString(); str != "second" {
		t.Errorf("got %q, want second", str)
	}
}

func TestRelaxedBool(t *testing.T) {
	cases := map[string]bool{
		"":        false,
		"0":       false,
		"False":   false,
		"FALSE":   false,
		"true":    true,
		"1":       true,
		"anything": true,
	}
	for in, want := range cases {
		if got := relaxedBool(in); got != want {
			t.Errorf("relaxedBool(%q) = %v, want %v", in, got, want)
		}
	}
}
