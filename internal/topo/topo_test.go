package topo

import (
	"reflect"
	"testing"
)

func TestLinearDependency(t *testing.T) {
	s := New[string]()
	s.AddDep("A", "B")
	s.AddDep("B", "C")
	got := s.TopologicalSort()
	want := []string{"C", "B", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCycleTolerant(t *testing.T) {
	s := New[string]()
	s.AddDep("A", "B")
	s.AddDep("B", "C")
	s.AddDep("C", "A")
	got := s.DependencySort()
	if len(got) != 3 {
		t.Fatalf("expected 3 vertices, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, v := range got {
		seen[v] = true
	}
	for _, v := range []string{"A", "B", "C"} {
		if !seen[v] {
			t.Errorf("missing vertex %q in cyclic sort result", v)
		}
	}
}

func TestDependencySortOrdering(t *testing.T) {
	s := New[string]()
	s.AddDeps("A", []string{"B", "C"})
	s.AddDep("B", "D")
	s.AddDep("C", "D")
	s.AddDep("D", "E")
	s.AddVertex("F")

	got := s.DependencySort()
	pos := make(map[string]int, len(got))
	for i, v := range got {
		pos[v] = i
	}
	if !(pos["A"] < pos["B"] && pos["A"] < pos["C"] && pos["B"] < pos["D"] && pos["C"] < pos["D"] && pos["D"] < pos["E"]) {
		t.Errorf("dependency ordering violated: %v", got)
	}
}
