// Package topo implements a cycle-tolerant topological sorter, grounded on the
// upstream `utils/topo.rs` TopologicalSorter: add_dep(from, to) means "from depends
// on to", and dependency_sort() is the reverse of topological_sort().
package topo

// Sorter is a generic topological sorter over comparable vertex values. It tolerates
// cycles: when no vertex with zero remaining in-degree exists, it breaks the tie by
// picking any remaining vertex, matching spec §4.1's "cycles must be tolerated...
// best-effort deterministic" requirement.
type Sorter[N comparable] struct {
	order    []N
	seen     map[N]bool
	deps     map[N]map[N]bool // vertex -> set of vertices it depends on
	dependOn map[N]map[N]bool // vertex -> set of vertices that depend on it
}

// New creates an empty Sorter.
func New[N comparable]() *Sorter[N] {
	return &Sorter[N]{
		seen:     make(map[N]bool),
		deps:     make(map[N]map[N]bool),
		dependOn: make(map[N]map[N]bool),
	}
}

func (s *Sorter[N]) ensure(v N) {
	if !s.seen[v] {
		s.seen[v] = true
		s.order = append(s.order, v)
		s.deps[v] = make(map[N]bool)
		s.dependOn[v] = make(map[N]bool)
	}
}

// AddVertex registers v with no dependencies, if not already present.
func (s *Sorter[N]) AddVertex(v N) { s.ensure(v) }

// AddDep records that `from` depends on `to` (matching the Rust source's add_dep).
func (s *Sorter[N]) AddDep(from, to N) {
	s.ensure(from)
	s.ensure(to)
	if !s.deps[from][to] {
		s.deps[from][to] = true
		s.dependOn[to][from] = true
	}
}

// AddDeps is AddDep for multiple `to` targets.
func (s *Sorter[N]) AddDeps(from N, tos []N) {
	for _, to := range tos {
		s.AddDep(from, to)
	}
}

// TopologicalSort returns vertices ordered so that, where the dependency graph is
// acyclic, each vertex appears after everything it depends on. Vertices involved in a
// cycle are still all emitted, in a best-effort, deterministic (insertion-order-tied)
// fashion.
func (s *Sorter[N]) TopologicalSort() []N {
	remaining := make(map[N]int, len(s.order))
	for _, v := range s.order {
		remaining[v] = len(s.deps[v])
	}

	// inDegreeReady processes "to"-before-"from": a vertex is ready once all the
	// vertices it depends on have been emitted.
	emitted := make(map[N]bool, len(s.order))
	result := make([]N, 0, len(s.order))

	for len(result) < len(s.order) {
		progressed := false
		for _, v := range s.order {
			if emitted[v] {
				continue
			}
			ready := true
			for dep := range s.deps[v] {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				result = append(result, v)
				emitted[v] = true
				progressed = true
			}
		}
		if !progressed {
			// Cycle: emit the first remaining vertex in insertion order to break
			// the deadlock, then keep going. This keeps the sort total and
			// deterministic even on cyclic input.
			for _, v := range s.order {
				if !emitted[v] {
					result = append(result, v)
					emitted[v] = true
					break
				}
			}
		}
	}
	return result
}

// DependencySort returns the reverse of TopologicalSort.
func (s *Sorter[N]) DependencySort() []N {
	t := s.TopologicalSort()
	out := make([]N, len(t))
	for i, v := range t {
		out[len(t)-1-i] = v
	}
	return out
}
