// Package env implements the hierarchical environment-variable store described in
// spec §3 and §4.8 ("env" kind), grounded on original_source's runtime/env.rs.
package env

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/topo"
)

// RawEntry is one entry of a flows.json "env" array, prior to evaluation.
type RawEntry struct {
	Name  string
	Type  string // str|num|json|bool|bin|env|jsonata
	Value string
}

// Store is an immutable-after-Build name->Variant map that chains to a parent store.
// The chain models engine -> flow -> group -> node, per spec §3.
type Store struct {
	mu     sync.RWMutex
	values map[string]model.Variant
	parent *Store
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// GetRaw looks up name locally, then walks the parent chain.
func (s *Store) GetRaw(name string) (model.Variant, bool) {
	if s == nil {
		return model.Variant{}, false
	}
	s.mu.RLock()
	v, ok := s.values[name]
	s.mu.RUnlock()
	if ok {
		return v, true
	}
	return s.parent.GetRaw(name)
}

// GetNormalized resolves a value that may be an exact "${VAR}" reference, a bare
// variable name, or a string with embedded "${VAR}" interpolations.
func (s *Store) GetNormalized(text string) (model.Variant, bool) {
	if m := varPattern.FindStringSubmatch(text); m != nil && m[0] == text {
		// Exact "${VAR}" wrapper: return the raw Variant, not a stringified one.
		return s.GetRaw(m[1])
	}
	if v, ok := s.GetRaw(text); ok {
		return v, true
	}
	replaced, allResolved := s.ReplaceVars(text)
	if !allResolved {
		return model.Variant{}, false
	}
	return model.NewString(replaced), true
}

// ReplaceVars substitutes every "${VAR}" occurrence in text using GetRaw, returning
// the substituted string and whether every reference was resolved.
func (s *Store) ReplaceVars(text string) (string, bool) {
	allResolved := true
	out := varPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		v, ok := s.GetRaw(name)
		if !ok {
			allResolved = false
			return m
		}
		return v.ToString()
	})
	return out, allResolved
}

// Builder constructs a Store by evaluating a list of RawEntry, topologically ordering
// entries whose kind is "env" (they reference another entry's name) before the rest.
type Builder struct {
	parent  *Store
	entries []RawEntry
	withOS  bool
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) WithParent(p *Store) *Builder {
	b.parent = p
	return b
}

// WithProcessEnv seeds the store with the process's OS environment variables before
// flows.json entries are evaluated (flows.json entries of the same name win).
func (b *Builder) WithProcessEnv() *Builder {
	b.withOS = true
	return b
}

// LoadJSON appends entries parsed from a flows.json "env" array. Later entries with
// the same name override earlier ones (last occurrence wins), mirroring the Rust
// source's reverse+unique_by+filter+reverse dance.
func (b *Builder) LoadJSON(entries []RawEntry) *Builder {
	b.entries = append(b.entries, entries...)
	return b
}

// Build evaluates every entry and returns the finished, immutable Store. Entries
// that fail to evaluate are warned about and skipped rather than aborting the build.
func (b *Builder) Build() (*Store, []error) {
	s := &Store{values: make(map[string]model.Variant), parent: b.parent}

	if b.withOS {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				s.values[kv[:i]] = model.NewString(kv[i+1:])
			}
		}
	}

	dedup := dedupeByNameKeepLast(b.entries)

	sorter := topo.New[string]()
	byName := make(map[string]RawEntry, len(dedup))
	for _, e := range dedup {
		sorter.AddVertex(e.Name)
		byName[e.Name] = e
	}
	for _, e := range dedup {
		if e.Type == "env" {
			// An "env" kind entry's value names another entry it depends on.
			if _, ok := byName[e.Value]; ok {
				sorter.AddDep(e.Name, e.Value)
			}
		}
	}

	var warnings []error
	for _, name := range sorter.TopologicalSort() {
		e, ok := byName[name]
		if !ok {
			continue
		}
		v, err := s.evaluate(e)
		if err != nil {
			warnings = append(warnings, edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "failed to evaluate env entry "+e.Name))
			continue
		}
		s.values[e.Name] = v
	}
	return s, warnings
}

func dedupeByNameKeepLast(entries []RawEntry) []RawEntry {
	lastIdx := make(map[string]int, len(entries))
	for i, e := range entries {
		lastIdx[e.Name] = i
	}
	out := make([]RawEntry, 0, len(lastIdx))
	seen := make(map[string]bool, len(lastIdx))
	for i, e := range entries {
		if lastIdx[e.Name] == i && !seen[e.Name] {
			seen[e.Name] = true
			out = append(out, e)
		}
	}
	return out
}

// evaluate dispatches an entry's raw string value according to its declared Type,
// per spec §4.8's kind table restricted to the subset env entries can carry.
func (s *Store) evaluate(e RawEntry) (model.Variant, error) {
	switch e.Type {
	case "str", "":
		replaced, _ := s.ReplaceVars(e.Value)
		return model.NewString(replaced), nil
	case "num":
		f, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.BadArguments, err, "invalid num env value")
		}
		return model.NewFloat(f), nil
	case "json":
		var v model.Variant
		if err := json.Unmarshal([]byte(e.Value), &v); err != nil {
			return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "invalid json env value")
		}
		return v, nil
	case "bool":
		return model.NewBool(relaxedBool(e.Value)), nil
	case "bin":
		return model.Variant{}, edgelinkerr.New(edgelinkerr.NotSupported, "bin-kind env entries are not supported")
	case "env":
		v, ok := s.GetRaw(e.Value)
		if !ok {
			return model.Variant{}, edgelinkerr.Newf(edgelinkerr.InvalidOperation, "env indirection to %q could not be resolved", e.Value)
		}
		return v, nil
	case "jsonata":
		return model.Variant{}, edgelinkerr.New(edgelinkerr.NotSupported, "jsonata env entries are reserved, out of core scope")
	default:
		return model.Variant{}, edgelinkerr.Newf(edgelinkerr.UnsupportedFlowsJsonFormat, "unknown env entry type %q", e.Type)
	}
}

// relaxedBool implements spec §4.9's permissive boolean coercion.
func relaxedBool(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	if trimmed == "0" {
		return false
	}
	if strings.Contains(strings.ToLower(trimmed), "false") {
		return false
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && f == 0 {
		return false
	}
	return true
}
