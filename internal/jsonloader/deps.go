package jsonloader

import (
	"strings"

	"github.com/edgeflow/edgelink/internal/model"
)

func flattenNestedStringIDs(el RawElement, key string) []string {
	outer, ok := el[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, inner := range outer {
		arr, ok := inner.([]interface{})
		if !ok {
			continue
		}
		for _, idv := range arr {
			if s, ok := idv.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func flatStringIDs(el RawElement, key string) []string {
	arr, ok := el[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, idv := range arr {
		if s, ok := idv.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// flowDependencies computes the flow graph edges for a "tab" element (spec §4.1
// stage 4): this flow depends on every other flow that owns a node referenced by
// this flow's children's wires, or by a "link in" targeted by this flow's "link
// out"/"link call" nodes.
func flowDependencies(elements []RawElement, obj RawElement) []model.ElementId {
	thisID, ok := getString(obj, "id")
	if !ok {
		return nil
	}

	wireIDs := make(map[string]bool)
	linkInIDs := make(map[string]bool)
	for _, el := range elements {
		z, ok := getString(el, "z")
		if !ok || z != thisID {
			continue
		}
		for _, id := range flattenNestedStringIDs(el, "wires") {
			wireIDs[id] = true
		}
		t, _ := getString(el, "type")
		if t == "link out" || t == "link call" {
			for _, id := range flatStringIDs(el, "links") {
				linkInIDs[id] = true
			}
		}
	}

	seen := make(map[model.ElementId]bool)
	var deps []model.ElementId
	for _, el := range elements {
		id, ok := getString(el, "id")
		if !ok {
			continue
		}
		t, _ := getString(el, "type")
		if !(wireIDs[id] || (t == "link in" && linkInIDs[id])) {
			continue
		}
		z, ok := getString(el, "z")
		if !ok || z == thisID {
			continue // a node belonging to this flow itself is not a cross-flow dependency
		}
		zid, err := model.ParseElementId(z)
		if err != nil {
			continue
		}
		if !seen[zid] {
			seen[zid] = true
			deps = append(deps, zid)
		}
	}
	return deps
}

// subflowDependencies computes the flow graph edges for a subflow definition: it
// depends on every flow that hosts an instance of it, per spec §4.1 stage 4's
// "subflow-definitions depend on their instance flows".
func subflowDependencies(elements []RawElement, obj RawElement) []model.ElementId {
	subflowID, ok := getString(obj, "id")
	if !ok {
		return nil
	}
	seen := make(map[model.ElementId]bool)
	var deps []model.ElementId
	for _, el := range elements {
		t, ok := getString(el, "type")
		if !ok {
			continue
		}
		kind, rest, found := strings.Cut(t, ":")
		if !found || kind != "subflow" || rest != subflowID {
			continue
		}
		z, ok := getString(el, "z")
		if !ok {
			continue
		}
		zid, err := model.ParseElementId(z)
		if err != nil {
			continue
		}
		if !seen[zid] {
			seen[zid] = true
			deps = append(deps, zid)
		}
	}
	return deps
}

// flowNodeDependencies computes the node graph edges for a flow node: wires, scope,
// and (for link out/call) links, per spec §4.1 stage 4.
func flowNodeDependencies(obj RawElement) []model.ElementId {
	seen := make(map[model.ElementId]bool)
	var deps []model.ElementId
	add := func(s string) {
		id, err := model.ParseElementId(s)
		if err != nil {
			return
		}
		if !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}

	for _, s := range flattenNestedStringIDs(obj, "wires") {
		add(s)
	}
	for _, s := range flatStringIDs(obj, "scope") {
		add(s)
	}
	if t, ok := getString(obj, "type"); ok && (t == "link out" || t == "link call") {
		for _, s := range flatStringIDs(obj, "links") {
			add(s)
		}
	}
	return deps
}
