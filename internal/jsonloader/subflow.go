package jsonloader

import (
	"strings"

	"github.com/edgeflow/edgelink/internal/model"
)

// subflowPack groups an instance node, its subflow definition, and the definition's
// children by index into the original elements slice.
type subflowPack struct {
	subflowID   string
	instanceIdx int
	subflowIdx  int
	childIdx    []int
}

// preprocessSubflows materializes one fresh clone per subflow-instance node (spec
// §4.1 stage 1): the subflow definition and its children get new ids (the instance's
// own id is unchanged, only its "type" is rewritten), and every id reference inside
// the clone is remapped through the substitution table before the originals are
// dropped.
func preprocessSubflows(elements []RawElement) ([]RawElement, error) {
	toDelete := make(map[int]bool)
	var packs []subflowPack

	for i, el := range elements {
		typeStr, ok := getString(el, "type")
		if !ok {
			continue
		}
		kind, subflowID, found := strings.Cut(typeStr, ":")
		if !found || kind != "subflow" {
			continue
		}

		subflowIdx := -1
		for j, cand := range elements {
			if s, ok := getString(cand, "id"); ok && s == subflowID {
				subflowIdx = j
				break
			}
		}
		if subflowIdx == -1 {
			name, _ := getString(el, "name")
			return nil, badJSON(
				"cannot find the subflow for subflow instance node (id=%q, type=%q, name=%q)",
				subflowID, typeStr, name)
		}

		var childIdx []int
		for j, cand := range elements {
			if z, ok := getString(cand, "z"); ok && z == subflowID {
				childIdx = append(childIdx, j)
			}
		}

		packs = append(packs, subflowPack{
			subflowID:   subflowID,
			instanceIdx: i,
			subflowIdx:  subflowIdx,
			childIdx:    childIdx,
		})

		toDelete[i] = true
		toDelete[subflowIdx] = true
		for _, c := range childIdx {
			toDelete[c] = true
		}
	}

	if len(packs) == 0 {
		return elements, nil
	}

	var cloned []RawElement

	for _, p := range packs {
		idMap := make(map[string]string)
		packStart := len(cloned)
		subflowNewID := model.NewElementId()

		newSubflow := cloneRawElement(elements[p.subflowIdx])
		newSubflow["id"] = subflowNewID.String()
		idMap[p.subflowID] = subflowNewID.String()
		cloned = append(cloned, newSubflow)

		newInstance := cloneRawElement(elements[p.instanceIdx])
		newInstance["type"] = "subflow:" + subflowNewID.String()
		cloned = append(cloned, newInstance)

		for _, ci := range p.childIdx {
			oldChild := elements[ci]
			oldIDStr, _ := getString(oldChild, "id")
			oldID, err := model.ParseElementId(oldIDStr)
			if err != nil {
				return nil, badJSON("cannot parse id: %q", oldIDStr)
			}
			newChildID, err := model.Combine(subflowNewID, oldID)
			if err != nil {
				return nil, err
			}
			newChild := cloneRawElement(oldChild)
			newChild["id"] = newChildID.String()
			idMap[oldIDStr] = newChildID.String()
			cloned = append(cloned, newChild)
		}

		for _, node := range cloned[packStart:] {
			remapNodeReferences(node, idMap)
		}
	}

	for i, el := range elements {
		if !toDelete[i] {
			cloned = append(cloned, el)
		}
	}

	return cloned, nil
}

// remapNodeReferences rewrites every id-shaped field of node through idMap. Fields
// absent from idMap (ids outside the cloned subflow) are left untouched.
func remapNodeReferences(node RawElement, idMap map[string]string) {
	if z, ok := getString(node, "z"); ok {
		if newID, ok := idMap[z]; ok {
			node["z"] = newID
		}
	}
	if g, ok := getString(node, "g"); ok {
		if newID, ok := idMap[g]; ok {
			node["g"] = newID
		}
	}
	if t, ok := getString(node, "type"); ok {
		if kind, rest, found := strings.Cut(t, ":"); found && kind == "subflow" {
			if newID, ok := idMap[rest]; ok {
				node["type"] = "subflow:" + newID
			}
		}
	}
	remapNestedIDArray(node, "wires", idMap)
	remapFlatIDArray(node, "scope", idMap)
	remapFlatIDArray(node, "links", idMap)
	remapPortWires(node, "in", idMap)
	remapPortWires(node, "out", idMap)
}

func remapNestedIDArray(node RawElement, key string, idMap map[string]string) {
	outer, ok := node[key].([]interface{})
	if !ok {
		return
	}
	for _, inner := range outer {
		wire, ok := inner.([]interface{})
		if !ok {
			continue
		}
		for i, idv := range wire {
			if s, ok := idv.(string); ok {
				if newID, ok := idMap[s]; ok {
					wire[i] = newID
				}
			}
		}
	}
}

func remapFlatIDArray(node RawElement, key string, idMap map[string]string) {
	arr, ok := node[key].([]interface{})
	if !ok {
		return
	}
	for i, idv := range arr {
		if s, ok := idv.(string); ok {
			if newID, ok := idMap[s]; ok {
				arr[i] = newID
			}
		}
	}
}

// remapPortWires handles a subflow definition's "in"/"out" port arrays, each entry
// shaped like {"wires":[{"id":"<nodeId>"}, ...]}.
func remapPortWires(node RawElement, key string, idMap map[string]string) {
	ports, ok := node[key].([]interface{})
	if !ok {
		return
	}
	for _, portv := range ports {
		port, ok := portv.(map[string]interface{})
		if !ok {
			continue
		}
		wires, ok := port["wires"].([]interface{})
		if !ok {
			continue
		}
		for _, wirev := range wires {
			wire, ok := wirev.(map[string]interface{})
			if !ok {
				continue
			}
			s, ok := wire["id"].(string)
			if !ok {
				continue
			}
			if newID, ok := idMap[s]; ok {
				wire["id"] = newID
			}
		}
	}
}

func cloneRawElement(m RawElement) RawElement {
	return cloneJSONValue(m).(RawElement)
}

func cloneJSONValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = cloneJSONValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = cloneJSONValue(val)
		}
		return out
	default:
		return v
	}
}

// mergeSubflowEnv merges each subflow definition's "env" array into every instance
// of it (instance entries win ties by name), per spec §4.1 stage 2. Mutates in
// place since RawElement is a map.
func mergeSubflowEnv(elements []RawElement) error {
	subflowEnvs := make(map[string][]interface{})
	for _, el := range elements {
		if t, ok := getString(el, "type"); !ok || t != "subflow" {
			continue
		}
		env, ok := el["env"].([]interface{})
		if !ok {
			continue
		}
		id, ok := getString(el, "id")
		if !ok {
			continue
		}
		subflowEnvs[id] = env
	}

	for _, el := range elements {
		t, ok := getString(el, "type")
		if !ok {
			continue
		}
		kind, subflowID, found := strings.Cut(t, ":")
		if !found || kind != "subflow" {
			continue
		}
		refEnv, ok := subflowEnvs[subflowID]
		if !ok {
			continue
		}

		instanceEnv, _ := el["env"].([]interface{})
		existingNames := make(map[string]bool, len(instanceEnv))
		for _, item := range instanceEnv {
			if m, ok := item.(map[string]interface{}); ok {
				if name, ok := getString(m, "name"); ok {
					existingNames[name] = true
				}
			}
		}
		for _, item := range refEnv {
			if m, ok := item.(map[string]interface{}); ok {
				if name, ok := getString(m, "name"); ok && !existingNames[name] {
					instanceEnv = append(instanceEnv, item)
				}
			}
		}
		el["env"] = instanceEnv
	}
	return nil
}
