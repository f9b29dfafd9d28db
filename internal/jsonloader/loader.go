package jsonloader

import (
	"encoding/json"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/topo"
)

// LoadFlowsJSON parses a flows file's raw bytes and runs it through the full §4.1
// pipeline: subflow cloning, env merge, classification, and dependency-ordering.
func LoadFlowsJSON(data []byte) (*ResolvedFlows, error) {
	var root []RawElement
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, edgelinkerr.Wrap(edgelinkerr.BadFlowsJson, err, "flows file must be a JSON array of objects")
	}
	return LoadFlowsElements(root)
}

// LoadFlowsElements runs the §4.1 pipeline over an already-decoded element slice.
// Exposed separately so tests and the JSON-text-sequence stdin reader (which decodes
// its first record the same way) can skip the outer json.Unmarshal.
func LoadFlowsElements(root []RawElement) (*ResolvedFlows, error) {
	preprocessed, err := preprocessSubflows(root)
	if err != nil {
		return nil, err
	}
	if err := mergeSubflowEnv(preprocessed); err != nil {
		return nil, err
	}

	flowTopo := topo.New[model.ElementId]()
	groupTopo := topo.New[model.ElementId]()
	nodeTopo := topo.New[model.ElementId]()

	flows := make(map[model.ElementId]RawElement)
	groups := make(map[model.ElementId]RawElement)
	flowNodes := make(map[model.ElementId]RawElement)
	var globalNodesRaw []RawElement

	for _, el := range preprocessed {
		idStr, ok := getString(el, "id")
		if !ok {
			continue
		}
		typStr, ok := getString(el, "type")
		if !ok {
			continue
		}
		id, err := model.ParseElementId(idStr)
		if err != nil {
			return nil, badJSON("cannot parse id: %q", idStr)
		}
		tv := ParseTypeValue(typStr)

		switch tv.Kind {
		case "tab":
			flowTopo.AddVertex(id)
			flowTopo.AddDeps(id, flowDependencies(preprocessed, el))
			flows[id] = el

		case "subflow":
			if tv.HasID {
				// "subflow:<id>" -- a node that instantiates a subflow.
				nodeTopo.AddVertex(id)
				nodeTopo.AddDeps(id, flowNodeDependencies(el))
				flowNodes[id] = el
			} else {
				// The subflow definition itself.
				flowTopo.AddVertex(id)
				flowTopo.AddDeps(id, subflowDependencies(preprocessed, el))
				flows[id] = el
			}

		case "group":
			if _, hasZ := el["z"]; !hasZ {
				return nil, badJSON("the group must have a 'z' property")
			}
			groupTopo.AddVertex(id)
			if g, ok := getElementID(el, "g"); ok {
				groupTopo.AddDep(id, g)
			}
			groups[id] = el

		case "comment":
			// ignored

		default:
			if _, hasZ := el["z"]; hasZ {
				nodeTopo.AddVertex(id)
				nodeTopo.AddDeps(id, flowNodeDependencies(el))
				flowNodes[id] = el
			} else {
				globalNodesRaw = append(globalNodesRaw, el)
			}
		}
	}

	sortedFlows, err := resolveOrdered(flowTopo.DependencySort(), flows, "flow_id")
	if err != nil {
		return nil, err
	}

	var sortedGroups []GroupConfig
	for _, id := range groupTopo.DependencySort() {
		el, ok := groups[id]
		if !ok {
			return nil, badJSON("cannot find the group_id(%s) in flows", id)
		}
		gc, err := toGroupConfig(el)
		if err != nil {
			return nil, err
		}
		sortedGroups = append(sortedGroups, gc)
	}

	sortedFlowNodes, err := resolveOrdered(nodeTopo.DependencySort(), flowNodes, "node id")
	if err != nil {
		return nil, err
	}

	flowConfigs := make([]FlowConfig, 0, len(sortedFlows))
	for ordering, flowEl := range sortedFlows {
		fc, err := toFlowConfig(flowEl, ordering)
		if err != nil {
			return nil, err
		}

		if fc.TypeName == "subflow" {
			keyType := "subflow:" + fc.ID.String()
			for _, el := range preprocessed {
				if t, ok := getString(el, "type"); ok && t == keyType {
					if tmplID, ok := getElementID(el, "id"); ok {
						fc.SubflowTemplateNodeID = tmplID
					}
					break
				}
			}
		}

		for _, g := range sortedGroups {
			if g.Z == fc.ID {
				fc.Groups = append(fc.Groups, g)
			}
		}

		nodeOrdering := 0
		for _, nodeEl := range sortedFlowNodes {
			z, ok := getElementID(nodeEl, "z")
			if !ok || z != fc.ID {
				continue
			}
			nc, err := toFlowNodeConfig(nodeEl, nodeOrdering)
			if err != nil {
				return nil, err
			}
			fc.Nodes = append(fc.Nodes, nc)
			nodeOrdering++
		}

		flowConfigs = append(flowConfigs, fc)
	}

	globalConfigs := make([]GlobalNodeConfig, 0, len(globalNodesRaw))
	for _, el := range globalNodesRaw {
		gc, err := toGlobalNodeConfig(el)
		if err != nil {
			return nil, err
		}
		globalConfigs = append(globalConfigs, gc)
	}

	return &ResolvedFlows{Flows: flowConfigs, GlobalNodes: globalConfigs}, nil
}

// resolveOrdered walks a dependency-sorted id list and pulls the corresponding
// element out of the source map, failing descriptively if an id was only ever seen
// as someone else's dependency (a dangling reference) rather than a real element.
func resolveOrdered(ids []model.ElementId, src map[model.ElementId]RawElement, what string) ([]RawElement, error) {
	out := make([]RawElement, 0, len(ids))
	for _, id := range ids {
		el, ok := src[id]
		if !ok {
			return nil, badJSON("cannot find the %s(%s) in flows", what, id)
		}
		out = append(out, el)
	}
	return out, nil
}
