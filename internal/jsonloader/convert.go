package jsonloader

import "github.com/edgeflow/edgelink/internal/model"

func toGroupConfig(el RawElement) (GroupConfig, error) {
	id, ok := getElementID(el, "id")
	if !ok {
		return GroupConfig{}, badJSON("group is missing a valid 'id'")
	}
	z, _ := getElementID(el, "z")
	g, _ := getElementID(el, "g")
	name, _ := getString(el, "name")
	return GroupConfig{ID: id, Z: z, G: g, Name: name, Raw: el}, nil
}

func toPortWires(el RawElement) ([]PortWire, error) {
	v, ok := el["wires"]
	if !ok {
		return nil, nil
	}
	outer, ok := v.([]interface{})
	if !ok {
		return nil, badJSON("'wires' must be an array of arrays of id strings")
	}
	out := make([]PortWire, 0, len(outer))
	for _, inner := range outer {
		arr, ok := inner.([]interface{})
		if !ok {
			return nil, badJSON("'wires' must be an array of arrays of id strings")
		}
		ids := make([]model.ElementId, 0, len(arr))
		for _, idv := range arr {
			s, ok := idv.(string)
			if !ok {
				return nil, badJSON("wire target id must be a string")
			}
			id, err := model.ParseElementId(s)
			if err != nil {
				return nil, badJSON("bad wire target id: %q", s)
			}
			ids = append(ids, id)
		}
		out = append(out, PortWire{NodeIDs: ids})
	}
	return out, nil
}

func toFlowNodeConfig(el RawElement, ordering int) (FlowNodeConfig, error) {
	id, ok := getElementID(el, "id")
	if !ok {
		return FlowNodeConfig{}, badJSON("flow node is missing a valid 'id'")
	}
	z, _ := getElementID(el, "z")
	g, _ := getElementID(el, "g")
	typ, _ := getString(el, "type")
	name, _ := getString(el, "name")
	wires, err := toPortWires(el)
	if err != nil {
		return FlowNodeConfig{}, err
	}
	return FlowNodeConfig{
		ID: id, Z: z, G: g, Type: typ, Name: name,
		Wires: wires, Ordering: ordering, Raw: el,
	}, nil
}

func toFlowConfig(el RawElement, ordering int) (FlowConfig, error) {
	id, ok := getElementID(el, "id")
	if !ok {
		return FlowConfig{}, badJSON("flow is missing a valid 'id'")
	}
	typ, _ := getString(el, "type")
	label, ok := getString(el, "name")
	if !ok || label == "" {
		label, _ = getString(el, "label")
	}
	return FlowConfig{ID: id, TypeName: typ, Label: label, Ordering: ordering, Raw: el}, nil
}

func toGlobalNodeConfig(el RawElement) (GlobalNodeConfig, error) {
	id, ok := getElementID(el, "id")
	if !ok {
		return GlobalNodeConfig{}, badJSON("global config node is missing a valid 'id'")
	}
	typ, _ := getString(el, "type")
	name, _ := getString(el, "name")
	return GlobalNodeConfig{ID: id, Type: typ, Name: name, Raw: el}, nil
}
