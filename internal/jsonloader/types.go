// Package jsonloader implements the flows-file loader and subflow-cloning pass
// (component H): classification, subflow instancing, env merge, and the three
// topologically-sorted dependency graphs described in spec §4.1. Grounded on
// original_source's runtime/model/json/deser.rs (load_flows_json_value,
// preprocess_subflows, preprocess_merge_subflow_env, get_*_dependencies).
package jsonloader

import "github.com/edgeflow/edgelink/internal/model"

// RawElement is one JSON object from the flows array, kept as its generic decoded
// form so the subflow-cloning pass can rewrite ids in place before typed conversion.
type RawElement = map[string]interface{}

// GroupConfig is a static grouping, scoped to a flow, optionally nested in a parent
// group via G.
type GroupConfig struct {
	ID   model.ElementId
	Z    model.ElementId
	G    model.ElementId // parent group, EmptyElementId if top-level
	Name string
	Raw  RawElement
}

// PortWire is one output port's list of wired target node ids.
type PortWire struct {
	NodeIDs []model.ElementId
}

// FlowNodeConfig is a node belonging to a flow (has a "z").
type FlowNodeConfig struct {
	ID       model.ElementId
	Z        model.ElementId
	G        model.ElementId // owning group, EmptyElementId if none
	Type     string
	Name     string
	Wires    []PortWire
	Ordering int
	Raw      RawElement
}

// GlobalNodeConfig is a config-only node with no flow membership (no "z").
type GlobalNodeConfig struct {
	ID   model.ElementId
	Type string
	Name string
	Raw  RawElement
}

// FlowConfig is a flow ("tab") or a subflow definition ("subflow").
type FlowConfig struct {
	ID       model.ElementId
	TypeName string // "tab" | "subflow"
	Label    string
	Ordering int

	// SubflowTemplateNodeID is, for a subflow definition, the id of some instance
	// node elsewhere in the flows array whose type is "subflow:<this id>" -- used
	// to recover the subflow's declared in/out port shape. Empty if TypeName is
	// "tab", or if no instance of this subflow exists anywhere in the file.
	SubflowTemplateNodeID model.ElementId

	Groups []GroupConfig
	Nodes  []FlowNodeConfig
	Raw    RawElement
}

// ResolvedFlows is the fully loaded, dependency-ordered result of LoadFlowsJSON.
type ResolvedFlows struct {
	Flows       []FlowConfig
	GlobalNodes []GlobalNodeConfig
}
