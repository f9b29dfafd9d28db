// Package registry implements the type-name -> node-factory table (component G),
// generalized from the teacher's internal/node/registry.go single-factory-shape map
// to the spec §6 two-shape registry contract.
package registry

import (
	"context"
	"sync"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
)

// GlobalNode is a config-only node with no flow membership (e.g. a broker connection
// shared by several flow nodes).
type GlobalNode interface {
	ID() model.ElementId
	Start(ctx context.Context) error
	Stop() error
}

// GlobalNodeFactory builds a GlobalNode from its parsed configuration. The engine
// handle lets the node reach other global nodes or the engine-wide context/env.
type GlobalNodeFactory func(engine node.EngineHandle, config map[string]interface{}) (GlobalNode, error)

// FlowNodeFactory builds a flow-scoped node. base is pre-constructed by the flow
// builder (id, type, name, inbox, flow/engine handles already wired); the factory's
// job is to attach per-type state and return something that can Run.
type FlowNodeFactory func(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (Runner, error)

// Runner is what the flow builder needs from a constructed flow node: something it can
// start a task for. Concrete node types satisfy this by calling node.RunStandardLoop or
// driving node.Base directly (inject, link nodes).
type Runner interface {
	Run(ctx context.Context) error
}

// Registry maps node type names to exactly one of the two factory shapes.
type Registry struct {
	mu           sync.RWMutex
	globalKinds  map[string]GlobalNodeFactory
	flowKinds    map[string]FlowNodeFactory
	unknownFlow  FlowNodeFactory
	unknownGlob  GlobalNodeFactory
}

func New() *Registry {
	return &Registry{
		globalKinds: make(map[string]GlobalNodeFactory),
		flowKinds:   make(map[string]FlowNodeFactory),
	}
}

// RegisterGlobal registers a global-node factory under typeName.
func (r *Registry) RegisterGlobal(typeName string, factory GlobalNodeFactory) error {
	if typeName == "" || factory == nil {
		return edgelinkerr.New(edgelinkerr.BadArguments, "type name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.globalKinds[typeName]; exists {
		return edgelinkerr.Newf(edgelinkerr.BadArguments, "global node type %q already registered", typeName)
	}
	r.globalKinds[typeName] = factory
	return nil
}

// RegisterFlow registers a flow-node factory under typeName.
func (r *Registry) RegisterFlow(typeName string, factory FlowNodeFactory) error {
	if typeName == "" || factory == nil {
		return edgelinkerr.New(edgelinkerr.BadArguments, "type name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flowKinds[typeName]; exists {
		return edgelinkerr.Newf(edgelinkerr.BadArguments, "flow node type %q already registered", typeName)
	}
	r.flowKinds[typeName] = factory
	return nil
}

// SetUnknownFallbacks installs the sentinel factories used when a flows.json type name
// has no registered factory of the appropriate shape (spec §6, §4.1's "failure modes").
func (r *Registry) SetUnknownFallbacks(flowFallback FlowNodeFactory, globalFallback GlobalNodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknownFlow = flowFallback
	r.unknownGlob = globalFallback
}

// ResolveFlow returns the flow-node factory for typeName, or the unknown.flow fallback.
func (r *Registry) ResolveFlow(typeName string) (FlowNodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.flowKinds[typeName]; ok {
		return f, true
	}
	return r.unknownFlow, r.unknownFlow != nil
}

// ResolveGlobal returns the global-node factory for typeName, or the unknown.global
// fallback.
func (r *Registry) ResolveGlobal(typeName string) (GlobalNodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.globalKinds[typeName]; ok {
		return f, true
	}
	return r.unknownGlob, r.unknownGlob != nil
}

// IsKnownFlowType reports whether typeName has an explicitly registered flow factory
// (i.e. would NOT fall through to unknown.flow).
func (r *Registry) IsKnownFlowType(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flowKinds[typeName]
	return ok
}

// IsKnownGlobalType reports the same for global node types.
func (r *Registry) IsKnownGlobalType(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.globalKinds[typeName]
	return ok
}

// FlowTypeNames lists every explicitly registered flow-node type name.
func (r *Registry) FlowTypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.flowKinds))
	for name := range r.flowKinds {
		out = append(out, name)
	}
	return out
}
