package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/env"
	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// Flow is one "tab" (or, internally, one cloned subflow instance's body): its own env
// scope, its own context scope, and every node.Base it owns. Implements
// node.FlowHandle so nodes can reach their own flow without engine importing node.
type Flow struct {
	id       model.ElementId
	typeName string
	label    string

	engine   *Engine
	flowEnv  *env.Store
	ctxScope *ctxstore.Context

	nodes   map[model.ElementId]*node.Base
	runners map[model.ElementId]registry.Runner
	router  *router
}

func (f *Flow) ID() model.ElementId        { return f.id }
func (f *Flow) Env() *env.Store            { return f.flowEnv }
func (f *Flow) Context() *ctxstore.Context { return f.ctxScope }
func (f *Flow) IsSubflow() bool            { return f.typeName == "subflow" }

// FindNode resolves idOrName against this flow's own nodes only, per spec §4.7's
// link call resolution order (id, then name within the calling flow, before falling
// back to the engine-wide search). Satisfies node.FlowHandle.
func (f *Flow) FindNode(idOrName string) (*node.Base, bool) {
	if id, err := model.ParseElementId(idOrName); err == nil {
		if b, ok := f.nodes[id]; ok {
			return b, true
		}
	}
	for _, b := range f.nodes {
		if b.Name() == idOrName {
			return b, true
		}
	}
	return nil, false
}

// instantiateFlow builds a Flow shell, its env/context scopes, and every node it owns
// (recursively expanding subflow instance nodes), but does not wire any ports yet --
// that happens in a later global pass once every flow's nodes exist.
func (e *Engine) instantiateFlow(fc *jsonloader.FlowConfig) (*Flow, error) {
	flowEnv, warnings := env.NewBuilder().
		WithParent(e.env).
		LoadJSON(rawEnvEntries(fc.Raw)).
		Build()
	for _, w := range warnings {
		e.log.Warn("flow env entry failed to evaluate", zap.String("flow", fc.ID.String()), zap.Error(w))
	}

	flow := &Flow{
		id:       fc.ID,
		typeName: fc.TypeName,
		label:    fc.Label,
		engine:   e,
		flowEnv:  flowEnv,
		ctxScope: e.ctxMgr.NewContext(fc.ID.String()),
		nodes:    make(map[model.ElementId]*node.Base),
		runners:  make(map[model.ElementId]registry.Runner),
		router:   newRouter(e.log),
	}

	for i := range fc.Nodes {
		nc := &fc.Nodes[i]
		if err := e.instantiateNode(flow, nc); err != nil {
			return nil, err
		}
	}

	return flow, nil
}

// instantiateNode builds exactly one node.Base (plus its Runner) and registers it into
// both the owning flow and the engine-wide indices. Subflow-instance nodes additionally
// trigger construction of the subflow definition's internal Flow.
func (e *Engine) instantiateNode(flow *Flow, nc *jsonloader.FlowNodeConfig) error {
	tv := jsonloader.ParseTypeValue(nc.Type)

	synth := env.SynthesizedNames{
		NodeID:   nc.ID.String(),
		NodeName: nc.Name,
		FlowID:   flow.id.String(),
		FlowName: flow.label,
	}
	if !nc.G.IsEmpty() {
		synth.GroupID = nc.G.String()
	}
	nodeEnv, warnings := env.NewBuilder().
		WithParent(flow.flowEnv).
		LoadJSON(synth.RawEntries()).
		LoadJSON(rawEnvEntries(nc.Raw)).
		Build()
	for _, w := range warnings {
		e.log.Warn("node env entry failed to evaluate", zap.String("node", nc.ID.String()), zap.Error(w))
	}

	base := node.NewBase(nc.ID, nc.Type, nc.Name, flow, e, e.inboxCapacity, e.log.With(zap.String("node", nc.ID.String()), zap.String("type", nc.Type)))
	base.SetEnv(nodeEnv)

	var runner registry.Runner
	var err error
	if tv.Kind == "subflow" && tv.HasID {
		runner, err = e.instantiateSubflowInstance(flow, nc, base, tv.ID)
	} else {
		factory, ok := e.registry.ResolveFlow(nc.Type)
		if !ok {
			return edgelinkerr.Newf(edgelinkerr.Configuration, "no factory (including unknown.flow fallback) registered for node type %q", nc.Type)
		}
		runner, err = factory(flow, base, nc.Raw)
	}
	if err != nil {
		return edgelinkerr.Wrap(edgelinkerr.Configuration, err, "failed to construct node "+nc.ID.String())
	}

	base.SetImpl(runner)
	flow.nodes[nc.ID] = base
	flow.runners[nc.ID] = runner
	flow.router.classify(nc, base)

	e.mu.Lock()
	e.nodesByID[nc.ID] = base
	if nc.Name != "" {
		e.nodesByName[nc.Name] = append(e.nodesByName[nc.Name], base)
	}
	e.mu.Unlock()

	e.pendingWiring = append(e.pendingWiring, pendingWire{base: base, wires: nc.Wires})
	return nil
}

// subflowInstance is the Runner for a "subflow:<id>" node: it has no business logic of
// its own, it simply forwards every inbound message onto the subflow definition's
// declared internal "in" targets, cloning per spec §8 invariant 4.
type subflowInstance struct {
	base    *node.Base
	inWires []node.Wire
}

func (s *subflowInstance) Run(ctx context.Context) error {
	for {
		msg, err := s.base.Recv(ctx)
		if err != nil {
			if edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
				return nil
			}
			return err
		}
		if err := node.FanOut(ctx, s.inWires, msg); err != nil {
			if edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
				return nil
			}
			return err
		}
	}
}

// instantiateSubflowInstance builds (or reuses) the internal Flow for the subflow
// definition subflowID refers to, and returns the instance's own Runner. The instance
// node's external output ports are wired normally (via the generic pendingWiring
// pass, same as any other node); its "in" forwarding and "out" port redirection are
// recorded for the engine's later setupSubflowForwarders pass.
func (e *Engine) instantiateSubflowInstance(parent *Flow, nc *jsonloader.FlowNodeConfig, base *node.Base, subflowID model.ElementId) (registry.Runner, error) {
	def, ok := e.subflowDefs[subflowID]
	if !ok {
		return nil, edgelinkerr.Newf(edgelinkerr.BadFlowsJson, "instance %s references unknown subflow definition %s", nc.ID, subflowID)
	}

	internal, err := e.instantiateFlow(def)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.flows[def.ID] = internal
	e.flowOrder = append(e.flowOrder, def.ID)
	e.mu.Unlock()

	inst := &subflowInstance{base: base}
	e.pendingOutFwd = append(e.pendingOutFwd, pendingOutForwarder{instance: inst, def: def, internal: internal})
	return inst, nil
}

type pendingOutForwarder struct {
	instance *subflowInstance
	def      *jsonloader.FlowConfig
	internal *Flow
}

// wireAll installs every node's output port table from the accumulated pendingWiring,
// resolving targets against the now-complete engine-wide node index (this is the
// reason construction is split into a build pass and a wiring pass: wires may point
// forward to a node built later, or across flows).
func (e *Engine) wireAll() error {
	for _, pw := range e.pendingWiring {
		ports := make([][]node.Wire, len(pw.wires))
		for p, w := range pw.wires {
			wires := make([]node.Wire, 0, len(w.NodeIDs))
			for _, targetID := range w.NodeIDs {
				target, ok := e.lookupNode(targetID)
				if !ok {
					return edgelinkerr.Newf(edgelinkerr.BadFlowsJson, "node %s wires to unknown id %s", pw.base.ID(), targetID)
				}
				wires = append(wires, node.Wire{Target: target.InboxSender()})
			}
			ports[p] = wires
		}
		pw.base.SetPorts(ports)
	}

	for _, flow := range e.flows {
		for _, base := range flow.nodes {
			base.SetCallbacks(flow.router.onError, flow.router.onComplete, flow.router.onStatus)
		}
	}
	return nil
}

func (e *Engine) lookupNode(id model.ElementId) (*node.Base, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.nodesByID[id]
	return b, ok
}

// setupSubflowForwarders wires the "in"/"out" port redirection for every subflow
// instance built during this Build call, per spec §4.1's subflow boundary semantics:
// the instance's single inbox fans out to the definition's declared "in" targets, and
// each declared "out" port collects from its named internal node:port and re-emits on
// the instance's own corresponding external port.
func (e *Engine) setupSubflowForwarders() error {
	for _, pf := range e.pendingOutFwd {
		inWires, err := e.resolveSubflowInWires(pf.def)
		if err != nil {
			return err
		}
		pf.instance.inWires = inWires

		if err := e.wireSubflowOutPorts(pf); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) resolveSubflowInWires(def *jsonloader.FlowConfig) ([]node.Wire, error) {
	arr, ok := def.Raw["in"].([]interface{})
	if !ok || len(arr) == 0 {
		return nil, nil
	}
	entry, ok := arr[0].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	wiresRaw, ok := entry["wires"].([]interface{})
	if !ok {
		return nil, nil
	}
	var wires []node.Wire
	for _, wv := range wiresRaw {
		wm, ok := wv.(map[string]interface{})
		if !ok {
			continue
		}
		idStr, _ := wm["id"].(string)
		id, err := model.ParseElementId(idStr)
		if err != nil {
			continue
		}
		target, ok := e.lookupNode(id)
		if !ok {
			return nil, edgelinkerr.Newf(edgelinkerr.BadFlowsJson, "subflow %s 'in' wires to unknown id %s", def.ID, idStr)
		}
		wires = append(wires, node.Wire{Target: target.InboxSender()})
	}
	return wires, nil
}

// wireSubflowOutPorts reads the subflow definition's "out" array and, for each
// declared external port, appends a forwarder wire onto the named internal node's
// existing port so that every message it already emits is also relayed out through
// the instance's corresponding external port.
func (e *Engine) wireSubflowOutPorts(pf pendingOutForwarder) error {
	arr, ok := pf.def.Raw["out"].([]interface{})
	if !ok {
		return nil
	}
	for portIdx, ov := range arr {
		entry, ok := ov.(map[string]interface{})
		if !ok {
			continue
		}
		wiresRaw, ok := entry["wires"].([]interface{})
		if !ok {
			continue
		}
		fwd := make(chan *model.Msg, e.inboxCapacity)
		for _, wv := range wiresRaw {
			wm, ok := wv.(map[string]interface{})
			if !ok {
				continue
			}
			idStr, _ := wm["id"].(string)
			id, err := model.ParseElementId(idStr)
			if err != nil {
				continue
			}
			portF, _ := wm["port"].(float64)
			internalPort := int(portF)

			target, ok := e.lookupNode(id)
			if !ok {
				return edgelinkerr.Newf(edgelinkerr.BadFlowsJson, "subflow %s 'out' wires to unknown internal id %s", pf.def.ID, idStr)
			}
			target.AppendPortWire(internalPort, node.Wire{Target: fwd})
		}

		e.outForwarders = append(e.outForwarders, outForwarder{fwd: fwd, instance: pf.instance.base, port: portIdx})
	}
	return nil
}

// outForwarder pairs a subflow out-port collector channel with the instance node and
// external port index it relays onto. Populated at Build time, run as one goroutine
// per entry for the lifetime of Start/Stop.
type outForwarder struct {
	fwd      chan *model.Msg
	instance *node.Base
	port     int
}

// run drains fwd until ctx is cancelled, fanning each message out onto the subflow
// instance's external port.
func (f outForwarder) run(ctx context.Context) error {
	for {
		select {
		case msg := <-f.fwd:
			if err := f.instance.FanOutOne(ctx, node.Envelope{Port: f.port, Msg: msg}); err != nil {
				if edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
					return nil
				}
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// rawEnvEntries converts a flows.json element's "env" array into env.RawEntry values.
func rawEnvEntries(raw jsonloader.RawElement) []env.RawEntry {
	arr, ok := raw["env"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]env.RawEntry, 0, len(arr))
	for _, ev := range arr {
		m, ok := ev.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		typ, _ := m["type"].(string)
		value, _ := m["value"].(string)
		if name == "" {
			continue
		}
		out = append(out, env.RawEntry{Name: name, Type: typ, Value: value})
	}
	return out
}
