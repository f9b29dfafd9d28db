// Package engine implements the runtime that turns a jsonloader.ResolvedFlows into a
// running dataflow graph (component J): flow/node construction, cross-flow wiring,
// subflow port redirection, start/stop lifecycle, and the injection entry point.
// Grounded on original_source's runtime/engine.rs plus the teacher's
// internal/engine/flow.go start/stop sequencing.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/env"
	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// Engine owns every Flow, the cross-flow node index, the global context scope, and
// the top-level env store every flow chains from.
type Engine struct {
	registry *registry.Registry
	ctxMgr   *ctxstore.Manager
	env      *env.Store
	log      *zap.Logger

	inboxCapacity int

	globalCtx *ctxstore.Context

	mu          sync.RWMutex
	flows       map[model.ElementId]*Flow
	flowOrder   []model.ElementId
	subflowDefs map[model.ElementId]*jsonloader.FlowConfig
	globals     map[model.ElementId]registry.GlobalNode

	nodesByID   map[model.ElementId]*node.Base
	nodesByName map[string][]*node.Base

	// build-time accumulators, consumed and discarded by Build.
	pendingWiring []pendingWire
	pendingOutFwd []pendingOutForwarder
	outForwarders []outForwarder

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

type pendingWire struct {
	base  *node.Base
	wires []jsonloader.PortWire
}

// New constructs an empty Engine bound to the given registry, context manager, root
// env store (typically process-env plus any global "runtime" config values), and
// logger. Call Build with a loaded jsonloader.ResolvedFlows before Start.
func New(reg *registry.Registry, ctxMgr *ctxstore.Manager, rootEnv *env.Store, inboxCapacity int, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		registry:      reg,
		ctxMgr:        ctxMgr,
		env:           rootEnv,
		log:           log,
		inboxCapacity: inboxCapacity,
		globalCtx:     ctxMgr.NewGlobalContext(),
		flows:         make(map[model.ElementId]*Flow),
		subflowDefs:   make(map[model.ElementId]*jsonloader.FlowConfig),
		globals:       make(map[model.ElementId]registry.GlobalNode),
		nodesByID:     make(map[model.ElementId]*node.Base),
		nodesByName:   make(map[string][]*node.Base),
	}
}

// Env satisfies node.EngineHandle and node.FlowHandle's shared surface.
func (e *Engine) Env() *env.Store { return e.env }

// GlobalContext satisfies node.EngineHandle.
func (e *Engine) GlobalContext() *ctxstore.Context { return e.globalCtx }

// FindFlowNode resolves idOrName against the engine-wide node index, first by exact
// id, then by name (spec §4.7's link call resolution order: id, then name within the
// calling flow is handled by Flow.FindNode; this is the engine-wide "by name anywhere"
// fallback).
func (e *Engine) FindFlowNode(idOrName string) (*node.Base, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if id, err := model.ParseElementId(idOrName); err == nil {
		if b, ok := e.nodesByID[id]; ok {
			return b, true
		}
	}
	if candidates, ok := e.nodesByName[idOrName]; ok && len(candidates) > 0 {
		return candidates[0], true
	}
	return nil, false
}

// Build constructs every global node, flow, and flow node described by resolved, wires
// every declared port, and sets up subflow instance forwarding. It must be called
// exactly once, before Start.
func (e *Engine) Build(resolved *jsonloader.ResolvedFlows) error {
	for i := range resolved.Flows {
		fc := &resolved.Flows[i]
		if fc.TypeName == "subflow" {
			e.subflowDefs[fc.ID] = fc
		}
	}

	for _, cfg := range resolved.GlobalNodes {
		factory, ok := e.registry.ResolveGlobal(cfg.Type)
		if !ok {
			e.log.Warn("no factory for global node type, skipping", zap.String("type", cfg.Type), zap.String("id", cfg.ID.String()))
			continue
		}
		g, err := factory(e, cfg.Raw)
		if err != nil {
			return edgelinkerr.Wrap(edgelinkerr.Configuration, err, "failed to construct global node "+cfg.ID.String())
		}
		e.globals[cfg.ID] = g
	}

	var topLevel []*jsonloader.FlowConfig
	for i := range resolved.Flows {
		fc := &resolved.Flows[i]
		if fc.TypeName == "tab" {
			topLevel = append(topLevel, fc)
		}
	}
	if len(topLevel) == 0 {
		return edgelinkerr.New(edgelinkerr.BadFlowsJson, "no flows to run")
	}

	for _, fc := range topLevel {
		flow, err := e.instantiateFlow(fc)
		if err != nil {
			return err
		}
		e.flows[fc.ID] = flow
		e.flowOrder = append(e.flowOrder, fc.ID)
	}

	if err := e.wireAll(); err != nil {
		return err
	}
	if err := e.setupSubflowForwarders(); err != nil {
		return err
	}
	e.pendingWiring = nil
	e.pendingOutFwd = nil
	return nil
}

// Start launches every global node and every flow node's Run loop. Not re-entrant:
// calling Start twice without an intervening Stop fails, matching the teacher's
// Flow.Start guard against a second concurrent deploy.
func (e *Engine) Start(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return edgelinkerr.New(edgelinkerr.InvalidOperation, "engine already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	e.group = g

	for _, gnode := range e.globals {
		gnode := gnode
		if err := gnode.Start(gctx); err != nil {
			cancel()
			return edgelinkerr.Wrap(edgelinkerr.Configuration, err, "global node failed to start")
		}
	}

	for _, flowID := range e.flowOrder {
		flow := e.flows[flowID]
		for id, runner := range flow.runners {
			runner := runner
			id := id
			g.Go(func() error {
				if err := runner.Run(gctx); err != nil {
					e.log.Error("node run loop exited with error", zap.String("node", id.String()), zap.Error(err))
					return err
				}
				return nil
			})
		}
	}

	for _, f := range e.outForwarders {
		f := f
		g.Go(func() error { return f.run(gctx) })
	}

	e.started = true
	return nil
}

// Stop cancels every running node's context and waits for the run loops to exit,
// aggregating the first error per the teacher's Flow.Stop pattern (callbacks are
// cleared before cancellation so a node winding down cannot re-enter routing on a
// half-torn-down flow).
func (e *Engine) Stop() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if !e.started {
		return nil
	}

	for _, flow := range e.flows {
		for _, base := range flow.nodes {
			base.SetCallbacks(nil, nil, nil)
		}
	}

	e.cancel()
	err := e.group.Wait()

	for _, gnode := range e.globals {
		if stopErr := gnode.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	for _, store := range e.ctxMgr.Stores() {
		_ = store.Close(context.Background())
	}

	e.started = false
	if err != nil && edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
		return nil
	}
	return err
}

// Inject builds a fresh Msg (birth-placed at the target node) and enqueues it on the
// target node's inbox, per spec §4.4's external injection entry point.
func (e *Engine) Inject(ctx context.Context, nodeID model.ElementId, payload model.Variant) error {
	base, ok := e.FindFlowNode(nodeID.String())
	if !ok {
		return edgelinkerr.Newf(edgelinkerr.InvalidOperation, "cannot find the node(%s) to inject into", nodeID)
	}
	msg := model.NewMsgWithPayload(nodeID, payload)
	return base.Inject(ctx, msg)
}
