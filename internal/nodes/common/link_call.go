package common

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/link"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

const defaultLinkCallTimeout = 30 * time.Second

// linkCallConfig is the subset of a "link call" node's raw JSON this implementation
// understands. "static" dispatches to a fixed list of `link in` nodes resolved at
// build time; "dynamic" resolves msg.target at call time.
type linkCallConfig struct {
	linkType string
	links    []model.ElementId
	timeout  time.Duration
}

func parseLinkCallConfig(raw map[string]interface{}) linkCallConfig {
	cfg := linkCallConfig{linkType: "static", timeout: defaultLinkCallTimeout}
	if s, ok := raw["linkType"].(string); ok && s != "" {
		cfg.linkType = s
	}
	if arr, ok := raw["links"].([]interface{}); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				if id, err := model.ParseElementId(s); err == nil {
					cfg.links = append(cfg.links, id)
				}
			}
		}
	}
	if secs, ok := raw["timeout"].(float64); ok && secs > 0 {
		cfg.timeout = time.Duration(secs * float64(time.Second))
	}
	return cfg
}

// pendingCall tracks one in-flight call awaiting its matching `link out` return.
type pendingCall struct {
	cancelTimeout context.CancelFunc
}

// LinkCallNode forwards an incoming message to one or more `link in` targets
// (static mode) or to a single msg.target-addressed node (dynamic mode), pushing a
// stack frame onto the message's link-call stack so a later `link out` in "return"
// mode can find its way back here. Grounded on
// original_source's common_nodes/link_call.rs.
type LinkCallNode struct {
	base   *node.Base
	flow   node.FlowHandle
	engine node.EngineHandle
	cfg    linkCallConfig

	staticTargets []*node.Base

	nextID uint64

	mu      sync.Mutex
	pending map[model.ElementId]pendingCall
}

// NewLinkCall is the registry.FlowNodeFactory for the "link call" type.
func NewLinkCall(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	cfg := parseLinkCallConfig(config)
	n := &LinkCallNode{
		base:    base,
		flow:    flow,
		engine:  base.Engine(),
		cfg:     cfg,
		pending: make(map[model.ElementId]pendingCall),
	}
	if cfg.linkType == "static" {
		for _, id := range cfg.links {
			target, err := link.ResolveStatic(flow, base.Engine(), id)
			if err != nil {
				return nil, err
			}
			n.staticTargets = append(n.staticTargets, target)
		}
	}
	return n, nil
}

func (n *LinkCallNode) Run(ctx context.Context) error {
	for {
		msg, err := n.base.Recv(ctx)
		if err != nil {
			if edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
				return nil
			}
			return err
		}
		if err := n.forwardCall(ctx, msg); err != nil {
			n.base.ReportError(ctx, err, msg)
		}
	}
}

func (n *LinkCallNode) forwardCall(ctx context.Context, msg *model.Msg) error {
	entryID := model.ElementId(atomic.AddUint64(&n.nextID, 1))
	msg.PushLinkSource(model.LinkSourceEntry{StackId: entryID, LinkCallNodeId: n.base.ID()})

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.timeout)
	n.mu.Lock()
	n.pending[entryID] = pendingCall{cancelTimeout: cancel}
	n.mu.Unlock()
	go n.awaitTimeout(callCtx, entryID)

	targets, err := n.resolveTargets(msg)
	if err != nil {
		n.dropPending(entryID)
		return err
	}

	for i, target := range targets {
		out := msg
		if i > 0 {
			out = msg.Clone()
		}
		if err := target.Inject(ctx, out); err != nil {
			n.dropPending(entryID)
			return err
		}
	}
	return nil
}

func (n *LinkCallNode) resolveTargets(msg *model.Msg) ([]*node.Base, error) {
	if n.cfg.linkType == "static" {
		return n.staticTargets, nil
	}

	v, ok := msg.Get("target")
	if !ok {
		return nil, edgelinkerr.New(edgelinkerr.InvalidOperation, "there is no `target` field in the msg")
	}
	targetName, ok := v.AsString()
	if !ok {
		return nil, edgelinkerr.New(edgelinkerr.InvalidOperation, "unsupported dynamic target in msg.target")
	}
	target, err := link.ResolveDynamic(n.flow, n.engine, targetName)
	if err != nil {
		return nil, err
	}
	return []*node.Base{target}, nil
}

// awaitTimeout drops the pending call if ctx expires before ReturnMsg removes it.
func (n *LinkCallNode) awaitTimeout(ctx context.Context, entryID model.ElementId) {
	<-ctx.Done()
	n.mu.Lock()
	_, still := n.pending[entryID]
	delete(n.pending, entryID)
	n.mu.Unlock()
	if still && n.base.Logger() != nil {
		n.base.Logger().Warn("link call timed out", zap.String("stack_id", entryID.String()))
	}
}

func (n *LinkCallNode) dropPending(entryID model.ElementId) {
	n.mu.Lock()
	call, ok := n.pending[entryID]
	delete(n.pending, entryID)
	n.mu.Unlock()
	if ok {
		call.cancelTimeout()
	}
}

// ReturnMsg implements link.ReturnMsgReceiver: a `link out` in "return" mode looked
// up this node by id and delivers the returning message here. A stale or unknown
// stackID (already timed out, or from a different instance) is discarded rather
// than fanned out, per spec §4.7.
func (n *LinkCallNode) ReturnMsg(ctx context.Context, msg *model.Msg, stackID model.ElementId) error {
	n.mu.Lock()
	call, ok := n.pending[stackID]
	delete(n.pending, stackID)
	n.mu.Unlock()
	if !ok {
		return edgelinkerr.Newf(edgelinkerr.InvalidOperation, "cannot find the link call event id %s", stackID)
	}
	call.cancelTimeout()
	return n.base.FanOutOne(ctx, node.Envelope{Port: 0, Msg: msg})
}
