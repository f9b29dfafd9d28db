package common

import (
	"context"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/link"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

type linkOutConfig struct {
	mode  string // "link" | "return"
	links []model.ElementId
}

func parseLinkOutConfig(raw map[string]interface{}) linkOutConfig {
	cfg := linkOutConfig{mode: "link"}
	if s, ok := raw["mode"].(string); ok && s != "" {
		cfg.mode = s
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
	return cfg
}

// LinkOutNode either forwards its inbound message to a fixed set of `link in` nodes
// (mode "link"), or pops the top frame of the message's link-call stack and delivers
// it back to the awaiting `link call` node (mode "return"). Grounded on
// original_source's common_nodes/link_out.rs.
type LinkOutNode struct {
	base    *node.Base
	engine  node.EngineHandle
	cfg     linkOutConfig
	targets []*node.Base
}

// NewLinkOut is the registry.FlowNodeFactory for the "link out" type.
func NewLinkOut(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	cfg := parseLinkOutConfig(config)
	n := &LinkOutNode{base: base, engine: base.Engine(), cfg: cfg}
	if cfg.mode == "link" {
		for _, id := range cfg.links {
			target, err := link.ResolveStatic(flow, base.Engine(), id)
			if err != nil {
				return nil, err
			}
			n.targets = append(n.targets, target)
		}
	}
	return n, nil
}

func (n *LinkOutNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *LinkOutNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *LinkOutNode) Teardown(b *node.Base)                        {}

func (n *LinkOutNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	if n.cfg.mode == "return" {
		return nil, n.deliverReturn(ctx, msg)
	}

	for i, target := range n.targets {
		out := msg
		if i > 0 {
			out = msg.Clone()
		}
		if err := target.Inject(ctx, out); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (n *LinkOutNode) deliverReturn(ctx context.Context, msg *model.Msg) error {
	entry, ok := msg.PopLinkSource()
	if !ok {
		return edgelinkerr.New(edgelinkerr.InvalidOperation, "the link call stack is empty for this message")
	}
	target, ok := n.engine.FindFlowNode(entry.LinkCallNodeId.String())
	if !ok {
		return edgelinkerr.Newf(edgelinkerr.InvalidOperation, "cannot find the `link call` node by id %s", entry.LinkCallNodeId)
	}
	receiver, ok := target.Impl().(link.ReturnMsgReceiver)
	if !ok {
		return edgelinkerr.Newf(edgelinkerr.InvalidOperation, "the node(id=%s) is not a `link call` node", entry.LinkCallNodeId)
	}
	return receiver.ReturnMsg(ctx, msg, entry.StackId)
}
