package common

import (
	"context"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// StatusNode is the status-subscription endpoint of component M's router: the router
// wraps a node's published status in a synthesized message ({"status": ...}) and
// injects it directly into this node's inbox, so this type is just a relay.
type StatusNode struct {
	base *node.Base
}

// NewStatus is the registry.FlowNodeFactory for the "status" type.
func NewStatus(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &StatusNode{base: base}, nil
}

func (n *StatusNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *StatusNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *StatusNode) Teardown(b *node.Base)                        {}

func (n *StatusNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}
