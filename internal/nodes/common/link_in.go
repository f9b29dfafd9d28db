// Package common implements the Node-RED "common" node set that plugs into the
// engine's routing table and/or link subsystem: link in/out/call, catch, complete,
// status, and the two built-in testing/fallback node types.
package common

import (
	"context"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// LinkInNode is a pure pass-through: every message it receives (whether injected
// directly or forwarded by a `link out`/`link call`) is fanned out unchanged on its
// single output port. Grounded on original_source's common_nodes/link_in.rs.
type LinkInNode struct {
	base *node.Base
}

// NewLinkIn is the registry.FlowNodeFactory for the "link in" type.
func NewLinkIn(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &LinkInNode{base: base}, nil
}

func (n *LinkInNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *LinkInNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *LinkInNode) Teardown(b *node.Base)                        {}

func (n *LinkInNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}
