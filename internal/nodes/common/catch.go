package common

import (
	"context"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// CatchNode is the error-handler endpoint of component M's catch/complete/status
// router: the router resolves which catch nodes apply to a failing node and injects
// the error envelope directly into this node's inbox, so the node itself is just a
// relay over whatever wires it has configured.
type CatchNode struct {
	base *node.Base
}

// NewCatch is the registry.FlowNodeFactory for the "catch" type.
func NewCatch(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &CatchNode{base: base}, nil
}

func (n *CatchNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *CatchNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *CatchNode) Teardown(b *node.Base)                        {}

func (n *CatchNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}
