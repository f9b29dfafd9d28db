package common

import (
	"context"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// ComplNode is the "complete" scope endpoint of component M's router: the router
// injects a clone of a successfully-processed message directly into this node's
// inbox once its scoped node finishes a unit of work, so this type is just a relay.
type ComplNode struct {
	base *node.Base
}

// NewComplete is the registry.FlowNodeFactory for the "complete" type.
func NewComplete(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &ComplNode{base: base}, nil
}

func (n *ComplNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *ComplNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *ComplNode) Teardown(b *node.Base)                        {}

func (n *ComplNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}
