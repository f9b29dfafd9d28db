package common

import (
	"context"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// UnknownFlowNode is the spec §6/§7 fallback for a flows.json type name with no
// registered flow-node factory: a warning is logged once at construction and the node
// is otherwise inert, draining and dropping whatever it receives rather than failing
// the engine build.
type UnknownFlowNode struct {
	base *node.Base
}

// NewUnknownFlow is the FlowNodeFactory installed via registry.SetUnknownFallbacks.
func NewUnknownFlow(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	if base.Logger() != nil {
		base.Logger().Warn("unrecognized node type, installing inert fallback",
			zap.String("node_id", base.ID().String()), zap.String("node_type", base.Type()))
	}
	return &UnknownFlowNode{base: base}, nil
}

func (n *UnknownFlowNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *UnknownFlowNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *UnknownFlowNode) Teardown(b *node.Base)                        {}

func (n *UnknownFlowNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	return nil, nil
}

// UnknownGlobalNode is the spec §6/§7 fallback for an unregistered global node type.
type UnknownGlobalNode struct {
	id model.ElementId
}

// NewUnknownGlobal is the GlobalNodeFactory installed via registry.SetUnknownFallbacks.
func NewUnknownGlobal(engine node.EngineHandle, config map[string]interface{}) (registry.GlobalNode, error) {
	return &UnknownGlobalNode{}, nil
}

func (g *UnknownGlobalNode) ID() model.ElementId             { return g.id }
func (g *UnknownGlobalNode) Start(ctx context.Context) error { return nil }
func (g *UnknownGlobalNode) Stop() error                     { return nil }
