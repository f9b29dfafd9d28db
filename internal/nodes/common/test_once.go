package common

import (
	"context"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// TestOnceNode is a terminal capture node used by the end-to-end scenarios in spec
// §8: it has no wires of its own and simply makes every message it receives
// available to a caller driving the engine directly (an `--once` CLI run, or a test),
// via Recv. Grounded on spec §8 scenario 1's literal "test-once" node.
type TestOnceNode struct {
	base     *node.Base
	received chan *model.Msg
}

// NewTestOnce is the registry.FlowNodeFactory for the "test-once" type.
func NewTestOnce(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &TestOnceNode{base: base, received: make(chan *model.Msg, 16)}, nil
}

func (n *TestOnceNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *TestOnceNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *TestOnceNode) Teardown(b *node.Base)                        {}

func (n *TestOnceNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	n.received <- msg
	return nil, nil
}

// Recv blocks for the next message this node has captured, racing ctx cancellation.
func (n *TestOnceNode) Recv(ctx context.Context) (*model.Msg, error) {
	select {
	case msg := <-n.received:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
