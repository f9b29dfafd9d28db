// Package link implements the cross-flow node lookup component J's Flow/Engine
// expose through node.FlowHandle/node.EngineHandle: resolving a `link call`'s static
// and dynamic targets in the order spec §4.7 mandates, and rejecting targets that
// live inside a subflow. Grounded on original_source's
// runtime/nodes/common_nodes/link_call.rs (get_dynamic_target_node).
package link

import (
	"context"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
)

// ReturnMsgReceiver is implemented by the `link call` node type. A `link out` in
// "return" mode looks up the awaiting `link call` node by the id recorded at the top
// of the msg's link-call stack and delivers the returning message through this
// interface, bypassing the normal wire/port fan-out (there is no wire back to a
// dynamic caller).
type ReturnMsgReceiver interface {
	ReturnMsg(ctx context.Context, msg *model.Msg, stackID model.ElementId) error
}

// ResolveStatic looks up a statically configured `link in` target: by id within the
// calling flow first, then by id anywhere in the engine. Used at build time by both
// `link out` (mode "link") and `link call` (linkType "static").
func ResolveStatic(flow node.FlowHandle, engine node.EngineHandle, targetID model.ElementId) (*node.Base, error) {
	if b, ok := flow.FindNode(targetID.String()); ok {
		return b, nil
	}
	if b, ok := engine.FindFlowNode(targetID.String()); ok {
		return b, nil
	}
	return nil, edgelinkerr.Newf(edgelinkerr.BadFlowsJson, "cannot find the required `link in` node(id=%s)", targetID)
}

// ResolveDynamic resolves a `link call` (linkType "dynamic") target named by
// msg.target: first as a node id, then as a name within the calling flow, then as a
// name anywhere in the engine. A target living inside a subflow is rejected per spec
// §4.7 ("a link call must not resolve to a link in node inside a subflow").
func ResolveDynamic(flow node.FlowHandle, engine node.EngineHandle, targetName string) (*node.Base, error) {
	var target *node.Base
	if id, err := model.ParseElementId(targetName); err == nil {
		if b, ok := engine.FindFlowNode(id.String()); ok {
			target = b
		}
	}
	if target == nil {
		if b, ok := flow.FindNode(targetName); ok {
			target = b
		} else if b, ok := engine.FindFlowNode(targetName); ok {
			target = b
		}
	}
	if target == nil {
		return nil, edgelinkerr.Newf(edgelinkerr.InvalidOperation, "cannot find node by msg.target %q", targetName)
	}
	if target.Flow().IsSubflow() {
		return nil, edgelinkerr.New(edgelinkerr.InvalidOperation, "a `link call` cannot call a `link in` node inside a subflow")
	}
	return target, nil
}
