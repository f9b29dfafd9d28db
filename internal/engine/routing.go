package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
)

// catchScope mirrors the teacher/original's CatchNodeScope: a catch node listens to
// every error in the flow (all), every error raised by a node in its own group
// (group), or a specific list of node ids (nodes).
type catchScope struct {
	kind  string // "all" | "group" | "nodes"
	nodes map[model.ElementId]bool
}

func parseCatchScope(raw jsonloader.RawElement) catchScope {
	v, ok := raw["scope"]
	if !ok || v == nil {
		return catchScope{kind: "all"}
	}
	if s, ok := v.(string); ok && s == "group" {
		return catchScope{kind: "group"}
	}
	arr, ok := v.([]interface{})
	if !ok {
		return catchScope{kind: "all"}
	}
	ids := make(map[model.ElementId]bool, len(arr))
	for _, idv := range arr {
		s, ok := idv.(string)
		if !ok {
			continue
		}
		if id, err := model.ParseElementId(s); err == nil {
			ids[id] = true
		}
	}
	return catchScope{kind: "nodes", nodes: ids}
}

// router implements component M: the catch/complete/status event tables for one
// flow, and the error-handler chain ordering spec §4.6 mandates.
type router struct {
	log *zap.Logger

	catchAll  []*node.Base
	catchGrp  []*node.Base // scope == group; resolved against the raising node's own group at dispatch time
	catchNode []catchNodeEntry

	completeMap map[model.ElementId][]*node.Base
	statusMap   map[model.ElementId][]*node.Base

	groupOf map[model.ElementId]model.ElementId
}

type catchNodeEntry struct {
	base  *node.Base
	scope catchScope
}

func newRouter(log *zap.Logger) *router {
	return &router{
		log:         log,
		completeMap: make(map[model.ElementId][]*node.Base),
		statusMap:   make(map[model.ElementId][]*node.Base),
		groupOf:     make(map[model.ElementId]model.ElementId),
	}
}

// classify registers nc/base into the routing tables it belongs to, per spec §4.6.
func (r *router) classify(nc *jsonloader.FlowNodeConfig, base *node.Base) {
	if !nc.G.IsEmpty() {
		r.groupOf[nc.ID] = nc.G
	}

	switch nc.Type {
	case "catch":
		scope := parseCatchScope(nc.Raw)
		switch scope.kind {
		case "group":
			r.catchGrp = append(r.catchGrp, base)
		case "nodes":
			r.catchNode = append(r.catchNode, catchNodeEntry{base: base, scope: scope})
		default:
			r.catchAll = append(r.catchAll, base)
		}

	case "complete":
		for _, id := range scopeNodeIDs(nc.Raw) {
			r.completeMap[id] = append(r.completeMap[id], base)
		}

	case "status":
		for _, id := range scopeNodeIDs(nc.Raw) {
			r.statusMap[id] = append(r.statusMap[id], base)
		}
	}
}

func scopeNodeIDs(raw jsonloader.RawElement) []model.ElementId {
	arr, ok := raw["scope"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]model.ElementId, 0, len(arr))
	for _, idv := range arr {
		s, ok := idv.(string)
		if !ok {
			continue
		}
		if id, err := model.ParseElementId(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// onComplete fans msg out to every complete node subscribed to src's id, per spec
// §4.6's "on success, notify every complete node listening for that node's id".
func (r *router) onComplete(ctx context.Context, src *node.Base, msg *model.Msg) {
	listeners := r.completeMap[src.ID()]
	for _, c := range listeners {
		if err := c.Inject(ctx, msg.Clone()); err != nil && r.log != nil {
			r.log.Warn("failed to notify complete node", zap.String("complete_node", c.ID().String()), zap.Error(err))
		}
	}
}

// onStatus fans a status update out to every status node subscribed to src's id.
func (r *router) onStatus(ctx context.Context, src *node.Base, status model.Variant) {
	listeners := r.statusMap[src.ID()]
	if len(listeners) == 0 {
		return
	}
	msg := model.NewMsg(src.ID())
	msg.Set("status", status)
	for _, s := range listeners {
		if err := s.Inject(ctx, msg.Clone()); err != nil && r.log != nil {
			r.log.Warn("failed to notify status node", zap.String("status_node", s.ID().String()), zap.Error(err))
		}
	}
}

// onError walks the error-handler chain in spec §4.6 order: (1) group-scope catch
// nodes whose group matches src's group, (2) catch nodes explicitly naming src's id,
// (3) All-scope catch nodes. The first non-empty tier that exists handles the error
// and stops propagation; if nothing handles it, it is logged.
func (r *router) onError(ctx context.Context, src *node.Base, procErr error, msg *model.Msg) {
	errMsg := msg.Clone()
	errMsg.Set("error", errorVariant(procErr, src))

	if grp, ok := r.groupOf[src.ID()]; ok && !grp.IsEmpty() {
		var inGroup []*node.Base
		for _, c := range r.catchGrp {
			if r.groupOf[c.ID()] == grp {
				inGroup = append(inGroup, c)
			}
		}
		if len(inGroup) > 0 {
			r.deliver(ctx, inGroup, errMsg)
			return
		}
	}

	var explicit []*node.Base
	for _, e := range r.catchNode {
		if e.scope.nodes[src.ID()] {
			explicit = append(explicit, e.base)
		}
	}
	if len(explicit) > 0 {
		r.deliver(ctx, explicit, errMsg)
		return
	}

	if len(r.catchAll) > 0 {
		r.deliver(ctx, r.catchAll, errMsg)
		return
	}

	if r.log != nil {
		r.log.Error("unhandled node error", zap.String("node", src.ID().String()), zap.Error(procErr))
	}
}

func (r *router) deliver(ctx context.Context, targets []*node.Base, msg *model.Msg) {
	for i, t := range targets {
		m := msg
		if i > 0 {
			m = msg.Clone()
		}
		if err := t.Inject(ctx, m); err != nil && r.log != nil {
			r.log.Warn("failed to deliver to catch node", zap.String("catch_node", t.ID().String()), zap.Error(err))
		}
	}
}

func errorVariant(err error, src *node.Base) model.Variant {
	obj := model.NewEmptyObject()
	obj.ObjectSet("message", model.NewString(err.Error()))
	source := model.NewEmptyObject()
	source.ObjectSet("id", model.NewString(src.ID().String()))
	source.ObjectSet("type", model.NewString(src.Type()))
	source.ObjectSet("name", model.NewString(src.Name()))
	obj.ObjectSet("source", source)
	return obj
}
