// Package inject implements the "inject" source node: a flow-scoped node with no
// inbound wiring that manufactures its own messages on a trigger (startup-once,
// a fixed repeat interval, or a cron schedule) and fans them out its single output
// port. Grounded on original_source's common_nodes/inject.rs and the teacher's
// internal/engine/scheduler.go for the cron-trigger wiring.
package inject

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/eval"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// prop is one entry of the node's "props" array: a property path plus the typed
// value to evaluate and write into it, per component L's eval.PropertyType tags.
type prop struct {
	path  string
	value string
	typ   eval.PropertyType
}

type injectConfig struct {
	props     []prop
	repeat    time.Duration // 0 means "no fixed-interval repeat"
	crontab   string
	once      bool
	onceDelay time.Duration
}

// parseInjectConfig adapts the legacy flat payload/payloadType/topic fields into a
// props array when the flows.json predates the "props" array format, mirroring
// original_source's handle_legacy_json.
func parseInjectConfig(raw map[string]interface{}) injectConfig {
	cfg := injectConfig{}

	propsRaw, hasProps := raw["props"].([]interface{})
	if !hasProps || len(propsRaw) == 0 {
		propsRaw = []interface{}{
			map[string]interface{}{"p": "payload", "v": raw["payload"], "vt": raw["payloadType"]},
			map[string]interface{}{"p": "topic", "v": raw["topic"], "vt": "str"},
		}
	}

	for _, entry := range propsRaw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		p := prop{
			path: stringOrEmpty(m["p"]),
			value: stringOrEmpty(m["v"]),
			typ:  eval.PropertyType(stringOrEmpty(m["vt"])),
		}
		if p.typ == "" {
			p.typ = eval.TypeStr
		}
		if p.path == "" {
			continue
		}
		// Legacy quirk: a bare "payload"/"topic" entry with no "v" inherits the
		// top-level flat fields, same as original_source's handle_legacy_json.
		if p.value == "" {
			switch p.path {
			case "payload":
				p.value = stringOrEmpty(raw["payload"])
				if pt := stringOrEmpty(raw["payloadType"]); pt != "" {
					p.typ = eval.PropertyType(pt)
				}
			case "topic":
				if p.typ == eval.TypeStr {
					p.value = stringOrEmpty(raw["topic"])
				}
			}
		}
		cfg.props = append(cfg.props, p)
	}

	if repeat, ok := raw["repeat"]; ok {
		if secs := floatFromRaw(repeat); secs > 0 {
			cfg.repeat = time.Duration(secs * float64(time.Second))
		}
	}

	crontab := strings.TrimSpace(stringOrEmpty(raw["crontab"]))
	if crontab != "" {
		cfg.crontab = normalizeCrontab(crontab)
	}

	if once, ok := raw["once"].(bool); ok {
		cfg.once = once
	}
	if delay := floatFromRaw(raw["onceDelay"]); delay > 0 {
		cfg.onceDelay = time.Duration(delay * float64(time.Second))
	}

	return cfg
}

// normalizeCrontab pads a standard 5-field cron expression with a leading seconds
// field of "0", since runCron builds its robfig/cron/v3 scheduler with
// cron.WithSeconds() (6 fields, seconds first, like the original's
// tokio_cron_scheduler). A 6-field expression passes through as-is.
func normalizeCrontab(expr string) string {
	if len(strings.Fields(expr)) == 6 {
		return expr
	}
	return "0 " + expr
}

func stringOrEmpty(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func floatFromRaw(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// InjectNode is a source-only node: it never reads its own inbox, instead driving
// node.Base's fan-out primitives directly from whichever trigger(s) its config
// selects, per spec's "Nodes MAY depart from this (e.g. inject is source-only)".
type InjectNode struct {
	base *node.Base
	cfg  injectConfig
}

// NewInject is the registry.FlowNodeFactory for the "inject" type.
func NewInject(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &InjectNode{base: base, cfg: parseInjectConfig(config)}, nil
}

func (n *InjectNode) Run(ctx context.Context) error {
	executed := false

	if n.cfg.once {
		executed = true
		if err := n.runOnce(ctx); err != nil && n.base.Logger() != nil {
			n.base.Logger().Warn("inject: once trigger failed", zap.Error(err))
		}
	}

	switch {
	case n.cfg.repeat > 0:
		return n.runRepeat(ctx)
	case n.cfg.crontab != "":
		return n.runCron(ctx)
	}

	if !executed {
		if n.base.Logger() != nil {
			n.base.Logger().Warn("inject node has no trigger configured", zap.String("node_id", n.base.ID().String()))
		}
		<-ctx.Done()
	}
	return nil
}

func (n *InjectNode) runOnce(ctx context.Context) error {
	if n.cfg.onceDelay > 0 {
		t := time.NewTimer(n.cfg.onceDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil
		}
	}
	return n.injectMsg(ctx)
}

func (n *InjectNode) runRepeat(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.repeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := n.injectMsg(ctx); err != nil {
				return err
			}
		}
	}
}

func (n *InjectNode) runCron(ctx context.Context) error {
	sched := cron.New(cron.WithSeconds())
	_, err := sched.AddFunc(n.cfg.crontab, func() {
		if err := n.injectMsg(ctx); err != nil && n.base.Logger() != nil {
			n.base.Logger().Warn("inject: cron fire failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	sched.Start()
	<-ctx.Done()
	stopCtx := sched.Stop()
	<-stopCtx.Done()
	return nil
}

func (n *InjectNode) injectMsg(ctx context.Context) error {
	msg := model.NewMsg(n.base.Flow().ID())
	for _, p := range n.cfg.props {
		v, err := eval.EvaluateNodeProperty(ctx, n.base, p.value, p.typ, msg)
		if err != nil {
			n.base.ReportError(ctx, err, msg)
			return nil
		}
		msg.Set(p.path, v)
	}

	if err := n.base.FanOutOne(ctx, node.Envelope{Port: 0, Msg: msg}); err != nil {
		return err
	}
	n.base.NotifyCompletion(ctx, msg)
	return nil
}
