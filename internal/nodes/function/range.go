package function

import (
	"context"
	"math"
	"strings"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

type rangeAction string

const (
	rangeActionScale rangeAction = "scale"
	rangeActionDrop  rangeAction = "drop"
	rangeActionClamp rangeAction = "clamp"
	rangeActionRoll  rangeAction = "roll"
)

func parseRangeAction(s string) rangeAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop":
		return rangeActionDrop
	case "clamp":
		return rangeActionClamp
	case "roll":
		return rangeActionRoll
	default:
		return rangeActionScale
	}
}

type rangeConfig struct {
	action              rangeAction
	round               bool
	minIn, maxIn        float64
	minOut, maxOut      float64
	property            string
}

func numberFromRaw(raw interface{}) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case string:
		return parseFloatLossy(v)
	default:
		return math.NaN()
	}
}

func parseRangeConfig(raw map[string]interface{}) rangeConfig {
	cfg := rangeConfig{
		action:   rangeActionScale,
		property: "payload",
	}
	if s, ok := raw["action"].(string); ok {
		cfg.action = parseRangeAction(s)
	}
	if b, ok := raw["round"].(bool); ok {
		cfg.round = b
	}
	cfg.minIn = numberFromRaw(raw["minin"])
	cfg.maxIn = numberFromRaw(raw["maxin"])
	cfg.minOut = numberFromRaw(raw["minout"])
	cfg.maxOut = numberFromRaw(raw["maxout"])
	if s, ok := raw["property"].(string); ok && s != "" {
		cfg.property = s
	}
	return cfg
}

// RangeNode rescales a numeric property from one range to another, with drop/clamp/
// roll pre-processing of out-of-range input values. Grounded on original_source's
// function_nodes/range.rs.
type RangeNode struct {
	base *node.Base
	cfg  rangeConfig
}

// NewRange is the registry.FlowNodeFactory for the "range" type.
func NewRange(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &RangeNode{base: base, cfg: parseRangeConfig(config)}, nil
}

func (n *RangeNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *RangeNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *RangeNode) Teardown(b *node.Base)                        {}

func (n *RangeNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	send := n.doRange(msg)
	if !send {
		return nil, nil
	}
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}

// doRange mutates msg's configured property in place and reports whether the message
// should still be sent.
func (n *RangeNode) doRange(msg *model.Msg) bool {
	current, ok := msg.GetNavStripped(n.cfg.property)
	if !ok {
		return true
	}

	value := valueAsFloat(current)
	if math.IsNaN(value) {
		if n.base.Logger() != nil {
			n.base.Logger().Warn("range: value is not a number")
		}
		return false
	}

	switch n.cfg.action {
	case rangeActionDrop:
		if value < n.cfg.minIn || value > n.cfg.maxIn {
			return false
		}
	case rangeActionClamp:
		value = clampFloat(value, n.cfg.minIn, n.cfg.maxIn)
	case rangeActionRoll:
		divisor := n.cfg.maxIn - n.cfg.minIn
		if divisor == 0 {
			return false
		}
		value = math.Mod(math.Mod(value-n.cfg.minIn, divisor)+divisor, divisor) + n.cfg.minIn
	}

	inSpan := n.cfg.maxIn - n.cfg.minIn
	if inSpan == 0 {
		return false
	}
	scaled := (value-n.cfg.minIn)/inSpan*(n.cfg.maxOut-n.cfg.minOut) + n.cfg.minOut
	if n.cfg.round {
		scaled = math.Round(scaled)
	}

	if err := msg.SetNavStripped(n.cfg.property, model.NewFloat(scaled), true); err != nil {
		if n.base.Logger() != nil {
			n.base.Logger().Warn("range: failed to write scaled value")
		}
		return false
	}
	return true
}

func clampFloat(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
