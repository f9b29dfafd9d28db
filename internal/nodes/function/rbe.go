package function

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

type rbeFunc string

const (
	rbeFuncRbe           rbeFunc = "rbe"
	rbeFuncRbei          rbeFunc = "rbei"
	rbeFuncNarrowband    rbeFunc = "narrowband"
	rbeFuncNarrowbandEq  rbeFunc = "narrowbandEq"
	rbeFuncDeadband      rbeFunc = "deadband"
	rbeFuncDeadbandEq    rbeFunc = "deadbandEq"
)

func (f rbeFunc) isRBE() bool        { return f == rbeFuncRbe || f == rbeFuncRbei }
func (f rbeFunc) isNarrowband() bool { return f == rbeFuncNarrowband || f == rbeFuncNarrowbandEq }
func (f rbeFunc) isDeadband() bool   { return f == rbeFuncDeadband || f == rbeFuncDeadbandEq }

type rbeConfig struct {
	fn         rbeFunc
	gap        float64
	isPercent  bool
	startValue float64
	hasStart   bool
	sepTopics  bool
	property   string
	topic      string
	inoutIn    bool // true = "in", false (default) = "out"
}

func parseRbeConfig(raw map[string]interface{}) rbeConfig {
	cfg := rbeConfig{
		fn:        rbeFuncRbe,
		sepTopics: true,
		property:  "payload",
		topic:     "topic",
	}
	if s, ok := raw["func"].(string); ok && s != "" {
		cfg.fn = rbeFunc(s)
	}
	cfg.gap, cfg.isPercent = parseGap(raw["gap"])
	if s, ok := raw["start"].(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			cfg.startValue, cfg.hasStart = f, true
		}
	}
	if b, ok := raw["septopics"].(bool); ok {
		cfg.sepTopics = b
	}
	if s, ok := raw["property"].(string); ok && s != "" {
		cfg.property = s
	}
	if s, ok := raw["topi"].(string); ok && s != "" {
		cfg.topic = s
	}
	if s, ok := raw["inout"].(string); ok {
		cfg.inoutIn = s == "in"
	}
	return cfg
}

// parseGap mirrors rbe.rs's deser_f64_percent_or_0: a bare number, an empty string
// (zero), a "N%" string (N/100), or a plain numeric string.
func parseGap(raw interface{}) (gap float64, isPercent bool) {
	switch v := raw.(type) {
	case float64:
		return v, false
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		if strings.HasSuffix(trimmed, "%") {
			if f, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "%"), 64); err == nil {
				return f / 100.0, true
			}
			return 0, false
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f, false
		}
	}
	return 0, false
}

var leadingFloatPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseFloatLossy extracts a leading numeric prefix from s, mirroring the teacher
// corpus's tolerant numeric-string parsing; returns NaN if no numeric prefix exists.
func parseFloatLossy(s string) float64 {
	m := leadingFloatPattern.FindString(strings.TrimSpace(s))
	if m == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

type rbeState struct {
	currentGap float64
	prev       map[string]model.Variant
}

// RbeNode is the "report by exception" family of filters: rbe/rbei pass a message
// through only when its property differs from the last seen value (optionally
// per-topic); deadband/narrowband (and their "Eq" boundary-inclusive variants) compare
// numeric distance against a fixed or percentage gap. Grounded on
// original_source's common_nodes -- actually function_nodes/rbe.rs.
type RbeNode struct {
	base *node.Base
	cfg  rbeConfig

	mu    sync.Mutex
	state rbeState
}

// NewRbe is the registry.FlowNodeFactory for the "rbe" type.
func NewRbe(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	return &RbeNode{
		base: base,
		cfg:  parseRbeConfig(config),
		state: rbeState{
			prev: make(map[string]model.Variant),
		},
	}, nil
}

func (n *RbeNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *RbeNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *RbeNode) Teardown(b *node.Base)                        {}

func (n *RbeNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	n.mu.Lock()
	send := n.doFilter(msg)
	n.mu.Unlock()
	if !send {
		return nil, nil
	}
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}

func (n *RbeNode) doFilter(msg *model.Msg) bool {
	topic, hasTopic := msg.GetNavStripped(n.cfg.topic)
	value, hasValue := msg.GetNavStripped(n.cfg.property)

	if _, resetRequested := msg.Get("reset"); resetRequested {
		if n.cfg.sepTopics && hasTopic {
			if topicStr, ok := topic.AsString(); ok && topicStr != "" {
				delete(n.state.prev, topicStr)
				return false
			}
		}
		n.state.prev = make(map[string]model.Variant)
		return false
	}

	if !hasValue {
		return false
	}

	topicKey := "_no_topic"
	if n.cfg.sepTopics {
		if topicStr, ok := topic.AsString(); ok {
			topicKey = topicStr
		}
	}

	if n.cfg.fn.isRBE() {
		return n.doRBE(topicKey, value)
	}
	return n.doBand(topicKey, value)
}

func (n *RbeNode) doRBE(topicKey string, value model.Variant) bool {
	prevValue, existed := n.state.prev[topicKey]
	doSend := n.cfg.fn != rbeFuncRbei || existed
	if existed {
		if !prevValue.Equal(value) {
			n.state.prev[topicKey] = value.Clone()
			return doSend
		}
		return false
	}
	n.state.prev[topicKey] = value.Clone()
	return doSend
}

func (n *RbeNode) doBand(topicKey string, value model.Variant) bool {
	numValue := valueAsFloat(value)
	if math.IsNaN(numValue) {
		if n.base.Logger() != nil {
			n.base.Logger().Warn("rbe: value is not a number", zap.String("topic", topicKey))
		}
		return false
	}

	prev, hasPrev := n.state.prev[topicKey]
	var prevValue float64
	if hasPrev {
		prevValue, _ = prev.AsF64()
	} else if n.cfg.fn.isNarrowband() {
		if n.cfg.hasStart {
			prevValue = n.cfg.startValue
		} else {
			prevValue = numValue
		}
		hasPrev = true
	}

	if n.cfg.isPercent {
		n.state.currentGap = math.Abs(prevValue * n.cfg.gap)
	} else {
		n.state.currentGap = n.cfg.gap
	}

	if !hasPrev && n.cfg.fn == rbeFuncNarrowbandEq {
		prevValue = numValue
		hasPrev = true
	}
	if !hasPrev {
		prevValue = numValue - n.state.currentGap - 1.0
	}

	diff := math.Abs(numValue - prevValue)
	doSend := false
	if (diff == n.state.currentGap && (n.cfg.fn == rbeFuncDeadbandEq || n.cfg.fn == rbeFuncNarrowband)) ||
		(diff > n.state.currentGap && n.cfg.fn.isDeadband()) ||
		(diff < n.state.currentGap && n.cfg.fn.isNarrowband()) {
		if !n.cfg.inoutIn {
			prevValue = numValue
		}
		doSend = true
	}

	if n.cfg.inoutIn {
		prevValue = numValue
	}
	n.state.prev[topicKey] = model.NewFloat(prevValue)

	return doSend
}

func valueAsFloat(v model.Variant) float64 {
	switch v.Kind() {
	case model.KindNumber:
		f, _ := v.AsF64()
		return f
	case model.KindString:
		s, _ := v.AsString()
		return parseFloatLossy(s)
	default:
		return math.NaN()
	}
}
