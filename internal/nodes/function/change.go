// Package function implements Node-RED's core message-transform node set: change
// (set/change/delete/move msg and context properties), rbe (report-by-exception
// filtering), and range (numeric rescaling). Grounded on original_source's
// runtime/nodes/function_nodes/{change,rbe,range}.rs.
package function

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/eval"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

type ruleKind string

const (
	ruleSet    ruleKind = "set"
	ruleChange ruleKind = "change"
	ruleDelete ruleKind = "delete"
	ruleMove   ruleKind = "move"
)

// reducedKind classifies an evaluated "from" value for the "change" rule's dispatch,
// mirroring change.rs's ReducedType.
type reducedKind int

const (
	reducedStr reducedKind = iota
	reducedNum
	reducedBool
	reducedRegex
)

type changeRule struct {
	kind ruleKind

	p  string
	pt eval.PropertyType

	to    string
	tot   eval.PropertyType
	hasTo bool

	from    string
	fromt   eval.PropertyType
	hasFrom bool

	fromRE *regexp.Regexp
}

// legacyEscapePattern mirrors change.rs's old_from_re_pattern: characters escaped
// before compiling a plain "from" string as a regex (non-"re" fromt rules match the
// literal text, not a pattern).
var legacyEscapePattern = regexp.MustCompile(`[-\[\]{}()*+?.,\\^$|#\s]`)

func escapeLegacyFrom(s string) string {
	return legacyEscapePattern.ReplaceAllString(s, `\$0`)
}

// parseChangeRules implements change.rs's handle_legacy_json: it accepts either a
// modern "rules" array or a single flat legacy {action, property, to, from, reg}
// node config, normalizing both into a list of fully type-tagged changeRule values.
func parseChangeRules(raw map[string]interface{}) ([]changeRule, error) {
	var ruleMaps []map[string]interface{}
	if arr, ok := raw["rules"].([]interface{}); ok && len(arr) > 0 {
		for _, item := range arr {
			if m, ok := item.(map[string]interface{}); ok {
				ruleMaps = append(ruleMaps, m)
			}
		}
	} else {
		action, _ := raw["action"].(string)
		t := action
		if action == "replace" {
			t = "set"
		}
		property, _ := raw["property"].(string)
		m := map[string]interface{}{"t": t, "p": property}
		switch t {
		case "set", "move":
			m["to"] = stringOrEmpty(raw["to"])
		case "change":
			m["from"] = stringOrEmpty(raw["from"])
			m["to"] = stringOrEmpty(raw["to"])
			if reg, ok := raw["reg"]; ok {
				m["re"] = reg
			} else {
				m["re"] = true
			}
		}
		ruleMaps = append(ruleMaps, m)
	}

	rules := make([]changeRule, 0, len(ruleMaps))
	for _, m := range ruleMaps {
		r, err := normalizeChangeRule(m)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}

func normalizeChangeRule(m map[string]interface{}) (changeRule, error) {
	r := changeRule{
		kind: ruleKind(stringOrEmpty(m["t"])),
		p:    stringOrEmpty(m["p"]),
		pt:   eval.PropertyType(stringOrEmpty(m["pt"])),
	}
	if r.pt == "" {
		r.pt = eval.TypeMsg
	}

	if _, hasRe := m["re"]; r.kind == ruleChange && hasRe {
		r.fromt = eval.TypeRe
	} else if fromt, ok := m["fromt"].(string); ok && fromt != "" {
		r.fromt = eval.PropertyType(fromt)
	} else {
		r.fromt = eval.TypeStr
	}

	if to, ok := m["to"]; ok {
		r.hasTo = true
		r.to = stringOrEmpty(to)
	}
	tot, hasTot := m["tot"].(string)
	if r.kind == ruleSet && !hasTot && r.hasTo && strings.HasPrefix(r.to, "msg.") {
		r.to = strings.TrimPrefix(r.to, "msg.")
		tot = string(eval.TypeMsg)
		hasTot = true
	}
	if hasTot && tot != "" {
		r.tot = eval.PropertyType(tot)
	} else {
		r.tot = eval.TypeStr
	}

	if from, ok := m["from"]; ok {
		r.hasFrom = true
		r.from = stringOrEmpty(from)
	}

	if r.kind == ruleChange && r.fromt != eval.TypeMsg && r.fromt != eval.TypeFlow && r.fromt != eval.TypeGlobal {
		fromStr := r.from
		if r.fromt != eval.TypeRe {
			fromStr = escapeLegacyFrom(fromStr)
		}
		re, err := regexp.Compile(fromStr)
		if err != nil {
			return changeRule{}, edgelinkerr.Wrap(edgelinkerr.BadArguments, err, "invalid `from` regular expression in change rule")
		}
		r.fromRE = re
	}

	return r, nil
}

// ChangeNode applies a sequence of set/change/delete/move rules to every message it
// receives. The message is always relayed, whether or not any rule applied
// successfully -- a rule that cannot be evaluated against the current message is
// logged and skipped, not treated as a node failure.
type ChangeNode struct {
	base  *node.Base
	rules []changeRule
}

// NewChange is the registry.FlowNodeFactory for the "change" type.
func NewChange(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
	rules, err := parseChangeRules(config)
	if err != nil {
		return nil, err
	}
	return &ChangeNode{base: base, rules: rules}, nil
}

func (n *ChangeNode) Run(ctx context.Context) error {
	return node.RunStandardLoop(ctx, n.base, n)
}

func (n *ChangeNode) Setup(ctx context.Context, b *node.Base) error { return nil }
func (n *ChangeNode) Teardown(b *node.Base)                        {}

func (n *ChangeNode) Process(ctx context.Context, b *node.Base, msg *model.Msg) ([]node.Envelope, error) {
	for i := range n.rules {
		if err := n.applyRule(ctx, &n.rules[i], msg); err != nil {
			n.base.Logger().Warn("change rule failed to apply", zap.Error(err))
		}
	}
	return []node.Envelope{{Port: 0, Msg: msg}}, nil
}

func (n *ChangeNode) applyRule(ctx context.Context, r *changeRule, msg *model.Msg) error {
	var toValue *model.Variant
	if r.hasTo {
		if v, err := eval.EvaluateNodeProperty(ctx, n.base, r.to, r.tot, msg); err == nil {
			toValue = &v
		}
	}

	switch r.kind {
	case ruleSet:
		return n.setProperty(ctx, msg, r.p, r.pt, toValue)
	case ruleChange:
		return n.applyChange(ctx, r, msg, toValue)
	case ruleDelete:
		return n.deleteProperty(ctx, msg, r.p, r.pt)
	case ruleMove:
		return n.applyMove(ctx, r, msg)
	default:
		return edgelinkerr.Newf(edgelinkerr.UnsupportedFlowsJsonFormat, "unknown change rule kind %q", r.kind)
	}
}

func (n *ChangeNode) applyChange(ctx context.Context, r *changeRule, msg *model.Msg, toValue *model.Variant) error {
	if toValue == nil {
		return nil
	}
	if !r.hasFrom {
		return nil
	}
	fromValue, err := eval.EvaluateNodeProperty(ctx, n.base, r.from, r.fromt, msg)
	if err != nil {
		return nil
	}
	current, err := eval.EvaluateNodeProperty(ctx, n.base, r.p, r.pt, msg)
	if err != nil {
		return nil
	}
	reduced, ok := reduceFromValue(fromValue, r.fromt)
	if !ok {
		return nil
	}

	switch r.pt {
	case eval.TypeMsg:
		newValue, matched := n.computeChangedValue(r, current, fromValue, *toValue, reduced)
		if !matched {
			return nil
		}
		return msg.SetNavStripped(r.p, newValue, false)
	case eval.TypeFlow, eval.TypeGlobal:
		newValue, matched := n.computeChangedValue(r, current, fromValue, *toValue, reduced)
		if !matched {
			return nil
		}
		return eval.SetContextProperty(ctx, n.base, r.pt, r.p, &newValue)
	default:
		return edgelinkerr.New(edgelinkerr.InvalidOperation, "`change` node only supports modifying message and global/flow context properties")
	}
}

// computeChangedValue implements change.rs's apply_rule_change match on
// (current, reduced_from_type), shared between the msg and flow/global targets.
func (n *ChangeNode) computeChangedValue(r *changeRule, current, fromValue, toValue model.Variant, reduced reducedKind) (model.Variant, bool) {
	switch current.Kind() {
	case model.KindString:
		currentStr, _ := current.AsString()
		switch {
		case reduced != reducedRegex && current.Equal(fromValue):
			return toValue, true
		case reduced == reducedRegex:
			replaced := r.fromRE.ReplaceAllString(currentStr, toValue.ToString())
			if r.tot == eval.TypeBool && (replaced == "true" || replaced == "false") {
				return toValue, true
			}
			return model.NewString(replaced), true
		default:
			fromStr := fromValue.ToString()
			toStr := toValue.ToString()
			return model.NewString(strings.ReplaceAll(currentStr, fromStr, toStr)), true
		}
	case model.KindNumber:
		if reduced == reducedNum && current.Equal(fromValue) {
			return toValue, true
		}
	case model.KindBool:
		if reduced == reducedBool && current.Equal(fromValue) {
			return toValue, true
		}
	}
	return model.Variant{}, false
}

func reduceFromValue(v model.Variant, fromt eval.PropertyType) (reducedKind, bool) {
	switch v.Kind() {
	case model.KindString:
		return reducedStr, true
	case model.KindBool:
		return reducedBool, true
	case model.KindNumber:
		return reducedNum, true
	}
	if fromt == eval.TypeRe {
		return reducedRegex, true
	}
	return 0, false
}

func (n *ChangeNode) applyMove(ctx context.Context, r *changeRule, msg *model.Msg) error {
	if r.pt != eval.TypeFlow && r.pt != eval.TypeGlobal && r.pt != eval.TypeMsg {
		return edgelinkerr.New(edgelinkerr.BadArguments, "invalid `pt` in a move rule")
	}
	if !r.hasTo || (r.tot != eval.TypeFlow && r.tot != eval.TypeGlobal && r.tot != eval.TypeMsg) {
		return edgelinkerr.New(edgelinkerr.BadArguments, "invalid `to`/`tot` in a move rule")
	}
	current, err := eval.EvaluateNodeProperty(ctx, n.base, r.p, r.pt, msg)
	if err != nil {
		return nil
	}
	if err := n.setProperty(ctx, msg, r.p, r.pt, nil); err != nil {
		return err
	}
	return n.setProperty(ctx, msg, r.to, r.tot, &current)
}

// setProperty mirrors change.rs's set_property: a nil value against a msg property
// deletes it if present (JS `undefined` semantics); a nil value against a flow/global
// property is an error, since only delete_property is allowed to remove those.
func (n *ChangeNode) setProperty(ctx context.Context, msg *model.Msg, prop string, pt eval.PropertyType, value *model.Variant) error {
	switch pt {
	case eval.TypeMsg:
		if value != nil {
			return msg.SetNavStripped(prop, *value, true)
		}
		msg.RemoveNav(prop)
		return nil
	case eval.TypeFlow, eval.TypeGlobal:
		if value == nil {
			return edgelinkerr.New(edgelinkerr.BadArguments, "the target value is not provided")
		}
		return eval.SetContextProperty(ctx, n.base, pt, prop, value)
	default:
		return edgelinkerr.New(edgelinkerr.NotSupported, "we only support setting message properties and flow/global context variables")
	}
}

func (n *ChangeNode) deleteProperty(ctx context.Context, msg *model.Msg, prop string, pt eval.PropertyType) error {
	switch pt {
	case eval.TypeMsg:
		if !msg.RemoveNav(prop) {
			return edgelinkerr.Newf(edgelinkerr.NotSupported, "cannot remove the property %q in the msg", prop)
		}
		return nil
	case eval.TypeFlow, eval.TypeGlobal:
		return eval.SetContextProperty(ctx, n.base, pt, prop, nil)
	default:
		return edgelinkerr.New(edgelinkerr.NotSupported, "the `change` node only allows deleting message and global/flow context properties")
	}
}
