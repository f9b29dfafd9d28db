// Package eval implements the typed property evaluator (component L): turning one of
// a node's configured "p"/"to"/"from"-style string properties, tagged with a property
// type, into a concrete model.Variant. Grounded on original_source's runtime/eval.rs.
package eval

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
)

// PropertyType is the "pt"/"tot"/"fromt" tag a rule attaches to a property string,
// naming how that string should be interpreted.
type PropertyType string

const (
	TypeStr     PropertyType = "str"
	TypeNum     PropertyType = "num"
	TypeJSON    PropertyType = "json"
	TypeRe      PropertyType = "re"
	TypeDate    PropertyType = "date"
	TypeBin     PropertyType = "bin"
	TypeMsg     PropertyType = "msg"
	TypeFlow    PropertyType = "flow"
	TypeGlobal  PropertyType = "global"
	TypeBool    PropertyType = "bool"
	TypeJsonata PropertyType = "jsonata"
	TypeEnv     PropertyType = "env"
)

// EvaluateEnvProperty resolves name through base's env.Store, which already chains
// node -> flow -> engine per component E.
func EvaluateEnvProperty(base *node.Base, name string) (model.Variant, bool) {
	return base.Env().GetRaw(name)
}

// contextForType returns the Context scope a Flow/Global property type addresses.
func contextForType(base *node.Base, pt PropertyType) (*ctxstore.Context, error) {
	switch pt {
	case TypeFlow:
		return base.Flow().Context(), nil
	case TypeGlobal:
		return base.Engine().GlobalContext(), nil
	default:
		return nil, edgelinkerr.Newf(edgelinkerr.InvalidOperation, "property type %q has no context scope", pt)
	}
}

// EvaluateNodeProperty evaluates a raw configured string value according to its
// declared property type. msg may be nil when the type doesn't need it (anything but
// "msg"); ctx is only exercised by the "flow"/"global" context lookups.
func EvaluateNodeProperty(ctx context.Context, base *node.Base, value string, pt PropertyType, msg *model.Msg) (model.Variant, error) {
	switch pt {
	case TypeStr, "":
		return model.NewString(value), nil

	case TypeNum, TypeJSON:
		var v model.Variant
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "invalid "+string(pt)+" literal "+value)
		}
		return v, nil

	case TypeRe:
		v, err := model.NewRegex(value)
		if err != nil {
			return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.BadArguments, err, "invalid regular expression "+value)
		}
		return v, nil

	case TypeDate:
		switch value {
		case "object":
			return model.NewDate(time.Now()), nil
		case "iso":
			return model.NewString(time.Now().UTC().Format(time.RFC3339Nano)), nil
		default:
			return model.NewInt(time.Now().UnixMilli()), nil
		}

	case TypeBin:
		var arr model.Variant
		if err := json.Unmarshal([]byte(value), &arr); err != nil {
			return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "invalid bin literal "+value)
		}
		ints, ok := arr.AsArray()
		if !ok {
			return model.Variant{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "expected an array of bytes, got %s", value)
		}
		out := make([]int, 0, len(ints))
		for _, item := range ints {
			n, ok := item.AsF64()
			if !ok {
				return model.Variant{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "expected an array of bytes, got %s", value)
			}
			out = append(out, int(n))
		}
		return model.NewBytesFromInts(out)

	case TypeMsg:
		if msg == nil {
			return model.Variant{}, edgelinkerr.New(edgelinkerr.BadArguments, "`msg` is not available in this context")
		}
		v, ok := msg.GetNavStripped(value)
		if !ok {
			return model.Variant{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "cannot get the property(s) from `msg`: %s", value)
		}
		return v, nil

	case TypeGlobal, TypeFlow:
		return evaluateContextProperty(ctx, base, pt, value, msg)

	case TypeBool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.BadArguments, err, "invalid bool literal "+value)
		}
		return model.NewBool(b), nil

	case TypeJsonata:
		return model.Variant{}, edgelinkerr.New(edgelinkerr.NotSupported, "jsonata property evaluation is not supported")

	case TypeEnv:
		if v, ok := EvaluateEnvProperty(base, value); ok {
			return v, nil
		}
		return model.Variant{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "cannot find the environment variable `%s`", value)

	default:
		return model.Variant{}, edgelinkerr.Newf(edgelinkerr.UnsupportedFlowsJsonFormat, "unknown property type %q", pt)
	}
}

func evaluateContextProperty(ctx context.Context, base *node.Base, pt PropertyType, value string, msg *model.Msg) (model.Variant, error) {
	scope, err := contextForType(base, pt)
	if err != nil {
		return model.Variant{}, err
	}
	prop, err := ctxstore.ParseStoreKey(value)
	if err != nil {
		return model.Variant{}, err
	}
	v, err := scope.GetOne(ctx, prop)
	if err != nil {
		return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.IO, err, "cannot read the "+string(pt)+" context variable `"+value+"`")
	}
	if v.IsNull() {
		return model.Variant{}, edgelinkerr.Newf(edgelinkerr.BadArguments, "cannot find the %s context variable `%s`", pt, value)
	}
	return v, nil
}

// SetContextProperty sets (or, when value is nil, deletes) a flow/global context
// property addressed by a raw configured key string.
func SetContextProperty(ctx context.Context, base *node.Base, pt PropertyType, key string, value *model.Variant) error {
	scope, err := contextForType(base, pt)
	if err != nil {
		return err
	}
	prop, err := ctxstore.ParseStoreKey(key)
	if err != nil {
		return err
	}
	return scope.SetOne(ctx, prop, value)
}
