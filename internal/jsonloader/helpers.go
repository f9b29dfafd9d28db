package jsonloader

import (
	"strings"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
)

func getString(m RawElement, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getElementID(m RawElement, key string) (model.ElementId, bool) {
	s, ok := getString(m, key)
	if !ok || s == "" {
		return model.EmptyElementId, false
	}
	id, err := model.ParseElementId(s)
	if err != nil {
		return model.EmptyElementId, false
	}
	return id, true
}

// TypeValue is a parsed "type" field: either a bare name ("inject") or a
// subflow-instance reference ("subflow:<id>"). Exported so the engine package can
// reuse the same classification when instantiating nodes from a FlowNodeConfig.
type TypeValue struct {
	Kind  string
	ID    model.ElementId
	HasID bool
}

// ParseTypeValue splits a node "type" string into its bare kind and, for
// "subflow:<id>" references, the referenced subflow definition's id.
func ParseTypeValue(t string) TypeValue {
	if kind, rest, found := strings.Cut(t, ":"); found {
		if id, err := model.ParseElementId(rest); err == nil {
			return TypeValue{Kind: kind, ID: id, HasID: true}
		}
	}
	return TypeValue{Kind: t}
}

func badJSON(format string, args ...any) error {
	return edgelinkerr.Newf(edgelinkerr.BadFlowsJson, format, args...)
}
