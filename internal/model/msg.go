package model

import (
	"encoding/json"
	"strings"

	"github.com/edgeflow/edgelink/internal/edgelinkerr"
)

// LinkSourceEntry is one frame of a Msg's link-call stack: it records the call's
// stack id and the id of the `link call` node awaiting the matching `link out(return)`.
type LinkSourceEntry struct {
	StackId       ElementId
	LinkCallNodeId ElementId
}

// Msg is a Variant Object plus the out-of-band attributes spec §3 calls for:
// birth_place (origin flow id) and a link-call stack. The well-known "_msgid"
// property always holds a fresh ElementId for each newly constructed Msg.
type Msg struct {
	body          Variant // always KindObject
	birthPlace    ElementId
	linkCallStack []LinkSourceEntry
}

// NewMsg constructs an empty Msg with a fresh _msgid.
func NewMsg(birthPlace ElementId) *Msg {
	m := &Msg{body: NewEmptyObject(), birthPlace: birthPlace}
	m.body.ObjectSet("_msgid", NewString(NewElementId().String()))
	return m
}

// NewMsgWithPayload is a convenience constructor seeding a "payload" property.
func NewMsgWithPayload(birthPlace ElementId, payload Variant) *Msg {
	m := NewMsg(birthPlace)
	m.body.ObjectSet("payload", payload)
	return m
}

func (m *Msg) BirthPlace() ElementId { return m.birthPlace }

func (m *Msg) AsVariant() Variant { return m.body }

// MsgId returns the well-known "_msgid" property as a string, if present.
func (m *Msg) MsgId() string {
	if v, ok := m.body.ObjectGet("_msgid"); ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return ""
}

// Get returns a top-level property of the message body.
func (m *Msg) Get(name string) (Variant, bool) {
	return m.body.ObjectGet(name)
}

func (m *Msg) Set(name string, v Variant) {
	m.body.ObjectSet(name, v)
}

func (m *Msg) Remove(name string) bool {
	return m.body.ObjectDelete(name)
}

func (m *Msg) Contains(name string) bool {
	_, ok := m.body.ObjectGet(name)
	return ok
}

// checkFirstSegmentIsString enforces the constraint from spec §3: "when addressing a
// message, the first segment must be a string property" — msg[0] is invalid, msg.foo
// and msg['foo'] are valid.
func checkFirstSegmentIsString(expr Expression) error {
	if len(expr.Segments) == 0 {
		return edgelinkerr.New(edgelinkerr.BadArguments, "empty propex expression")
	}
	if expr.Segments[0].Kind == SegIndex {
		return edgelinkerr.New(edgelinkerr.BadArguments, "a message's first propex segment must be a string property, not an index")
	}
	return nil
}

func (m *Msg) envWithSelf() Environment {
	return Environment{"msg": m.body}
}

// GetNavProperty navigates the message body with a propex path. The first segment
// must name a string property.
func (m *Msg) GetNavProperty(path string) (Variant, error) {
	expr, err := Parse(path)
	if err != nil {
		return Variant{}, err
	}
	if err := checkFirstSegmentIsString(expr); err != nil {
		return Variant{}, err
	}
	v, ok := Get(m.body, expr, m.envWithSelf())
	if !ok {
		return Variant{}, edgelinkerr.Newf(edgelinkerr.InvalidOperation, "property %q not found in message", path)
	}
	return v, nil
}

// GetNavStripped is GetNavProperty but tolerates a leading "msg." prefix, returning
// (value, ok) instead of an error — used by nodes that accept either "payload" or
// "msg.payload" as a configured property path.
func (m *Msg) GetNavStripped(path string) (Variant, bool) {
	path = strings.TrimPrefix(path, "msg.")
	v, err := m.GetNavProperty(path)
	if err != nil {
		return Variant{}, false
	}
	return v, true
}

// SetNavProperty sets a property addressed by a propex path. If createMissing is
// false and the top-level property doesn't already exist, no intermediate objects
// are invented — matching the Rust source's two-mode set_nav_property.
func (m *Msg) SetNavProperty(path string, value Variant, createMissing bool) error {
	expr, err := Parse(path)
	if err != nil {
		return err
	}
	if err := checkFirstSegmentIsString(expr); err != nil {
		return err
	}
	if !createMissing {
		if _, ok := m.body.ObjectGet(expr.Segments[0].Str); !ok {
			return edgelinkerr.Newf(edgelinkerr.InvalidOperation, "property %q does not exist and creation is disabled", path)
		}
	}
	return Set(&m.body, expr, value, m.envWithSelf())
}

// SetNavStripped tolerates a leading "msg." prefix, mirroring GetNavStripped.
func (m *Msg) SetNavStripped(path string, value Variant, createMissing bool) error {
	path = strings.TrimPrefix(path, "msg.")
	return m.SetNavProperty(path, value, createMissing)
}

// RemoveNav deletes the property addressed by path, returning whether it existed.
func (m *Msg) RemoveNav(path string) bool {
	expr, err := Parse(path)
	if err != nil {
		return false
	}
	if err := checkFirstSegmentIsString(expr); err != nil {
		return false
	}
	return Remove(&m.body, expr, m.envWithSelf())
}

// PushLinkSource pushes a new frame onto the link-call stack (called by `link call`).
func (m *Msg) PushLinkSource(e LinkSourceEntry) {
	m.linkCallStack = append(m.linkCallStack, e)
}

// PopLinkSource pops the top frame of the link-call stack (called by `link out(return)`).
// Returns false if the stack is empty.
func (m *Msg) PopLinkSource() (LinkSourceEntry, bool) {
	if len(m.linkCallStack) == 0 {
		return LinkSourceEntry{}, false
	}
	top := m.linkCallStack[len(m.linkCallStack)-1]
	m.linkCallStack = m.linkCallStack[:len(m.linkCallStack)-1]
	return top, true
}

// Clone performs a deep copy of the message, including its link-call stack, but does
// NOT mint a new _msgid — fan-out cloning preserves message identity for tracing
// purposes while deep-copying the mutable body.
func (m *Msg) Clone() *Msg {
	stack := make([]LinkSourceEntry, len(m.linkCallStack))
	copy(stack, m.linkCallStack)
	return &Msg{
		body:          m.body.Clone(),
		birthPlace:    m.birthPlace,
		linkCallStack: stack,
	}
}

// msgJSON is the on-the-wire shape: body fields flattened alongside the metadata keys,
// mirroring the Rust source's custom (de)serialization.
type msgJSON struct {
	Body          map[string]Variant `json:"-"`
	BirthPlace    ElementId          `json:"_birth_place,omitempty"`
	LinkCallStack []linkSourceJSON   `json:"_linkSource,omitempty"`
}

type linkSourceJSON struct {
	Id             ElementId `json:"id"`
	LinkCallNodeId ElementId `json:"link_call_node_id"`
}

func (m *Msg) MarshalJSON() ([]byte, error) {
	out := NewEmptyObject()
	m.body.ObjectEach(func(k string, v Variant) {
		out.ObjectSet(k, v)
	})
	if !m.birthPlace.IsEmpty() {
		out.ObjectSet("_birth_place", NewString(m.birthPlace.String()))
	}
	if len(m.linkCallStack) > 0 {
		items := make([]Variant, len(m.linkCallStack))
		for i, e := range m.linkCallStack {
			entry := NewEmptyObject()
			entry.ObjectSet("id", NewString(e.StackId.String()))
			entry.ObjectSet("link_call_node_id", NewString(e.LinkCallNodeId.String()))
			items[i] = entry
		}
		out.ObjectSet("_linkSource", NewArray(items))
	}
	return out.MarshalJSON()
}

func (m *Msg) UnmarshalJSON(data []byte) error {
	var v Variant
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Kind() != KindObject {
		return edgelinkerr.New(edgelinkerr.InvalidData, "a message must decode from a JSON object")
	}
	body := NewEmptyObject()
	v.ObjectEach(func(k string, val Variant) {
		switch k {
		case "_birth_place":
			if s, ok := val.AsString(); ok {
				if id, err := ParseElementId(s); err == nil {
					m.birthPlace = id
				}
			}
		case "_linkSource":
			if arr, ok := val.AsArray(); ok {
				m.linkCallStack = make([]LinkSourceEntry, 0, len(arr))
				for _, item := range arr {
					idStr, _ := func() (string, bool) {
						x, ok := item.ObjectGet("id")
						if !ok {
							return "", false
						}
						return x.AsString()
					}()
					nodeIdStr, _ := func() (string, bool) {
						x, ok := item.ObjectGet("link_call_node_id")
						if !ok {
							return "", false
						}
						return x.AsString()
					}()
					id, err1 := ParseElementId(idStr)
					nodeId, err2 := ParseElementId(nodeIdStr)
					if err1 == nil && err2 == nil {
						m.linkCallStack = append(m.linkCallStack, LinkSourceEntry{StackId: id, LinkCallNodeId: nodeId})
					}
				}
			}
		default:
			body.ObjectSet(k, val)
		}
	})
	m.body = body
	return nil
}
