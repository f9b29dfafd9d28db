// Package node implements the per-node actor runtime (component I): bounded inboxes,
// port/wire fan-out, and the standard unit-of-work loop, grounded on the teacher's
// internal/node/node.go channel-actor idiom.
package node

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/env"
	"github.com/edgeflow/edgelink/internal/model"
)

// Envelope is one outbound message bound for a given output port.
type Envelope struct {
	Port int
	Msg  *model.Msg
}

// Wire is a sender handle to a target node's bounded inbox -- a non-owning reference,
// never the target itself, so cyclic flow graphs never become ownership cycles.
type Wire struct {
	Target chan<- *model.Msg
}

// FlowHandle is the subset of Flow a node needs: its own id, peer lookup within the
// flow, and its env/context scopes. Implemented by internal/engine.Flow; node does not
// import engine, avoiding an import cycle (the "weak back-reference" of spec §9 is
// just an interface value here, since Go's GC already handles reference cycles).
type FlowHandle interface {
	ID() model.ElementId
	Env() *env.Store
	Context() *ctxstore.Context
	// IsSubflow reports whether this flow is a subflow definition's internal body,
	// used by `link call`'s dynamic target resolution to reject a target living
	// inside a subflow (spec §4.7).
	IsSubflow() bool
	// FindNode resolves idOrName against this flow's own nodes only, by id first
	// then by name -- the middle tier of spec §4.7's link call resolution order.
	FindNode(idOrName string) (*Base, bool)
}

// EngineHandle is the subset of Engine a node needs for cross-flow lookups.
type EngineHandle interface {
	FindFlowNode(idOrName string) (*Base, bool)
	GlobalContext() *ctxstore.Context
	Env() *env.Store
}

// ErrorReporter is notified when a node's unit of work fails; implemented by the
// flow's catch/complete router (component M).
type ErrorReporter func(ctx context.Context, srcNode *Base, err error, msg *model.Msg)

// CompletionNotifier is notified when a node's unit of work succeeds.
type CompletionNotifier func(ctx context.Context, srcNode *Base, msg *model.Msg)

// StatusReporter is notified when a node publishes a status update (spec §4.6's status
// nodes), implemented by the flow's catch/complete/status router (component M).
type StatusReporter func(ctx context.Context, srcNode *Base, status model.Variant)

// Base is embedded by every concrete node implementation. It owns the inbox channel
// and the outbound port/wire table, and provides the blocking fan-out primitives spec
// §4.3 requires.
type Base struct {
	mu sync.RWMutex

	id   model.ElementId
	typ  string
	name string

	flow   FlowHandle
	engine EngineHandle

	inbox chan *model.Msg
	ports [][]Wire

	onError    ErrorReporter
	onComplete CompletionNotifier
	onStatus   StatusReporter

	nodeEnv *env.Store

	// impl holds the concrete Runner the registry factory built, so a node type
	// that needs to reach another node's type-specific behavior (e.g. `link out`
	// delivering a return value to the `link call` node awaiting it) can look the
	// target up by id via EngineHandle.FindFlowNode and then type-assert Impl().
	impl any

	log *zap.Logger
}

// NewBase constructs a node's shared runtime state. inboxCapacity is the bounded
// channel size (spec §4.3's default 16, overridable via configuration).
func NewBase(id model.ElementId, typ, name string, flow FlowHandle, engine EngineHandle, inboxCapacity int, log *zap.Logger) *Base {
	if inboxCapacity <= 0 {
		inboxCapacity = 16
	}
	return &Base{
		id:     id,
		typ:    typ,
		name:   name,
		flow:   flow,
		engine: engine,
		inbox:  make(chan *model.Msg, inboxCapacity),
		log:    log,
	}
}

func (b *Base) ID() model.ElementId { return b.id }
func (b *Base) Type() string        { return b.typ }
func (b *Base) Name() string        { return b.name }
func (b *Base) Flow() FlowHandle    { return b.flow }
func (b *Base) Engine() EngineHandle { return b.engine }
func (b *Base) Logger() *zap.Logger { return b.log }

// Inbox exposes the receive-only channel, used by the node's own Run loop.
func (b *Base) Inbox() <-chan *model.Msg { return b.inbox }

// InboxSender exposes the send-only channel, used by the flow builder to hand out wire
// handles that target this node.
func (b *Base) InboxSender() chan<- *model.Msg { return b.inbox }

// SetPorts installs the node's output port/wire table. Called once during flow wiring.
func (b *Base) SetPorts(ports [][]Wire) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports = ports
}

// AppendPortWire adds one extra wire to an already-wired output port, growing the
// port table if needed. Used by subflow out-port redirection, which attaches an
// internal collector wire to a node that may already have its own normal wires.
func (b *Base) AppendPortWire(port int, w Wire) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.ports) <= port {
		b.ports = append(b.ports, nil)
	}
	b.ports[port] = append(b.ports[port], w)
}

// SetEnv installs the node's own env.Store, chained under its flow's (component E).
func (b *Base) SetEnv(s *env.Store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeEnv = s
}

// Env returns the node's own env.Store.
func (b *Base) Env() *env.Store {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeEnv
}

// SetImpl installs the concrete Runner the registry factory constructed for this
// node, set once by the flow builder immediately after construction.
func (b *Base) SetImpl(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.impl = v
}

// Impl returns the concrete Runner previously installed by SetImpl.
func (b *Base) Impl() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.impl
}

// SetCallbacks installs the error/completion/status hooks the flow's routing table
// provides.
func (b *Base) SetCallbacks(onError ErrorReporter, onComplete CompletionNotifier, onStatus StatusReporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = onError
	b.onComplete = onComplete
	b.onStatus = onStatus
}

func (b *Base) portWires(port int) []Wire {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if port < 0 || port >= len(b.ports) {
		return nil
	}
	return b.ports[port]
}

// Recv blocks for the next inbox message, racing the cancellation context per spec §5.
func (b *Base) Recv(ctx context.Context) (*model.Msg, error) {
	select {
	case msg, ok := <-b.inbox:
		if !ok {
			return nil, edgelinkerr.New(edgelinkerr.TaskCancelled, "inbox closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, edgelinkerr.New(edgelinkerr.TaskCancelled, "receive cancelled")
	}
}

// Inject enqueues msg into this node's own inbox, racing cancellation. It blocks if
// the inbox is full -- per spec §5 there is no drop path in the core, only back-
// pressure; "non-blocking" in spec §4.3's phrasing means "no retry loop", not "no wait".
func (b *Base) Inject(ctx context.Context, msg *model.Msg) error {
	select {
	case b.inbox <- msg:
		return nil
	case <-ctx.Done():
		return edgelinkerr.New(edgelinkerr.TaskCancelled, "inject cancelled")
	}
}

// sendOne delivers msg to a single wire, blocking on back-pressure.
func sendOne(ctx context.Context, w Wire, msg *model.Msg) error {
	select {
	case w.Target <- msg:
		return nil
	case <-ctx.Done():
		return edgelinkerr.New(edgelinkerr.TaskCancelled, "fan-out cancelled")
	}
}

// FanOut delivers msg to every wire in wires, cloning for every wire after the first,
// same deep-clone-except-first rule as FanOutOne. Exposed at package level for callers
// that hold a plain wire list rather than a Base's own port table (subflow instance
// "in" forwarding).
func FanOut(ctx context.Context, wires []Wire, msg *model.Msg) error {
	for i, w := range wires {
		var out *model.Msg
		if i == 0 {
			out = msg
		} else {
			out = msg.Clone()
		}
		if err := sendOne(ctx, w, out); err != nil {
			return err
		}
	}
	return nil
}

// FanOutOne routes env.Msg to every wire on port env.Port. The first wire receives the
// original handle; every subsequent wire receives a deep clone taken at send time, per
// spec §4.3/§8 invariant 4. Sends are sequential in wire order; a cancellation on any
// send aborts the remaining wires.
func (b *Base) FanOutOne(ctx context.Context, e Envelope) error {
	wires := b.portWires(e.Port)
	for i, w := range wires {
		var out *model.Msg
		if i == 0 {
			out = e.Msg
		} else {
			out = e.Msg.Clone()
		}
		if err := sendOne(ctx, w, out); err != nil {
			return err
		}
	}
	return nil
}

// FanOutMany is a shorthand for routing several envelopes (to possibly different
// ports) in one call, per spec §4.3.
func (b *Base) FanOutMany(ctx context.Context, envelopes []Envelope) error {
	for _, e := range envelopes {
		if err := b.FanOutOne(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// ReportError forwards a unit-of-work failure to the flow's error-handler chain.
func (b *Base) ReportError(ctx context.Context, err error, msg *model.Msg) {
	b.mu.RLock()
	cb := b.onError
	b.mu.RUnlock()
	if cb != nil {
		cb(ctx, b, err, msg)
	} else if b.log != nil {
		b.log.Warn("unhandled node error", zap.Error(err))
	}
}

// NotifyCompletion forwards a unit-of-work success to any listening complete nodes.
func (b *Base) NotifyCompletion(ctx context.Context, msg *model.Msg) {
	b.mu.RLock()
	cb := b.onComplete
	b.mu.RUnlock()
	if cb != nil {
		cb(ctx, b, msg)
	}
}

// ReportStatus publishes a status update to any listening status nodes.
func (b *Base) ReportStatus(ctx context.Context, status model.Variant) {
	b.mu.RLock()
	cb := b.onStatus
	b.mu.RUnlock()
	if cb != nil {
		cb(ctx, b, status)
	}
}

// Handler is the per-node-type business logic plugged into the standard work loop.
type Handler interface {
	// Setup runs once before the loop starts; it may fail the node's Run outright.
	Setup(ctx context.Context, n *Base) error
	// Process handles one inbound message, returning the envelopes to fan out.
	Process(ctx context.Context, n *Base, msg *model.Msg) ([]Envelope, error)
	// Teardown runs once after the loop exits, for any cleanup a node type needs.
	Teardown(n *Base)
}

// RunStandardLoop implements spec §4.3's "unit of work" loop: receive, process, report
// error or notify completion, fan out the result. Source-only nodes (inject, the link
// timeout watcher) do not use this and instead drive Base's primitives directly.
func RunStandardLoop(ctx context.Context, n *Base, h Handler) error {
	if err := h.Setup(ctx, n); err != nil {
		return err
	}
	defer h.Teardown(n)

	for {
		msg, err := n.Recv(ctx)
		if err != nil {
			if edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
				return nil
			}
			return err
		}

		envelopes, procErr := h.Process(ctx, n, msg)
		if procErr != nil {
			n.ReportError(ctx, procErr, msg)
			continue
		}

		if err := n.FanOutMany(ctx, envelopes); err != nil {
			if edgelinkerr.HasKind(err, edgelinkerr.TaskCancelled) {
				return nil
			}
			return err
		}
		n.NotifyCompletion(ctx, msg)
	}
}

// String renders a concise identity for logging.
func (b *Base) String() string {
	return fmt.Sprintf("%s(%s,%s)", b.typ, b.id, b.name)
}
