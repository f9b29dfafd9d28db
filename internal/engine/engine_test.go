package engine

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

// sinkRunner relays everything it receives onto its own output ports, and also
// records every message it sees, so tests can observe delivery.
type sinkRunner struct {
	base *node.Base
	recv chan *model.Msg
}

func (s *sinkRunner) Run(ctx context.Context) error {
	for {
		msg, err := s.base.Recv(ctx)
		if err != nil {
			return nil
		}
		if s.recv != nil {
			s.recv <- msg
		}
		_ = s.base.FanOutMany(ctx, []node.Envelope{{Port: 0, Msg: msg}})
		s.base.NotifyCompletion(ctx, msg)
	}
}

func newTestRegistry(recv chan *model.Msg) *registry.Registry {
	r := registry.New()
	_ = r.RegisterFlow("sink", func(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
		return &sinkRunner{base: base, recv: recv}, nil
	})
	return r
}

func newTestEngine(t *testing.T, reg *registry.Registry) *Engine {
	t.Helper()
	mgr, err := ctxstore.NewManagerBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	return New(reg, mgr, nil, 4, nil)
}

func TestBuildWiresTwoNodesAndInjects(t *testing.T) {
	recv := make(chan *model.Msg, 4)
	reg := newTestRegistry(recv)
	e := newTestEngine(t, reg)

	data := []byte(`[
		{"id":"100","type":"tab","label":"Flow 1"},
		{"id":"1","z":"100","type":"sink","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)
	resolved, err := jsonloader.LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Build(resolved); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	n1, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(ctx, n1, model.NewString("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-recv:
	case <-time.After(time.Second):
		t.Fatal("node 1 never received the injected message")
	}
	select {
	case <-recv:
	case <-time.After(time.Second):
		t.Fatal("node 2 never received the forwarded message")
	}
}

func TestFindFlowNodeByName(t *testing.T) {
	reg := newTestRegistry(nil)
	e := newTestEngine(t, reg)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"sink","name":"greeter"}
	]`)
	resolved, err := jsonloader.LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Build(resolved); err != nil {
		t.Fatal(err)
	}

	if _, ok := e.FindFlowNode("greeter"); !ok {
		t.Error("expected to find node by name")
	}
	if _, ok := e.FindFlowNode("0000000000000001"); !ok {
		t.Error("expected to find node by canonical id")
	}
}

func TestBuildFailsOnUnknownNodeType(t *testing.T) {
	reg := registry.New()
	e := newTestEngine(t, reg)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"made-up-type"}
	]`)
	resolved, err := jsonloader.LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Build(resolved); err == nil {
		t.Fatal("expected Build to fail when no factory (and no unknown.flow fallback) is registered")
	}
}

func TestSubflowInstanceForwardsInAndOut(t *testing.T) {
	recv := make(chan *model.Msg, 4)
	reg := newTestRegistry(recv)
	e := newTestEngine(t, reg)

	// A subflow with one internal sink node wired straight through to the subflow's
	// own declared external output port 0.
	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"5f1","type":"subflow","name":"passthrough",
		 "in":[{"wires":[{"id":"5fc111"}]}],
		 "out":[{"wires":[{"id":"5fc111","port":0}]}]},
		{"id":"5fc111","z":"5f1","type":"sink"},
		{"id":"151","z":"100","type":"subflow:5f1","name":"inst","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)
	resolved, err := jsonloader.LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Build(resolved); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	instID, err := model.ParseElementId("151")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(ctx, instID, model.NewString("hi")); err != nil {
		t.Fatal(err)
	}

	// Expect delivery to the internal sink node, then (via the out-forwarder) to "2".
	for i := 0; i < 2; i++ {
		select {
		case <-recv:
		case <-time.After(time.Second):
			t.Fatalf("expected %d deliveries through the subflow boundary, only saw %d", 2, i)
		}
	}
}
