package common

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/engine"
	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/model"
	"github.com/edgeflow/edgelink/internal/node"
	"github.com/edgeflow/edgelink/internal/registry"
)

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
		s.recv <- msg
	}
}

func newTestEngine(t *testing.T, recv chan *model.Msg) *engine.Engine {
	t.Helper()
	reg := registry.New()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterFlow("sink", func(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (registry.Runner, error) {
		return &sinkRunner{base: base, recv: recv}, nil
	}); err != nil {
		t.Fatal(err)
	}
	mgr, err := ctxstore.NewManagerBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	return engine.New(reg, mgr, nil, 4, nil)
}

func TestLinkOutStaticDeliversToLinkIn(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"3","z":"100","type":"link in","wires":[["5"]]},
		{"id":"4","z":"100","type":"link out","mode":"link","links":["3"]},
		{"id":"5","z":"100","type":"sink"}
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

	n4, err := model.ParseElementId("4")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(ctx, n4, model.NewString("hi")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-recv:
	case <-time.After(time.Second):
		t.Fatal("expected the link-out -> link-in -> sink chain to deliver the message")
	}
}

func TestLinkCallDynamicRoundTrip(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)

	// "2" is a dynamic link call whose own output port 0 goes to the sink "5".
	// msg.target addresses "3" (a link in) at call time, which wires to "4" (a
	// link out in return mode), which pops the stack and delivers back to "2".
	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"2","z":"100","type":"link call","linkType":"dynamic","timeout":2,"wires":[["5"]]},
		{"id":"3","z":"100","type":"link in","wires":[["4"]]},
		{"id":"4","z":"100","type":"link out","mode":"return"},
		{"id":"5","z":"100","type":"sink"}
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

	n2, ok := e.FindFlowNode("2")
	if !ok {
		t.Fatal("expected to find the link call node")
	}
	msg := model.NewMsg(model.EmptyElementId)
	msg.Set("target", model.NewString("3"))
	if err := n2.Inject(ctx, msg); err != nil {
		t.Fatal(err)
	}

	select {
	case <-recv:
	case <-time.After(time.Second):
		t.Fatal("expected the call to round-trip back through the sink wired to the link call's own output")
	}
}

func TestLinkCallTimesOutWithoutMatchingReturn(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"2","z":"100","type":"link call","linkType":"dynamic","timeout":0.05},
		{"id":"3","z":"100","type":"link in"}
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

	n2, ok := e.FindFlowNode("2")
	if !ok {
		t.Fatal("expected to find the link call node")
	}
	impl, ok := n2.Impl().(*LinkCallNode)
	if !ok {
		t.Fatal("expected the link call node's Impl to be a *LinkCallNode")
	}

	msg := model.NewMsg(model.EmptyElementId)
	msg.Set("target", model.NewString("3"))
	if err := n2.Inject(ctx, msg); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for {
		impl.mu.Lock()
		n := len(impl.pending)
		impl.mu.Unlock()
		if n == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected the pending call to be dropped after its timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
