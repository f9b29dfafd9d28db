package inject

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

func buildAndStart(t *testing.T, e *engine.Engine, flowsJSON string) context.CancelFunc {
	t.Helper()
	resolved, err := jsonloader.LoadFlowsJSON([]byte(flowsJSON))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Build(resolved); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return cancel
}

func recvOrFail(t *testing.T, recv chan *model.Msg) *model.Msg {
	t.Helper()
	select {
	case msg := <-recv:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message to arrive at the sink")
		return nil
	}
}

func expectNoMsg(t *testing.T, recv chan *model.Msg) {
	t.Helper()
	select {
	case <-recv:
		t.Fatal("expected no message to arrive at the sink")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInjectOnceFiresImmediately(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"inject","once":true,"props":[{"p":"payload","v":"hello","vt":"str"},{"p":"topic","v":"weather","vt":"str"}],"wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	msg := recvOrFail(t, recv)
	v, ok := msg.Get("payload")
	if !ok {
		t.Fatal("expected a payload")
	}
	if s, _ := v.AsString(); s != "hello" {
		t.Errorf("expected payload %q, got %q", "hello", s)
	}
	topic, ok := msg.Get("topic")
	if !ok {
		t.Fatal("expected a topic")
	}
	if s, _ := topic.AsString(); s != "weather" {
		t.Errorf("expected topic %q, got %q", "weather", s)
	}
}

func TestInjectLegacyPayloadFields(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"inject","once":true,"payload":"42","payloadType":"num","topic":"sensor","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	msg := recvOrFail(t, recv)
	v, ok := msg.Get("payload")
	if !ok {
		t.Fatal("expected a payload")
	}
	if f, _ := v.AsF64(); f != 42 {
		t.Errorf("expected payload 42, got %v", f)
	}
}

func TestInjectRepeatFiresMultipleTimes(t *testing.T) {
	recv := make(chan *model.Msg, 4)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"inject","repeat":"0.05","props":[{"p":"payload","v":"tick","vt":"str"}],"wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	recvOrFail(t, recv)
	recvOrFail(t, recv)
}

func TestInjectWithNoTriggerSendsNothing(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"inject","props":[{"p":"payload","v":"x","vt":"str"}],"wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	expectNoMsg(t, recv)
}
