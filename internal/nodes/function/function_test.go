package function

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

func TestChangeSetReplacesPayload(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"change","rules":[{"t":"set","p":"payload","pt":"msg","to":"hello","tot":"str"}],"wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	id, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(context.Background(), id, model.NewString("original")); err != nil {
		t.Fatal(err)
	}

	msg := recvOrFail(t, recv)
	v, ok := msg.Get("payload")
	if !ok {
		t.Fatal("expected a payload")
	}
	if s, _ := v.AsString(); s != "hello" {
		t.Errorf("expected payload %q, got %q", "hello", s)
	}
}

func TestChangeDeleteRemovesProperty(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"change","rules":[{"t":"delete","p":"payload","pt":"msg"}],"wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	id, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(context.Background(), id, model.NewString("x")); err != nil {
		t.Fatal(err)
	}

	out := recvOrFail(t, recv)
	if out.Contains("payload") {
		t.Error("expected payload to be removed")
	}
}

func TestRbeOnlySendsOnChange(t *testing.T) {
	recv := make(chan *model.Msg, 4)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"rbe","func":"rbe","property":"payload","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	id, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := e.Inject(ctx, id, model.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	recvOrFail(t, recv)

	if err := e.Inject(ctx, id, model.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	expectNoMsg(t, recv)

	if err := e.Inject(ctx, id, model.NewInt(11)); err != nil {
		t.Fatal(err)
	}
	recvOrFail(t, recv)
}

func TestRbeDeadbandFiltersWithinGap(t *testing.T) {
	recv := make(chan *model.Msg, 4)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"rbe","func":"deadband","gap":5,"property":"payload","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	id, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// The very first reading has no stored previous value, so the default synthesized
	// baseline (value - gap - 1) always exceeds the gap and the first message sends.
	if err := e.Inject(ctx, id, model.NewFloat(100)); err != nil {
		t.Fatal(err)
	}
	recvOrFail(t, recv)

	if err := e.Inject(ctx, id, model.NewFloat(101)); err != nil {
		t.Fatal(err)
	}
	expectNoMsg(t, recv)

	if err := e.Inject(ctx, id, model.NewFloat(120)); err != nil {
		t.Fatal(err)
	}
	recvOrFail(t, recv)
}

func TestRangeScalesValue(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"range","action":"scale","minin":0,"maxin":10,"minout":0,"maxout":100,"property":"payload","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	id, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(context.Background(), id, model.NewFloat(5)); err != nil {
		t.Fatal(err)
	}

	msg := recvOrFail(t, recv)
	v, ok := msg.Get("payload")
	if !ok {
		t.Fatal("expected a payload")
	}
	if f, _ := v.AsF64(); f != 50 {
		t.Errorf("expected 50, got %v", f)
	}
}

func TestRangeDropsOutOfRangeValues(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)
	_ = buildAndStart(t, e, `[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"range","action":"drop","minin":0,"maxin":10,"minout":0,"maxout":100,"property":"payload","wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"}
	]`)

	id, err := model.ParseElementId("1")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Inject(context.Background(), id, model.NewFloat(50)); err != nil {
		t.Fatal(err)
	}
	expectNoMsg(t, recv)
}
