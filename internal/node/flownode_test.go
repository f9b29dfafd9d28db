package node

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflow/edgelink/internal/model"
)

type countingHandler struct {
	calls int
}

func (h *countingHandler) Setup(ctx context.Context, n *Base) error { return nil }
func (h *countingHandler) Teardown(n *Base)                         {}
func (h *countingHandler) Process(ctx context.Context, n *Base, msg *model.Msg) ([]Envelope, error) {
	h.calls++
	return []Envelope{{Port: 0, Msg: msg}}, nil
}

func TestFanOutOneClonesAllButFirst(t *testing.T) {
	ctx := context.Background()
	target1 := make(chan *model.Msg, 1)
	target2 := make(chan *model.Msg, 1)

	b := NewBase(model.NewElementId(), "test", "n1", nil, nil, 4, nil)
	b.SetPorts([][]Wire{{{Target: target1}, {Target: target2}}})

	birth := model.NewElementId()
	msg := model.NewMsg(birth)
	_ = msg.SetNavProperty("payload", model.NewString("hi"), true)

	if err := b.FanOutOne(ctx, Envelope{Port: 0, Msg: msg}); err != nil {
		t.Fatal(err)
	}

	got1 := <-target1
	got2 := <-target2
	if got1 != msg {
		t.Error("first wire should receive the original message handle")
	}
	if got2 == msg {
		t.Error("second wire should receive a distinct clone, not the original")
	}
	v1, _ := got1.Get("payload")
	v2, _ := got2.Get("payload")
	if !v1.Equal(v2) {
		t.Error("clone should be value-equal to the original at send time")
	}
}

func TestInjectAndRecv(t *testing.T) {
	ctx := context.Background()
	b := NewBase(model.NewElementId(), "test", "n1", nil, nil, 1, nil)

	msg := model.NewMsg(model.NewElementId())
	if err := b.Inject(ctx, msg); err != nil {
		t.Fatal(err)
	}
	got, err := b.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != msg {
		t.Error("expected to receive the injected message")
	}
}

func TestRunStandardLoopFanOutAndCancel(t *testing.T) {
	sink := make(chan *model.Msg, 4)
	b := NewBase(model.NewElementId(), "test", "n1", nil, nil, 4, nil)
	b.SetPorts([][]Wire{{{Target: sink}}})

	ctx, cancel := context.WithCancel(context.Background())
	h := &countingHandler{}

	done := make(chan error, 1)
	go func() { done <- RunStandardLoop(ctx, b, h) }()

	msg := model.NewMsg(model.NewElementId())
	if err := b.Inject(ctx, msg); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sink:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fan-out")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean exit on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}

	if h.calls != 1 {
		t.Errorf("expected exactly 1 process call, got %d", h.calls)
	}
}
