package common

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflow/edgelink/internal/jsonloader"
	"github.com/edgeflow/edgelink/internal/model"
)

func TestCatchNodeReceivesErrorFromFailingNode(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"link call","linkType":"dynamic","timeout":1,"wires":[["2"]]},
		{"id":"2","z":"100","type":"sink"},
		{"id":"3","z":"100","type":"catch","scope":"all","wires":[["2"]]}
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

	n1, ok := e.FindFlowNode("1")
	if !ok {
		t.Fatal("expected to find the link call node")
	}
	msg := model.NewMsg(model.EmptyElementId)
	msg.Set("target", model.NewString("does-not-exist"))
	if err := n1.Inject(ctx, msg); err != nil {
		t.Fatal(err)
	}

	select {
	case out := <-recv:
		if !out.Contains("error") {
			t.Error("expected the message relayed by the catch node to carry an `error` property")
		}
	case <-time.After(time.Second):
		t.Fatal("expected the catch node to relay the error to its sink")
	}
}

func TestCompleteNodeReceivesSuccessfulCompletion(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"link in"},
		{"id":"3","z":"100","type":"complete","scope":["1"],"wires":[["2"]]},
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

	n1, ok := e.FindFlowNode("1")
	if !ok {
		t.Fatal("expected to find the link in node")
	}
	if err := n1.Inject(ctx, model.NewMsg(model.EmptyElementId)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-recv:
	case <-time.After(time.Second):
		t.Fatal("expected the complete node's relay to reach the sink")
	}
}

func TestStatusNodeReceivesPublishedStatus(t *testing.T) {
	recv := make(chan *model.Msg, 2)
	e := newTestEngine(t, recv)

	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"link in"},
		{"id":"3","z":"100","type":"status","scope":["1"],"wires":[["2"]]},
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

	n1, ok := e.FindFlowNode("1")
	if !ok {
		t.Fatal("expected to find the link in node")
	}
	n1.ReportStatus(ctx, model.NewString("connected"))

	select {
	case out := <-recv:
		v, ok := out.Get("status")
		if !ok {
			t.Fatal("expected a `status` property")
		}
		if s, _ := v.AsString(); s != "connected" {
			t.Errorf("expected status %q, got %q", "connected", s)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the status node to relay the published status to its sink")
	}
}
