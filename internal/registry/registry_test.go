package registry

import (
	"context"
	"testing"

	"github.com/edgeflow/edgelink/internal/node"
)

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context) error { return nil }

func TestRegisterAndResolveFlow(t *testing.T) {
	r := New()
	factory := func(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (Runner, error) {
		return stubRunner{}, nil
	}
	if err := r.RegisterFlow("inject", factory); err != nil {
		t.Fatal(err)
	}
	if !r.IsKnownFlowType("inject") {
		t.Error("expected inject to be known")
	}
	f, ok := r.ResolveFlow("inject")
	if !ok || f == nil {
		t.Fatal("expected to resolve inject factory")
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := New()
	factory := func(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (Runner, error) {
		return stubRunner{}, nil
	}
	if err := r.RegisterFlow("inject", factory); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterFlow("inject", factory); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestUnknownFallback(t *testing.T) {
	r := New()
	fallback := func(flow node.FlowHandle, base *node.Base, config map[string]interface{}) (Runner, error) {
		return stubRunner{}, nil
	}
	r.SetUnknownFallbacks(fallback, nil)

	if r.IsKnownFlowType("made-up-type") {
		t.Error("unregistered type should not be reported as known")
	}
	f, ok := r.ResolveFlow("made-up-type")
	if !ok || f == nil {
		t.Fatal("expected unknown.flow fallback to resolve")
	}

	if _, ok := r.ResolveGlobal("made-up-global"); ok {
		t.Error("expected no global fallback to be configured")
	}
}
