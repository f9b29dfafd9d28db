package ctxstore

import (
	"context"
	"testing"

	"github.com/edgeflow/edgelink/internal/model"
)

func TestParseStoreKey(t *testing.T) {
	p, err := ParseStoreKey("#:(file)::foo.bar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Store != "file" || p.Key != "foo.bar" {
		t.Errorf("got %+v", p)
	}

	p, err = ParseStoreKey("foo.bar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Store != "" || p.Key != "foo.bar" {
		t.Errorf("got %+v", p)
	}

	if _, err := ParseStoreKey("#:(file"); err == nil {
		t.Error("expected error for unterminated store name")
	}
}

func TestMemoryStoreGetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("memory")

	if err := s.SetOne(ctx, "node1", "count", model.NewInt(1)); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetOne(ctx, "node1", "count")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := v.AsNumber()
	if i, _ := n.AsI64(); i != 1 {
		t.Errorf("got %v, want 1", v)
	}

	prev, err := s.RemoveOne(ctx, "node1", "count")
	if err != nil {
		t.Fatal(err)
	}
	pn, _ := prev.AsNumber()
	if i, _ := pn.AsI64(); i != 1 {
		t.Errorf("expected removed value to be returned")
	}
	v, _ = s.GetOne(ctx, "node1", "count")
	if !v.IsNull() {
		t.Errorf("expected removed key to read back as null")
	}
}

func TestMemoryStoreClean(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("memory")

	active := model.NewElementId()
	stale := model.NewElementId()

	_ = s.SetOne(ctx, active.String(), "k", model.NewInt(1))
	_ = s.SetOne(ctx, stale.String(), "k", model.NewInt(2))
	_ = s.SetOne(ctx, GlobalScopeName, "k", model.NewInt(3))

	if err := s.Clean(ctx, []model.ElementId{active}); err != nil {
		t.Fatal(err)
	}

	v, _ := s.GetOne(ctx, active.String(), "k")
	if v.IsNull() {
		t.Error("active scope should survive Clean")
	}
	v, _ = s.GetOne(ctx, stale.String(), "k")
	if !v.IsNull() {
		t.Error("stale scope should be swept by Clean")
	}
	v, _ = s.GetOne(ctx, GlobalScopeName, "k")
	if v.IsNull() {
		t.Error("global scope must never be swept")
	}
}

func TestManagerDefaultAndNamedStores(t *testing.T) {
	mgr, err := NewManagerBuilder().Build()
	if err != nil {
		t.Fatal(err)
	}
	c := mgr.NewContext("node1")
	ctx := context.Background()

	val := model.NewString("hello")
	if err := c.SetOne(ctx, StoreProperty{Key: "greeting"}, &val); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetOne(ctx, StoreProperty{Key: "greeting"})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := got.AsString(); s != "hello" {
		t.Errorf("got %q, want hello", s)
	}

	if err := c.SetOne(ctx, StoreProperty{Key: "greeting"}, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = c.GetOne(ctx, StoreProperty{Key: "greeting"})
	if !got.IsNull() {
		t.Error("expected removal after SetOne with nil value")
	}

	if _, err := mgr.NewContext("node1").resolveStore("does-not-exist"); err == nil {
		t.Error("expected error for unknown store name")
	}
}

func TestManagerBuildUnknownDefaultStoreFails(t *testing.T) {
	_, err := NewManagerBuilder().WithDefault("missing").Build()
	if err == nil {
		t.Error("expected error when default store name is not registered")
	}
}
