package model

import "testing"

func TestMsgNavProperty(t *testing.T) {
	m := NewMsgWithPayload(EmptyElementId, NewString("abc"))
	v, err := m.GetNavProperty("payload")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "abc" {
		t.Errorf("got %q, want abc", s)
	}

	if err := m.SetNavProperty("payload", NewString("xyz"), true); err != nil {
		t.Fatal(err)
	}
	v, _ = m.GetNavProperty("payload")
	if s, _ := v.AsString(); s != "xyz" {
		t.Errorf("got %q, want xyz", s)
	}
}

func TestMsgFirstSegmentMustBeString(t *testing.T) {
	m := NewMsg(EmptyElementId)
	if _, err := m.GetNavProperty("[0]"); err == nil {
		t.Error("expected error addressing msg with a leading index")
	}
}

func TestMsgLinkCallStack(t *testing.T) {
	m := NewMsg(EmptyElementId)
	if _, ok := m.PopLinkSource(); ok {
		t.Fatal("expected empty stack to report not-found")
	}
	e := LinkSourceEntry{StackId: NewElementId(), LinkCallNodeId: NewElementId()}
	m.PushLinkSource(e)
	got, ok := m.PopLinkSource()
	if !ok || got != e {
		t.Fatalf("round trip failed: got %+v, ok=%v", got, ok)
	}
}

func TestMsgCloneIsDeep(t *testing.T) {
	m := NewMsgWithPayload(EmptyElementId, NewString("a"))
	clone := m.Clone()
	clone.Set("payload", NewString("b"))
	v, _ := m.Get("payload")
	if s, _ := v.AsString(); s != "a" {
		t.Errorf("original mutated through clone: got %q", s)
	}
}
