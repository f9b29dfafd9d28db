package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Runtime.Flow.NodeMsgQueueCapacity != 16 {
		t.Errorf("got %d, want 16", cfg.Runtime.Flow.NodeMsgQueueCapacity)
	}
	if cfg.Runtime.Context.Default != "memory" {
		t.Errorf("got %q, want memory", cfg.Runtime.Context.Default)
	}
	if cfg.Runtime.Log.Level != "info" {
		t.Errorf("got %q, want info", cfg.Runtime.Log.Level)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EDGELINK_RUNTIME_FLOW_NODE_MSG_QUEUE_CAPACITY", "32")
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Runtime.Flow.NodeMsgQueueCapacity != 32 {
		t.Errorf("got %d, want 32 (env override)", cfg.Runtime.Flow.NodeMsgQueueCapacity)
	}
}
