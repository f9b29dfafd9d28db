package jsonloader

import (
	"testing"
)

func TestLoadSimpleFlow(t *testing.T) {
	data := []byte(`[
		{"id":"100","type":"tab","label":"Flow 1"},
		{"id":"1","z":"100","type":"inject","wires":[["2"]]},
		{"id":"2","z":"100","type":"test-once"}
	]`)

	rf, err := LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rf.Flows) != 1 {
		t.Fatalf("expected 1 flow, got %d", len(rf.Flows))
	}
	flow := rf.Flows[0]
	if flow.TypeName != "tab" {
		t.Errorf("expected tab, got %q", flow.TypeName)
	}
	if len(flow.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(flow.Nodes))
	}
	if flow.Nodes[0].Type != "inject" {
		t.Errorf("expected inject node first, got %q", flow.Nodes[0].Type)
	}
	if len(flow.Nodes[0].Wires) != 1 || len(flow.Nodes[0].Wires[0].NodeIDs) != 1 {
		t.Fatalf("expected one wire with one target, got %+v", flow.Nodes[0].Wires)
	}
}

func TestLoadGlobalConfigNode(t *testing.T) {
	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"cfa1","type":"mqtt-broker","name":"broker"}
	]`)
	rf, err := LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rf.GlobalNodes) != 1 {
		t.Fatalf("expected 1 global node, got %d", len(rf.GlobalNodes))
	}
	if rf.GlobalNodes[0].Name != "broker" {
		t.Errorf("expected name broker, got %q", rf.GlobalNodes[0].Name)
	}
}

func TestLoadGroupRequiresZ(t *testing.T) {
	data := []byte(`[{"id":"9a1","type":"group"}]`)
	if _, err := LoadFlowsJSON(data); err == nil {
		t.Fatal("expected error for group missing 'z'")
	}
}

func TestLoadWireToNonExistentIDFails(t *testing.T) {
	// Spec §8 boundary behavior: "Wire to non-existent id -> load error."
	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"1","z":"100","type":"inject","wires":[["99"]]}
	]`)
	if _, err := LoadFlowsJSON(data); err == nil {
		t.Fatal("expected a load error for a wire targeting an id that is never defined")
	}
}

func TestLoadUnparsableIDFails(t *testing.T) {
	data := []byte(`[{"id":"not-hex","type":"tab"}]`)
	if _, err := LoadFlowsJSON(data); err == nil {
		t.Fatal("expected error for unparsable id")
	}
}

func TestSubflowInstancingClonesAndXORsChildIds(t *testing.T) {
	data := []byte(`[
		{"id":"100","type":"tab"},
		{"id":"5f1","type":"subflow","name":"double","env":[{"name":"BASE","type":"num","value":"1"}]},
		{"id":"5fc111","z":"5f1","type":"function","wires":[[]]},
		{"id":"151","z":"100","type":"subflow:5f1","name":"double A"},
		{"id":"152","z":"100","type":"subflow:5f1","name":"double B"}
	]`)

	rf, err := LoadFlowsJSON(data)
	if err != nil {
		t.Fatal(err)
	}

	// Two subflow definitions should have been cloned out of the one template, each
	// with a fresh id, plus the original flow ("tab") -- three flows total.
	var subflowDefs int
	sawChildIDs := map[string]bool{}
	for _, f := range rf.Flows {
		if f.TypeName != "subflow" {
			continue
		}
		subflowDefs++
		if len(f.Nodes) != 1 {
			t.Fatalf("expected 1 child node in cloned subflow, got %d", len(f.Nodes))
		}
		childID := f.Nodes[0].ID.String()
		if sawChildIDs[childID] {
			t.Errorf("subflow instances must not share child node ids (spec invariant: subflow isolation), got duplicate %s", childID)
		}
		sawChildIDs[childID] = true
	}
	if subflowDefs != 2 {
		t.Fatalf("expected 2 cloned subflow definitions, got %d", subflowDefs)
	}

	// The instance nodes themselves should keep their own original ids, just with a
	// rewritten "type" pointing at the clone.
	var mainFlow *FlowConfig
	for i := range rf.Flows {
		if rf.Flows[i].TypeName == "tab" {
			mainFlow = &rf.Flows[i]
		}
	}
	if mainFlow == nil {
		t.Fatal("expected the main tab flow to survive")
	}
	if len(mainFlow.Nodes) != 2 {
		t.Fatalf("expected 2 subflow instance nodes, got %d", len(mainFlow.Nodes))
	}
	for _, n := range mainFlow.Nodes {
		if n.Type[:8] != "subflow:" {
			t.Errorf("expected instance node type to be rewritten to subflow:<newid>, got %q", n.Type)
		}
	}
}

func TestSubflowEnvMergeInstancePrecedence(t *testing.T) {
	root := []RawElement{
		{"id": "5f1", "type": "subflow", "env": []interface{}{
			map[string]interface{}{"name": "BASE", "type": "num", "value": "1"},
			map[string]interface{}{"name": "ONLYDEF", "type": "str", "value": "def"},
		}},
		{"id": "151", "z": "100", "type": "subflow:5f1", "env": []interface{}{
			map[string]interface{}{"name": "BASE", "type": "num", "value": "99"},
		}},
	}
	if err := mergeSubflowEnv(root); err != nil {
		t.Fatal(err)
	}
	env := root[1]["env"].([]interface{})
	if len(env) != 2 {
		t.Fatalf("expected merged env to have 2 entries, got %d", len(env))
	}
	base := env[0].(map[string]interface{})
	if base["value"] != "99" {
		t.Errorf("instance entry should take precedence over subflow entry, got %v", base["value"])
	}
}
