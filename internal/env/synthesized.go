package env

// SynthesizedNames is the set of env names spec §6 says every node additionally
// observes: NR_NODE_ID, NR_NODE_NAME, NR_NODE_PATH, NR_FLOW_ID, NR_FLOW_NAME,
// NR_SUBFLOW_ID, NR_SUBFLOW_NAME, NR_SUBFLOW_PATH, NR_GROUP_ID, NR_GROUP_NAME.
type SynthesizedNames struct {
	NodeID      string
	NodeName    string
	NodePath    string
	FlowID      string
	FlowName    string
	SubflowID   string
	SubflowName string
	SubflowPath string
	GroupID     string
	GroupName   string
}

// RawEntries converts non-empty fields into "str"-kind RawEntry values, suitable for
// seeding a node-scoped Store via Builder.LoadJSON.
func (n SynthesizedNames) RawEntries() []RawEntry {
	pairs := []struct{ name, value string }{
		{"NR_NODE_ID", n.NodeID},
		{"NR_NODE_NAME", n.NodeName},
		{"NR_NODE_PATH", n.NodePath},
		{"NR_FLOW_ID", n.FlowID},
		{"NR_FLOW_NAME", n.FlowName},
		{"NR_SUBFLOW_ID", n.SubflowID},
		{"NR_SUBFLOW_NAME", n.SubflowName},
		{"NR_SUBFLOW_PATH", n.SubflowPath},
		{"NR_GROUP_ID", n.GroupID},
		{"NR_GROUP_NAME", n.GroupName},
	}
	out := make([]RawEntry, 0, len(pairs))
	for _, p := range pairs {
		if p.value != "" {
			out = append(out, RawEntry{Name: p.name, Type: "str", Value: p.value})
		}
	}
	return out
}
