package types

// Manifest is the already-validated recipe description the topology engine
// consumes. Schema validation of raw manifests happens upstream.
type Manifest struct {
	Name  string         `json:"name"`
	Nodes []ManifestNode `json:"nodes"`
	Edges []ManifestEdge `json:"edges"`
}

type ManifestNode struct {
	ID     string   `json:"id"`
	Type   NodeKind `json:"type"`
	Config Data     `json:"config,omitempty"`
}

type ManifestEdge struct {
	Source    string `json:"source_node_id"`
	Target    string `json:"target_node_id"`
	Condition string `json:"condition,omitempty"`
}
