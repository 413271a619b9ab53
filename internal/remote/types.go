package remote

import (
	"encoding/json"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

// Snapshot is one full, authoritative pull of the live agent graph: topology
// plus coarse per-node status. NodeCount is len(Nodes) on success and the -1
// sentinel when the caller was not authorized to know (distinct from "no
// plan exists").
type Snapshot struct {
	Nodes     []SnapshotNode `json:"nodes"`
	Edges     []SnapshotEdge `json:"edges"`
	NodeCount int            `json:"-"`
}

// SnapshotNode is the wire shape of one graph node. Kind is the coarse node
// kind older graph endpoints emit ("bridge"/"bootstrap" marked the
// orchestrator); richer payloads carry the explicit node_type inside Data.
type SnapshotNode struct {
	ID       string          `json:"id"`
	Kind     string          `json:"type,omitempty"`
	Data     SnapshotData    `json:"data"`
	Position *graph.Position `json:"position,omitempty"`
}

// SnapshotData holds the mutable node payload inside a snapshot node.
type SnapshotData struct {
	Label          string          `json:"label"`
	Status         graph.Status    `json:"status,omitempty"`
	NodeType       graph.NodeType  `json:"node_type,omitempty"`
	Role           string          `json:"role,omitempty"`
	RoleDefinition string          `json:"role_definition,omitempty"`
	Model          string          `json:"model,omitempty"`
	Provider       string          `json:"provider,omitempty"`
	Prompt         string          `json:"prompt,omitempty"`
	Output         string          `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	Extra          json.RawMessage `json:"plan,omitempty"`
}

// SnapshotEdge is the wire shape of one dependency edge.
type SnapshotEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// PlanSummary is the shape returned by the plan list endpoint.
type PlanSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`
	NodeCount int    `json:"node_count,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
