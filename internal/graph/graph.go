package graph

import (
	"fmt"
	"sort"
	"strings"
)

// NodeType classifies the agent assigned to a node.
type NodeType string

const (
	NodeOrchestrator NodeType = "orchestrator"
	NodeWorker       NodeType = "worker"
	NodeReviewer     NodeType = "reviewer"
	NodeResearcher   NodeType = "researcher"
	NodeTool         NodeType = "tool"
	NodeHumanGate    NodeType = "human_gate"
)

// Status is the coarse execution state of a node.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusDoubt   Status = "doubt"
	StatusSkipped Status = "skipped"
)

// Position is a 2D layout hint. It is never semantically significant.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single agent task in the plan graph.
// Output and Error are set only by the orchestrator's event stream, never locally.
type Node struct {
	ID             string         `json:"id"`
	Label          string         `json:"label"`
	Type           NodeType       `json:"node_type"`
	Role           string         `json:"role,omitempty"`
	RoleDefinition string         `json:"role_definition,omitempty"`
	Model          string         `json:"model,omitempty"`    // "auto" lets the server choose
	Provider       string         `json:"provider,omitempty"` // "auto" lets the server choose
	Prompt         string         `json:"prompt,omitempty"`
	IsOrchestrator bool           `json:"is_orchestrator,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	Status         Status         `json:"status"`
	Output         string         `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	Position       Position       `json:"position"`
	Config         map[string]any `json:"config,omitempty"`
}

// Edge is a directed dependency between two nodes: Target depends on Source.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Plan is a directed acyclic graph of agent task nodes for one orchestration run.
// ID is empty until the remote store assigns one on first save.
type Plan struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Node returns a pointer to the node with the given id, or nil.
func (p *Plan) Node(id string) *Node {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i]
		}
	}
	return nil
}

// NodeIDs returns the set of node ids in the plan.
func (p *Plan) NodeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}

// AddNode appends a node. Duplicate ids are rejected.
func (p *Plan) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("graph: node id is required")
	}
	if p.Node(n.ID) != nil {
		return fmt.Errorf("graph: duplicate node id %q", n.ID)
	}
	p.Nodes = append(p.Nodes, n)
	return nil
}

// RemoveNode deletes the node and every edge incident to it in one step, so
// no dangling edge is ever observable.
func (p *Plan) RemoveNode(id string) error {
	idx := -1
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNodeNotFound
	}
	p.Nodes = append(p.Nodes[:idx], p.Nodes[idx+1:]...)
	kept := p.Edges[:0]
	for _, e := range p.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	p.Edges = kept
	return nil
}

// AddEdge wires a dependency edge. Both endpoints must exist and the pair
// must not already be connected.
func (p *Plan) AddEdge(e Edge) error {
	if p.Node(e.Source) == nil || p.Node(e.Target) == nil {
		return ErrDanglingEdge
	}
	for _, existing := range p.Edges {
		if existing.Source == e.Source && existing.Target == e.Target {
			return fmt.Errorf("graph: edge %s -> %s already exists", e.Source, e.Target)
		}
	}
	p.Edges = append(p.Edges, e)
	return nil
}

// RemoveEdge deletes the edge with the given id.
func (p *Plan) RemoveEdge(id string) error {
	for i := range p.Edges {
		if p.Edges[i].ID == id {
			p.Edges = append(p.Edges[:i], p.Edges[i+1:]...)
			return nil
		}
	}
	return ErrEdgeNotFound
}

// NodePatch carries the mutable fields a status event may update.
type NodePatch struct {
	Status Status
	Output *string
	Error  *string
}

// PatchNode updates one node's status/output/error. Unknown ids are a no-op
// and report false; a status event must never create a node.
func (p *Plan) PatchNode(id string, patch NodePatch) bool {
	n := p.Node(id)
	if n == nil {
		return false
	}
	if patch.Status != "" {
		n.Status = patch.Status
	}
	if patch.Output != nil {
		n.Output = *patch.Output
	}
	if patch.Error != nil {
		n.Error = *patch.Error
	}
	return true
}

// RunningCount reports how many nodes are currently executing.
func (p *Plan) RunningCount() int {
	count := 0
	for _, n := range p.Nodes {
		if n.Status == StatusRunning {
			count++
		}
	}
	return count
}

// Clone returns a deep copy. Reconciliation always produces a fresh plan so
// callers mid-read against the previous one are never surprised.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.Nodes = make([]Node, len(p.Nodes))
	for i, n := range p.Nodes {
		out.Nodes[i] = n
		if n.DependsOn != nil {
			out.Nodes[i].DependsOn = append([]string(nil), n.DependsOn...)
		}
		if n.Config != nil {
			cfg := make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				cfg[k] = v
			}
			out.Nodes[i].Config = cfg
		}
	}
	out.Edges = append([]Edge(nil), p.Edges...)
	return &out
}

// Fingerprint is the sorted, comma-joined node-id list. Two snapshots with
// the same fingerprint describe the same plan (possibly moved); a different
// fingerprint means a different plan arrived.
func (p *Plan) Fingerprint() string {
	ids := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// isOrchestrator reports whether the node plays the orchestrator role under
// any of the shapes the wire format has used over time.
func (n *Node) isOrchestrator() bool {
	return n.IsOrchestrator || n.Type == NodeOrchestrator || n.Role == string(NodeOrchestrator)
}
