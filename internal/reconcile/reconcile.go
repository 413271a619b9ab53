// Package reconcile merges authoritative remote snapshots with locally owned
// layout state. Server topology and status on one side and operator drags on
// the other are kept in independently owned maps and merged only when a new
// plan model is produced, so "what the server says" and "what the user did"
// stay separable.
package reconcile

import (
	"log"

	"github.com/mohammad-safakhou/planview/internal/graph"
	"github.com/mohammad-safakhou/planview/internal/remote"
)

// Layout constants for the deterministic fallback when the server supplies
// no position: nodes are placed by dependency depth, matching the console's
// layered auto-layout.
const (
	layerSpacingX = 250
	layerSpacingY = 140
)

// Result is the outcome of applying one snapshot.
type Result struct {
	Plan *graph.Plan
	// LayoutReset is set when the node-identity fingerprint changed: a
	// different plan arrived, position overrides were discarded and the next
	// render must re-fit instead of preserving the camera.
	LayoutReset bool
	Fingerprint string
}

// Reconciler holds the position-override map and the previous node-identity
// fingerprint. It is owned by the session event loop and is not safe for
// concurrent use.
type Reconciler struct {
	overrides   map[string]graph.Position
	fingerprint string
	logger      *log.Logger
}

// New returns a Reconciler with an empty override map.
func New(logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(log.Writer(), "[RECONCILE] ", log.LstdFlags)
	}
	return &Reconciler{overrides: make(map[string]graph.Position), logger: logger}
}

// SetOverride records an operator drag. The override wins over the server
// position on every subsequent snapshot with the same fingerprint.
func (r *Reconciler) SetOverride(nodeID string, pos graph.Position) {
	r.overrides[nodeID] = pos
}

// Override reports the recorded position for a node, if any.
func (r *Reconciler) Override(nodeID string) (graph.Position, bool) {
	pos, ok := r.overrides[nodeID]
	return pos, ok
}

// Reset clears all layout state; used when the operator discards edits and a
// fresh snapshot is about to be fetched.
func (r *Reconciler) Reset() {
	r.overrides = make(map[string]graph.Position)
	r.fingerprint = ""
}

// Apply merges a snapshot into a fresh plan model. It never mutates a
// previously returned plan and is idempotent: applying the same snapshot
// twice produces an identical model.
func (r *Reconciler) Apply(snap remote.Snapshot) Result {
	next := &graph.Plan{
		Nodes: make([]graph.Node, 0, len(snap.Nodes)),
		Edges: make([]graph.Edge, 0, len(snap.Edges)),
	}

	for _, sn := range snap.Nodes {
		next.Nodes = append(next.Nodes, normalizeNode(sn))
	}
	for _, se := range snap.Edges {
		next.Edges = append(next.Edges, graph.Edge{ID: se.ID, Source: se.Source, Target: se.Target})
	}

	fp := next.Fingerprint()
	reset := false
	if fp != r.fingerprint {
		if r.fingerprint != "" {
			r.logger.Printf("graph identity changed (%d nodes), resetting layout", len(next.Nodes))
		}
		r.overrides = make(map[string]graph.Position)
		r.fingerprint = fp
		reset = true
	}

	depths := graph.NodeDepth(next)
	layerIndex := make(map[int]int)
	for i := range next.Nodes {
		n := &next.Nodes[i]
		if pos, ok := r.overrides[n.ID]; ok {
			n.Position = pos
			continue
		}
		if sp := snap.Nodes[i].Position; sp != nil {
			n.Position = *sp
			continue
		}
		d := depths[n.ID]
		n.Position = graph.Position{
			X: float64(layerSpacingX * d),
			Y: float64(layerSpacingY * layerIndex[d]),
		}
		layerIndex[d]++
	}

	return Result{Plan: next, LayoutReset: reset, Fingerprint: fp}
}

// normalizeNode applies the defensive defaults for older snapshot shapes:
// missing status becomes pending, and when no explicit node_type is present
// the coarse legacy kind is consulted ("bridge"/"bootstrap" marked the
// orchestrator, everything else a worker). The kind inference is a
// compatibility shim, never the primary source once the richer shape is
// available.
func normalizeNode(sn remote.SnapshotNode) graph.Node {
	n := graph.Node{
		ID:             sn.ID,
		Label:          sn.Data.Label,
		Type:           sn.Data.NodeType,
		Role:           sn.Data.Role,
		RoleDefinition: sn.Data.RoleDefinition,
		Model:          sn.Data.Model,
		Provider:       sn.Data.Provider,
		Prompt:         sn.Data.Prompt,
		Status:         sn.Data.Status,
		Output:         sn.Data.Output,
		Error:          sn.Data.Error,
	}
	if n.Status == "" {
		n.Status = graph.StatusPending
	}
	if n.Type == "" {
		switch sn.Kind {
		case "bridge", "bootstrap":
			n.Type = graph.NodeOrchestrator
		default:
			n.Type = graph.NodeWorker
		}
	}
	if n.Type == graph.NodeOrchestrator {
		n.IsOrchestrator = true
	}
	return n
}
