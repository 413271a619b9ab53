package graph

import (
	"errors"
	"strings"
	"testing"
)

func testPlan() *Plan {
	return &Plan{
		Name: "test",
		Nodes: []Node{
			{ID: "orch", Label: "Lead", Type: NodeOrchestrator, Status: StatusPending},
			{ID: "w1", Label: "Worker 1", Type: NodeWorker, Status: StatusPending},
			{ID: "w2", Label: "Worker 2", Type: NodeWorker, Status: StatusPending},
		},
		Edges: []Edge{
			{ID: "e-orch-w1", Source: "orch", Target: "w1"},
			{ID: "e-orch-w2", Source: "orch", Target: "w2"},
		},
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	if err := Validate(testPlan()); err != nil {
		t.Fatalf("expected plan to validate: %v", err)
	}
}

func TestValidateRequiresExactlyOneOrchestrator(t *testing.T) {
	p := testPlan()
	p.Nodes[0].Type = NodeWorker
	if err := Validate(p); !errors.Is(err, ErrNoOrchestrator) {
		t.Fatalf("expected ErrNoOrchestrator, got %v", err)
	}

	p = testPlan()
	p.Nodes[1].Type = NodeOrchestrator
	if err := Validate(p); !errors.Is(err, ErrMultipleOrchestrators) {
		t.Fatalf("expected ErrMultipleOrchestrators, got %v", err)
	}
}

func TestValidateLegacyOrchestratorFlag(t *testing.T) {
	p := testPlan()
	p.Nodes[0].Type = NodeWorker
	p.Nodes[0].IsOrchestrator = true
	if err := Validate(p); err != nil {
		t.Fatalf("is_orchestrator flag should satisfy root cardinality: %v", err)
	}
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	p := testPlan()
	p.Edges = append(p.Edges, Edge{ID: "e-bad", Source: "w1", Target: "ghost"})
	err := Validate(p)
	if !errors.Is(err, ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error should name the missing node: %v", err)
	}
}

func TestValidateDanglingEdgeBeatsAcyclicity(t *testing.T) {
	// Both violations present; referential integrity is reported first.
	p := testPlan()
	p.Edges = append(p.Edges,
		Edge{ID: "e-bad", Source: "ghost", Target: "w1"},
		Edge{ID: "e-back", Source: "w1", Target: "orch"},
	)
	if err := Validate(p); !errors.Is(err, ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge first, got %v", err)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	p := testPlan()
	p.Edges = append(p.Edges, Edge{ID: "e-back", Source: "w1", Target: "orch"})
	if err := Validate(p); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidateDetectsSelfLoop(t *testing.T) {
	p := testPlan()
	p.Edges = append(p.Edges, Edge{ID: "e-self", Source: "w1", Target: "w1"})
	if err := Validate(p); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("a self-loop is a 1-cycle, got %v", err)
	}
}

func TestRemoveNodeDropsIncidentEdges(t *testing.T) {
	p := testPlan()
	if err := p.RemoveNode("w1"); err != nil {
		t.Fatalf("remove node: %v", err)
	}
	if p.Node("w1") != nil {
		t.Fatalf("node w1 should be gone")
	}
	for _, e := range p.Edges {
		if e.Source == "w1" || e.Target == "w1" {
			t.Fatalf("edge %s still references deleted node", e.ID)
		}
	}
	if len(p.Edges) != 1 {
		t.Fatalf("expected 1 surviving edge, got %d", len(p.Edges))
	}
}

func TestAddEdgeRejectsDanglingAndDuplicate(t *testing.T) {
	p := testPlan()
	if err := p.AddEdge(Edge{ID: "x", Source: "orch", Target: "ghost"}); !errors.Is(err, ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge, got %v", err)
	}
	if err := p.AddEdge(Edge{ID: "dup", Source: "orch", Target: "w1"}); err == nil {
		t.Fatalf("expected duplicate edge to be rejected")
	}
}

func TestPatchNodeUnknownIDIsNoop(t *testing.T) {
	p := testPlan()
	if p.PatchNode("ghost", NodePatch{Status: StatusRunning}) {
		t.Fatalf("patching an unknown node must be a no-op")
	}
	out := "hello"
	if !p.PatchNode("w1", NodePatch{Status: StatusDone, Output: &out}) {
		t.Fatalf("patching a known node should succeed")
	}
	n := p.Node("w1")
	if n.Status != StatusDone || n.Output != "hello" {
		t.Fatalf("patch not applied: %+v", n)
	}
}

func TestFingerprintIsOrderInsensitive(t *testing.T) {
	p := testPlan()
	fp := p.Fingerprint()
	p.Nodes[0], p.Nodes[2] = p.Nodes[2], p.Nodes[0]
	if p.Fingerprint() != fp {
		t.Fatalf("fingerprint must not depend on node order")
	}
	if fp != "orch,w1,w2" {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := testPlan()
	p.Nodes[1].DependsOn = []string{"orch"}
	clone := p.Clone()
	clone.Nodes[1].Status = StatusRunning
	clone.Nodes[1].DependsOn[0] = "mutated"
	clone.Edges[0].Target = "mutated"
	if p.Nodes[1].Status != StatusPending || p.Nodes[1].DependsOn[0] != "orch" || p.Edges[0].Target != "w1" {
		t.Fatalf("clone shares memory with the original")
	}
}

func TestExecutionLayers(t *testing.T) {
	p := testPlan()
	p.Nodes = append(p.Nodes, Node{ID: "final", Label: "Final", Type: NodeWorker})
	p.Edges = append(p.Edges,
		Edge{ID: "e-w1-final", Source: "w1", Target: "final"},
		Edge{ID: "e-w2-final", Source: "w2", Target: "final"},
	)
	layers := ExecutionLayers(p)
	if len(layers) != 3 {
		t.Fatalf("expected 3 layers, got %d: %#v", len(layers), layers)
	}
	if layers[0][0] != "orch" || len(layers[0]) != 1 {
		t.Fatalf("layer 0 should be the orchestrator: %#v", layers[0])
	}
	if len(layers[1]) != 2 {
		t.Fatalf("layer 1 should hold both workers: %#v", layers[1])
	}
	if layers[2][0] != "final" {
		t.Fatalf("layer 2 should be the join node: %#v", layers[2])
	}
}

func TestExecutionLayersTerminatesOnCycle(t *testing.T) {
	p := testPlan()
	p.Edges = append(p.Edges, Edge{ID: "e-back", Source: "w1", Target: "orch"})
	layers := ExecutionLayers(p)
	total := 0
	for _, l := range layers {
		total += len(l)
	}
	if total != len(p.Nodes) {
		t.Fatalf("every node must be placed even with a cycle, got %d/%d", total, len(p.Nodes))
	}
}

func TestDependsOnFromEdges(t *testing.T) {
	deps := DependsOnFromEdges(testPlan())
	if len(deps["w1"]) != 1 || deps["w1"][0] != "orch" {
		t.Fatalf("w1 should depend on orch: %#v", deps["w1"])
	}
	if len(deps["orch"]) != 0 {
		t.Fatalf("orch should have no dependencies: %#v", deps["orch"])
	}
}

func TestValidatePlanDocumentSchema(t *testing.T) {
	ok := []byte(`{"name":"p","nodes":[{"id":"a","label":"A","node_type":"orchestrator"}],"edges":[]}`)
	if err := ValidatePlanDocument(ok); err != nil {
		t.Fatalf("expected document to pass schema: %v", err)
	}
	bad := []byte(`{"nodes":[{"label":"missing id"}],"edges":[]}`)
	if err := ValidatePlanDocument(bad); err == nil {
		t.Fatalf("expected schema validation failure")
	}
	if err := ValidatePlanDocument([]byte(`{"name":`)); err == nil {
		t.Fatalf("expected JSON parse failure")
	}
}
