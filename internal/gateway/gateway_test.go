package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

type recordingStore struct {
	created  *graph.Plan
	updated  *graph.Plan
	executed string
	calls    int
	createID string
	err      error
}

func (s *recordingStore) CreatePlan(_ context.Context, p *graph.Plan) (string, error) {
	s.calls++
	s.created = p
	if s.err != nil {
		return "", s.err
	}
	return s.createID, nil
}

func (s *recordingStore) UpdatePlan(_ context.Context, p *graph.Plan) error {
	s.calls++
	s.updated = p
	return s.err
}

func (s *recordingStore) Execute(_ context.Context, planID string) error {
	s.calls++
	s.executed = planID
	return s.err
}

func editablePlan() *graph.Plan {
	return &graph.Plan{
		Name: "draft",
		Nodes: []graph.Node{
			{ID: "orch", Label: "Lead", Type: graph.NodeOrchestrator},
			{ID: "w1", Label: "Worker", Type: graph.NodeWorker},
		},
		Edges: []graph.Edge{{ID: "e1", Source: "orch", Target: "w1"}},
	}
}

func TestSaveRejectsEmptyPlanWithoutNetworkCall(t *testing.T) {
	store := &recordingStore{}
	g := New(store, nil)
	if _, err := g.Save(context.Background(), &graph.Plan{Name: "empty"}); !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("expected ErrNothingToSave, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("an empty plan must never reach the network")
	}
}

func TestSaveReturnsValidationErrorVerbatim(t *testing.T) {
	store := &recordingStore{}
	g := New(store, nil)
	p := editablePlan()
	p.Edges = append(p.Edges, graph.Edge{ID: "e-back", Source: "w1", Target: "orch"})
	if _, err := g.Save(context.Background(), p); !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("expected the validator's cycle error, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("validation failure must block the network call")
	}
}

func TestSaveCreatesWhenPlanHasNoID(t *testing.T) {
	store := &recordingStore{createID: "plan_1700000000000_ab12"}
	g := New(store, nil)
	id, err := g.Save(context.Background(), editablePlan())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != "plan_1700000000000_ab12" {
		t.Fatalf("gateway must adopt the server-assigned id, got %q", id)
	}
	if store.created == nil || store.updated != nil {
		t.Fatalf("a plan without an id must be created, not updated")
	}
}

func TestSaveUpdatesWhenPlanHasID(t *testing.T) {
	store := &recordingStore{}
	g := New(store, nil)
	p := editablePlan()
	p.ID = "plan_existing"
	id, err := g.Save(context.Background(), p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != "plan_existing" || store.updated == nil || store.created != nil {
		t.Fatalf("a plan with an id must be updated in place")
	}
}

func TestSaveDerivesDependsOnFromEdges(t *testing.T) {
	store := &recordingStore{createID: "plan_x"}
	g := New(store, nil)
	p := editablePlan()
	// Hand-maintained depends_on must be overwritten by the derived view.
	p.Nodes[1].DependsOn = []string{"stale", "wrong"}
	if _, err := g.Save(context.Background(), p); err != nil {
		t.Fatalf("save: %v", err)
	}
	sent := store.created.Node("w1")
	if len(sent.DependsOn) != 1 || sent.DependsOn[0] != "orch" {
		t.Fatalf("depends_on must be derived from edges, got %#v", sent.DependsOn)
	}
	if len(store.created.Node("orch").DependsOn) != 0 {
		t.Fatalf("root node must have no dependencies")
	}
	// The caller's plan is untouched.
	if p.Nodes[1].DependsOn[0] != "stale" {
		t.Fatalf("Save must serialize a copy, not mutate the caller's plan")
	}
}

func TestExecuteRequiresSavedPlan(t *testing.T) {
	store := &recordingStore{}
	g := New(store, nil)
	if err := g.Execute(context.Background(), ""); !errors.Is(err, ErrUnsaved) {
		t.Fatalf("expected ErrUnsaved, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("executing an unsaved plan must issue zero network calls")
	}
	if err := g.Execute(context.Background(), "plan_x"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if store.executed != "plan_x" {
		t.Fatalf("expected execute call for plan_x")
	}
}
