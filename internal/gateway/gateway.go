// Package gateway is the single write path to the remote plan store. Every
// save is validated locally first; a plan that fails its structural
// invariants never generates network traffic.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/planview/internal/graph"
	"github.com/mohammad-safakhou/planview/internal/telemetry"
)

var (
	// ErrNothingToSave rejects persisting an empty plan.
	ErrNothingToSave = errors.New("gateway: nothing to save")
	// ErrUnsaved rejects executing a plan that has no server-assigned id yet.
	ErrUnsaved = errors.New("gateway: save first")
)

// Store is the remote plan store surface the gateway writes through.
// *remote.Client satisfies it.
type Store interface {
	CreatePlan(ctx context.Context, p *graph.Plan) (string, error)
	UpdatePlan(ctx context.Context, p *graph.Plan) error
	Execute(ctx context.Context, planID string) error
}

// Gateway validates and serializes plans before handing them to the store.
type Gateway struct {
	store  Store
	logger *log.Logger
}

// New builds a gateway over the given store.
func New(store Store, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags)
	}
	return &Gateway{store: store, logger: logger}
}

// Save persists the plan and returns its server id. Validation failures are
// returned verbatim with zero network calls. Each node's depends_on list is
// derived from the incoming edge set at serialization time — the edges are
// the single source of truth and the two representations cannot diverge.
func (g *Gateway) Save(ctx context.Context, plan *graph.Plan) (string, error) {
	if plan == nil || len(plan.Nodes) == 0 {
		return "", ErrNothingToSave
	}
	if err := graph.Validate(plan); err != nil {
		telemetry.ValidationFailuresTotal.Inc()
		return "", err
	}

	wire := Serialize(plan)
	if wire.ID == "" {
		id, err := g.store.CreatePlan(ctx, wire)
		if err != nil {
			return "", fmt.Errorf("create plan: %w", err)
		}
		g.logger.Printf("plan created: %s (%s)", wire.Name, id)
		return id, nil
	}
	if err := g.store.UpdatePlan(ctx, wire); err != nil {
		return "", fmt.Errorf("update plan %s: %w", wire.ID, err)
	}
	g.logger.Printf("plan updated: %s (%s)", wire.Name, wire.ID)
	return wire.ID, nil
}

// Execute starts a previously saved plan. An unsaved plan is rejected
// locally before any network call.
func (g *Gateway) Execute(ctx context.Context, planID string) error {
	if planID == "" {
		return ErrUnsaved
	}
	if err := g.store.Execute(ctx, planID); err != nil {
		return fmt.Errorf("execute plan %s: %w", planID, err)
	}
	g.logger.Printf("plan execution started: %s", planID)
	return nil
}

// Serialize produces the wire copy of a plan with derived depends_on lists.
// The input plan is not modified.
func Serialize(plan *graph.Plan) *graph.Plan {
	wire := plan.Clone()
	deps := graph.DependsOnFromEdges(wire)
	for i := range wire.Nodes {
		wire.Nodes[i].DependsOn = deps[wire.Nodes[i].ID]
	}
	return wire
}
