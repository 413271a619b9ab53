package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOrchestrator is returned when a plan defines no orchestrator node.
	ErrNoOrchestrator = errors.New("graph: no orchestrator defined")
	// ErrMultipleOrchestrators is returned when more than one node claims the
	// orchestrator role.
	ErrMultipleOrchestrators = errors.New("graph: multiple orchestrators defined")
	// ErrDanglingEdge is returned when an edge references a node id that is
	// not part of the plan.
	ErrDanglingEdge = errors.New("graph: dangling edge reference")
	// ErrCycleDetected is returned when the edge set is not acyclic.
	ErrCycleDetected = errors.New("graph: cycle detected, graph is not acyclic")
	// ErrNodeNotFound is returned when addressing a node id absent from the plan.
	ErrNodeNotFound = errors.New("graph: node not found")
	// ErrEdgeNotFound is returned when addressing an edge id absent from the plan.
	ErrEdgeNotFound = errors.New("graph: edge not found")
)

// Validate checks the structural invariants a plan must satisfy before it is
// persisted. Checks short-circuit in a fixed order so the operator always
// sees the most actionable failure first: root cardinality, then referential
// integrity, then acyclicity. Validate is pure and performs no I/O, so it is
// safe to call speculatively before committing to a network round-trip.
func Validate(p *Plan) error {
	orchestrators := 0
	for i := range p.Nodes {
		if p.Nodes[i].isOrchestrator() {
			orchestrators++
		}
	}
	switch {
	case orchestrators == 0:
		return ErrNoOrchestrator
	case orchestrators > 1:
		return ErrMultipleOrchestrators
	}

	ids := p.NodeIDs()
	for _, e := range p.Edges {
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("edge %q source %q: %w", e.ID, e.Source, ErrDanglingEdge)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("edge %q target %q: %w", e.ID, e.Target, ErrDanglingEdge)
		}
	}

	return detectCycles(p)
}

// detectCycles runs a depth-first search from every unvisited node keeping a
// recursion stack; a back-edge into the stack is a cycle. Self-loops are
// 1-cycles and are caught the same way. O(V+E).
func detectCycles(p *Plan) error {
	adj := make(map[string][]string, len(p.Nodes))
	for _, e := range p.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := make(map[string]bool, len(p.Nodes))
	inStack := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		inStack[id] = true
		for _, next := range adj[id] {
			if inStack[next] {
				return fmt.Errorf("involving node %q: %w", next, ErrCycleDetected)
			}
			if !visited[next] {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		delete(inStack, id)
		return nil
	}

	for _, n := range p.Nodes {
		if !visited[n.ID] {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
