package live

import (
	"github.com/mohammad-safakhou/planview/internal/graph"
)

// DropReason explains why an event produced no change.
type DropReason string

const (
	DropOtherPlan   DropReason = "other_plan"
	DropUnknownNode DropReason = "unknown_node"
	DropNoPlan      DropReason = "no_plan"
)

// Outcome reports what applying one event did.
type Outcome struct {
	Applied bool
	Dropped DropReason
	// Finished is set by a plan_finished event; TerminalStatus carries the
	// run's final status (done vs partial failure) for notification purposes.
	Finished       bool
	TerminalStatus graph.Status
}

// Apply is a pure reducer over (event, plan): it returns the next plan and
// an outcome, never mutating the input. Events addressed to another plan id
// are dropped without side effects — only one plan is live in the view at a
// time. A node_status for an unknown node is a no-op; status events never
// create nodes.
func Apply(plan *graph.Plan, ev Event) (*graph.Plan, Outcome) {
	if plan == nil {
		return nil, Outcome{Dropped: DropNoPlan}
	}
	if ev.PlanID != plan.ID {
		return plan, Outcome{Dropped: DropOtherPlan}
	}

	switch ev.Kind {
	case KindPlanFinished:
		return plan, Outcome{Applied: true, Finished: true, TerminalStatus: ev.Status}
	case KindNodeStatus:
		if plan.Node(ev.NodeID) == nil {
			return plan, Outcome{Dropped: DropUnknownNode}
		}
		next := plan.Clone()
		next.PatchNode(ev.NodeID, graph.NodePatch{Status: ev.Status, Output: ev.Output, Error: ev.Error})
		return next, Outcome{Applied: true}
	default:
		return plan, Outcome{}
	}
}
