// Package live consumes the orchestrator's push channel and applies per-node
// status deltas to the current plan. The applier is a pure reducer; the
// transport sources (SSE, Redis Streams) only decode frames and forward
// events in arrival order.
package live

import (
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

// Wire event names emitted by the orchestrator. Every other name on the
// channel belongs to another subsystem and is ignored here.
const (
	EventNodeStatus   = "custom_node_status"
	EventPlanFinished = "custom_plan_finished"
)

// Kind discriminates the two event shapes this engine consumes.
type Kind string

const (
	KindNodeStatus   Kind = "node_status"
	KindPlanFinished Kind = "plan_finished"
)

// Event is one decoded push notification.
type Event struct {
	Kind   Kind
	PlanID string
	NodeID string
	Status graph.Status
	Output *string
	Error  *string
}

type nodeStatusPayload struct {
	PlanID string  `json:"plan_id"`
	NodeID string  `json:"node_id"`
	Status string  `json:"status"`
	Output *string `json:"output,omitempty"`
	Error  *string `json:"error,omitempty"`
}

type planFinishedPayload struct {
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

// ParseFrame decodes one push frame. Unknown event names return ok=false
// without error; malformed payloads for known names return an error so the
// caller can count and drop them. Each frame is independent: a bad one never
// stalls the next.
func ParseFrame(name string, data []byte) (Event, bool, error) {
	switch name {
	case EventNodeStatus:
		var p nodeStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false, fmt.Errorf("node_status payload: %w", err)
		}
		if p.PlanID == "" || p.NodeID == "" {
			return Event{}, false, fmt.Errorf("node_status payload missing plan_id/node_id")
		}
		return Event{
			Kind:   KindNodeStatus,
			PlanID: p.PlanID,
			NodeID: p.NodeID,
			Status: graph.Status(p.Status),
			Output: p.Output,
			Error:  p.Error,
		}, true, nil
	case EventPlanFinished:
		var p planFinishedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false, fmt.Errorf("plan_finished payload: %w", err)
		}
		if p.PlanID == "" {
			return Event{}, false, fmt.Errorf("plan_finished payload missing plan_id")
		}
		return Event{Kind: KindPlanFinished, PlanID: p.PlanID, Status: graph.Status(p.Status)}, true, nil
	default:
		return Event{}, false, nil
	}
}
