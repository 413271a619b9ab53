package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

// ErrNotEditing rejects structural mutations outside edit mode.
var ErrNotEditing = errors.New("session: not in edit mode")

// Viewport is the camera transform the view renders through. CreateNodeAt
// inverse-projects pointer coordinates through it into graph space.
type Viewport struct {
	OffsetX float64
	OffsetY float64
	Zoom    float64
}

// Pointer is a pointer gesture as reported by the view. OnCanvas is false
// when the gesture landed on UI chrome rather than the canvas.
type Pointer struct {
	X        float64
	Y        float64
	OnCanvas bool
}

// SetViewport records the current camera transform.
func (s *Session) SetViewport(v Viewport) {
	if v.Zoom <= 0 {
		v.Zoom = 1
	}
	s.do(func() { s.viewport = v })
}

// EnterEdit switches to edit mode: polling is suspended so no snapshot can
// clobber the draft, and an empty graph is seeded with a single orchestrator
// node so every draft starts structurally valid.
func (s *Session) EnterEdit() {
	var suspend bool
	s.do(func() {
		if s.editMode {
			return
		}
		s.editMode = true
		suspend = true
		s.preEdit = s.plan.Clone()
		if s.plan == nil {
			s.plan = &graph.Plan{Name: "Custom Plan"}
		}
		if len(s.plan.Nodes) == 0 {
			s.plan.Nodes = append(s.plan.Nodes, seedOrchestrator())
		}
	})
	if suspend {
		s.poller.Suspend()
	}
}

// CancelEdit discards every local edit, restores the pre-edit model and
// resumes polling, which fetches a fresh snapshot immediately.
func (s *Session) CancelEdit() {
	var resume bool
	s.do(func() {
		if !s.editMode {
			return
		}
		s.editMode = false
		resume = true
		s.plan = s.preEdit
		s.preEdit = nil
		s.rec.Reset()
		s.overlay = make(map[string]graph.NodePatch)
		if s.selected != "" && (s.plan == nil || s.plan.Node(s.selected) == nil) {
			s.selected = ""
		}
	})
	if resume {
		s.poller.Resume()
	}
}

// CreateNodeAt adds a worker node at the graph-space point under the pointer
// and returns its id. A gesture off the canvas is a no-op: there is no
// defined location for the node, so none is created.
func (s *Session) CreateNodeAt(p Pointer) (string, error) {
	var id string
	var err error
	s.do(func() {
		if !s.editMode {
			err = ErrNotEditing
			return
		}
		if !p.OnCanvas {
			return
		}
		n := graph.Node{
			ID:       "node_" + uuid.NewString(),
			Label:    fmt.Sprintf("Task %d", len(s.plan.Nodes)),
			Type:     graph.NodeWorker,
			Model:    "auto",
			Provider: "auto",
			Status:   graph.StatusPending,
			Position: s.viewport.unproject(p),
		}
		if err = s.plan.AddNode(n); err != nil {
			return
		}
		id = n.ID
		s.selected = id
	})
	return id, err
}

// MoveNode records an operator drag: the node moves and the new position is
// remembered as an override that survives subsequent snapshots. Drags are
// allowed outside edit mode too, layout is client-authoritative.
func (s *Session) MoveNode(id string, pos graph.Position) error {
	var err error
	s.do(func() {
		if s.plan == nil || s.plan.Node(id) == nil {
			err = graph.ErrNodeNotFound
			return
		}
		s.plan.Node(id).Position = pos
		s.rec.SetOverride(id, pos)
	})
	return err
}

// Connect adds a dependency edge from source to target and returns its id.
func (s *Session) Connect(source, target string) (string, error) {
	var id string
	var err error
	s.do(func() {
		if !s.editMode {
			err = ErrNotEditing
			return
		}
		e := graph.Edge{ID: "edge_" + uuid.NewString(), Source: source, Target: target}
		if err = s.plan.AddEdge(e); err != nil {
			return
		}
		id = e.ID
	})
	return id, err
}

// DeleteNode removes a node and its incident edges.
func (s *Session) DeleteNode(id string) error {
	var err error
	s.do(func() {
		if !s.editMode {
			err = ErrNotEditing
			return
		}
		if err = s.plan.RemoveNode(id); err != nil {
			return
		}
		if s.selected == id {
			s.selected = ""
		}
	})
	return err
}

// DeleteEdge removes a single edge.
func (s *Session) DeleteEdge(id string) error {
	var err error
	s.do(func() {
		if !s.editMode {
			err = ErrNotEditing
			return
		}
		err = s.plan.RemoveEdge(id)
	})
	return err
}

// UpdateNode applies the editable fields of src to the node with the same id.
// Status, output and error are owned by the orchestrator and left untouched.
func (s *Session) UpdateNode(src graph.Node) error {
	var err error
	s.do(func() {
		if !s.editMode {
			err = ErrNotEditing
			return
		}
		n := s.plan.Node(src.ID)
		if n == nil {
			err = graph.ErrNodeNotFound
			return
		}
		n.Label = src.Label
		n.Prompt = src.Prompt
		n.Role = src.Role
		n.RoleDefinition = src.RoleDefinition
		n.Model = src.Model
		n.Provider = src.Provider
		n.Type = src.Type
		n.IsOrchestrator = src.IsOrchestrator
	})
	return err
}

// Save validates and persists the current draft, adopting the server id on
// first save. Validation failures surface verbatim and nothing is sent. The
// store call runs off the event loop: the draft is snapshotted on the loop,
// the network round-trip happens on the caller's goroutine, and only the
// returned id re-enters the loop, so edits, reads and live events keep
// flowing while a save is in flight.
func (s *Session) Save(ctx context.Context) (string, error) {
	var draft *graph.Plan
	s.do(func() { draft = s.plan.Clone() })

	id, err := s.gw.Save(ctx, draft)
	if err != nil {
		return "", err
	}
	s.do(func() {
		s.planID = id
		if s.plan != nil && (s.plan.ID == "" || s.plan.ID == id) {
			s.plan.ID = id
		}
	})
	return id, nil
}

// Execute starts the saved plan. On success the session leaves edit mode,
// resumes polling and tracks the run until a plan_finished event arrives.
// Like Save, the network call happens off the event loop.
func (s *Session) Execute(ctx context.Context) error {
	var planID string
	s.do(func() {
		if s.plan != nil {
			planID = s.plan.ID
		}
	})

	if err := s.gw.Execute(ctx, planID); err != nil {
		return err
	}
	var resume bool
	s.do(func() {
		s.executing = true
		s.anyRunning.Store(true)
		if s.editMode {
			s.editMode = false
			s.preEdit = nil
			resume = true
		}
	})
	if resume {
		s.poller.Resume()
	}
	return nil
}

// LoadPlan fetches a stored plan and opens it as an edit-mode draft.
func (s *Session) LoadPlan(ctx context.Context, id string) error {
	p, err := s.remote.Plan(ctx, id)
	if err != nil {
		return err
	}
	var suspend bool
	s.do(func() {
		if !s.editMode {
			suspend = true
			s.preEdit = s.plan.Clone()
		}
		s.editMode = true
		s.plan = p
		s.planID = p.ID
		s.selected = ""
		s.rec.Reset()
		s.overlay = make(map[string]graph.NodePatch)
	})
	if suspend {
		s.poller.Suspend()
	}
	return nil
}

func seedOrchestrator() graph.Node {
	return graph.Node{
		ID:             "node_" + uuid.NewString(),
		Label:          "Orchestrator",
		Type:           graph.NodeOrchestrator,
		Model:          "auto",
		Provider:       "auto",
		Status:         graph.StatusPending,
		IsOrchestrator: true,
	}
}

func (v Viewport) unproject(p Pointer) graph.Position {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return graph.Position{
		X: (p.X - v.OffsetX) / zoom,
		Y: (p.Y - v.OffsetY) / zoom,
	}
}
