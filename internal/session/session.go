// Package session is the engine behind one operator console view. A Session
// owns the current plan model exclusively: every read and mutation runs on a
// single event-loop goroutine fed by a command channel, so snapshot
// reconciliation, live status events and operator edits are serialized
// without locks on the model itself.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammad-safakhou/planview/internal/gateway"
	"github.com/mohammad-safakhou/planview/internal/graph"
	"github.com/mohammad-safakhou/planview/internal/live"
	"github.com/mohammad-safakhou/planview/internal/poll"
	"github.com/mohammad-safakhou/planview/internal/reconcile"
	"github.com/mohammad-safakhou/planview/internal/remote"
	"github.com/mohammad-safakhou/planview/internal/telemetry"
)

// Remote is the orchestrator surface a session needs. *remote.Client
// satisfies it; tests substitute an in-process fake.
type Remote interface {
	Graph(ctx context.Context) (remote.Snapshot, error)
	Plan(ctx context.Context, id string) (*graph.Plan, error)
	CreatePlan(ctx context.Context, p *graph.Plan) (string, error)
	UpdatePlan(ctx context.Context, p *graph.Plan) error
	Execute(ctx context.Context, planID string) error
	Events(ctx context.Context) (io.ReadCloser, error)
}

// Notice is a user-facing message surfaced by the engine (transient fetch
// failures, run completion). The view layer decides how to render it.
type Notice struct {
	Level   string // "info" or "error"
	Message string
}

// EventSource feeds decoded push events into the session. live.SSESource and
// live.StreamSource both satisfy it.
type EventSource interface {
	Run(ctx context.Context, out chan<- live.Event) error
}

// Options tune a session. Zero values pick the defaults.
type Options struct {
	FastInterval time.Duration
	SlowInterval time.Duration
	Reconnect    time.Duration
	Logger       *log.Logger
	// Events overrides the push transport; nil subscribes to the remote's SSE
	// endpoint.
	Events EventSource
	// Notify receives notices from the event loop. It must not block and must
	// not call back into the session.
	Notify func(Notice)
}

type snapshotResult struct {
	snap remote.Snapshot
	err  error
}

// Session glues the reconciler, the live event source, the poll controller
// and the persistence gateway together around one plan model.
type Session struct {
	remote Remote
	gw     *gateway.Gateway
	rec    *reconcile.Reconciler
	poller *poll.Controller
	source EventSource
	logger *log.Logger
	notify func(Notice)

	cmds      chan func()
	events    chan live.Event
	snapshots chan snapshotResult

	// anyRunning is read by the poll goroutine between ticks; everything else
	// below is owned by the event loop.
	anyRunning atomic.Bool

	plan    *graph.Plan
	preEdit *graph.Plan
	planID  string
	// overlay holds the status patches received from live events since the
	// last graph identity change. Snapshots carry only a baseline status, so
	// the overlay is re-applied on top of each one: a status an event already
	// advanced never regresses to the snapshot's older value.
	overlay   map[string]graph.NodePatch
	selected  string
	viewport  Viewport
	editMode  bool
	executing bool
	nodeCount int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a session over the given remote. Call Start before using it.
func New(rm Remote, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(Notice) {}
	}
	source := opts.Events
	if source == nil {
		source = live.NewSSESource(rm, logger, opts.Reconnect)
	}
	s := &Session{
		remote:    rm,
		gw:        gateway.New(rm, logger),
		rec:       reconcile.New(logger),
		source:    source,
		logger:    logger,
		notify:    notify,
		cmds:      make(chan func()),
		events:    make(chan live.Event, 64),
		snapshots: make(chan snapshotResult),
		overlay:   make(map[string]graph.NodePatch),
		viewport:  Viewport{Zoom: 1},
	}
	s.poller = poll.New(opts.FastInterval, opts.SlowInterval, s.fetchSnapshot, s.anyRunning.Load, logger)
	return s
}

// Start launches the event loop, the poller and the push-channel consumer.
// The session runs until Close or until ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	go func() {
		defer s.wg.Done()
		_ = s.poller.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		_ = s.source.Run(s.ctx, s.events)
	}()
}

// Close tears the session down: the poll timer, the push subscription and the
// event loop all stop before Close returns.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// loop is the single goroutine with write access to the plan model.
func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.cmds:
			fn()
		case res := <-s.snapshots:
			s.applySnapshot(res)
		case ev := <-s.events:
			s.applyEvent(ev)
		}
	}
}

// do runs fn on the event loop and waits for it. After shutdown it is a no-op
// so late UI callbacks never hang.
func (s *Session) do(fn func()) {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
		<-done
	case <-s.ctx.Done():
	}
}

// fetchSnapshot runs on the poll goroutine: the network call happens off the
// event loop, only the result crosses into it.
func (s *Session) fetchSnapshot(ctx context.Context) {
	snap, err := s.remote.Graph(ctx)
	select {
	case s.snapshots <- snapshotResult{snap: snap, err: err}:
	case <-ctx.Done():
	}
}

func (s *Session) applySnapshot(res snapshotResult) {
	// A snapshot that raced with entering edit mode must not clobber the
	// operator's draft.
	if s.editMode {
		return
	}
	if res.err != nil {
		if errors.Is(res.err, remote.ErrUnauthorized) {
			telemetry.SnapshotsTotal.WithLabelValues("unauthorized").Inc()
			s.nodeCount = remote.UnknownNodeCount
			s.notify(Notice{Level: "error", Message: "not authorized to read the agent graph"})
			return
		}
		telemetry.SnapshotsTotal.WithLabelValues("error").Inc()
		s.logger.Printf("snapshot fetch failed: %v", res.err)
		s.notify(Notice{Level: "error", Message: "snapshot fetch failed: " + res.err.Error()})
		return
	}
	telemetry.SnapshotsTotal.WithLabelValues("ok").Inc()

	result := s.rec.Apply(res.snap)
	result.Plan.ID = s.planID
	if s.plan != nil {
		result.Plan.Name = s.plan.Name
	}
	if result.LayoutReset {
		// Different plan: event history from the previous one no longer applies.
		s.overlay = make(map[string]graph.NodePatch)
		s.logger.Printf("layout reset: %d nodes", len(result.Plan.Nodes))
	}
	for id, patch := range s.overlay {
		result.Plan.PatchNode(id, patch)
	}
	s.plan = result.Plan
	s.nodeCount = res.snap.NodeCount
	if s.selected != "" && s.plan.Node(s.selected) == nil {
		s.selected = ""
	}
	s.anyRunning.Store(s.plan.RunningCount() > 0)
}

func (s *Session) applyEvent(ev live.Event) {
	// Live snapshots carry no plan id. When no plan is tracked yet, the first
	// event naming a node we can see identifies the run in progress.
	if s.planID == "" && s.plan != nil && ev.NodeID != "" && s.plan.Node(ev.NodeID) != nil {
		s.planID = ev.PlanID
		s.plan.ID = ev.PlanID
		s.logger.Printf("tracking running plan %s", ev.PlanID)
	}

	next, outcome := live.Apply(s.plan, ev)
	if !outcome.Applied {
		if outcome.Dropped != "" {
			telemetry.EventsDroppedTotal.WithLabelValues(string(outcome.Dropped)).Inc()
		}
		return
	}
	telemetry.EventsAppliedTotal.Inc()
	if ev.Kind == live.KindNodeStatus {
		s.overlay[ev.NodeID] = graph.NodePatch{Status: ev.Status, Output: ev.Output, Error: ev.Error}
	}
	s.plan = next
	s.anyRunning.Store(s.plan.RunningCount() > 0)
	if outcome.Finished {
		s.executing = false
		s.anyRunning.Store(false)
		// The run is over; a re-execution of the same plan starts from the
		// snapshot baseline, not from the previous run's patches.
		s.overlay = make(map[string]graph.NodePatch)
		s.notify(Notice{Level: "info", Message: "plan finished: " + string(outcome.TerminalStatus)})
	}
}

// CurrentPlan returns a deep copy of the current plan, or nil before the
// first snapshot. Callers can read it freely without racing the loop.
func (s *Session) CurrentPlan() *graph.Plan {
	var p *graph.Plan
	s.do(func() { p = s.plan.Clone() })
	return p
}

// NodeCount reports the node count of the last snapshot; -1 means the last
// fetch was rejected as unauthorized and the true count is unknown.
func (s *Session) NodeCount() int {
	var n int
	s.do(func() { n = s.nodeCount })
	return n
}

// SelectNode marks a node as selected; an empty id clears the selection.
func (s *Session) SelectNode(id string) error {
	var err error
	s.do(func() {
		if id != "" && (s.plan == nil || s.plan.Node(id) == nil) {
			err = graph.ErrNodeNotFound
			return
		}
		s.selected = id
	})
	return err
}

// SelectedNode returns the currently selected node id, or "".
func (s *Session) SelectedNode() string {
	var id string
	s.do(func() { id = s.selected })
	return id
}

// Executing reports whether a run started from this session is still going.
func (s *Session) Executing() bool {
	var v bool
	s.do(func() { v = s.executing })
	return v
}

// InEditMode reports whether the session is in edit mode.
func (s *Session) InEditMode() bool {
	var v bool
	s.do(func() { v = s.editMode })
	return v
}
