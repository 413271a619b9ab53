// Package remotetest runs an in-process fake of the orchestrator's ops API
// for tests: JWT-protected plan CRUD, the agent graph snapshot and the SSE
// push channel. It mirrors the surface internal/remote talks to so the auth
// sentinel and error taxonomy paths are testable without a live deployment.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/planview/internal/graph"
	"github.com/mohammad-safakhou/planview/internal/remote"
)

// Server is the fake orchestrator.
type Server struct {
	httpSrv *httptest.Server
	secret  []byte

	mu          sync.Mutex
	snapshot    remote.Snapshot
	snapshotErr int // non-zero forces this status on /ops/agents/graph
	plans       map[string]*graph.Plan
	executed    []string
	seq         int
	subscribers []chan string
}

// New starts the fake on an ephemeral port.
func New(secret string) *Server {
	s := &Server{
		secret: []byte(secret),
		plans:  make(map[string]*graph.Plan),
	}

	e := echo.New()
	e.HideBanner = true

	ops := e.Group("/ops", s.authMiddleware)
	ops.GET("/agents/graph", s.getGraph)
	ops.GET("/custom-plans", s.listPlans)
	ops.POST("/custom-plans", s.createPlan)
	ops.GET("/custom-plans/:id", s.getPlan)
	ops.PUT("/custom-plans/:id", s.updatePlan)
	ops.POST("/custom-plans/:id/execute", s.executePlan)
	ops.GET("/events", s.streamEvents)

	s.httpSrv = httptest.NewServer(e)
	return s
}

// URL is the base URL clients should dial.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the fake down.
func (s *Server) Close() { s.httpSrv.Close() }

// Token mints a valid bearer token for the fake.
func (s *Server) Token(subject string) string {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return tok
}

// SetSnapshot replaces the graph served to clients.
func (s *Server) SetSnapshot(snap remote.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// FailSnapshotWith makes the graph endpoint answer with the given status
// (0 restores normal behaviour).
func (s *Server) FailSnapshotWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotErr = status
}

// SeedPlan stores a plan directly, bypassing the API.
func (s *Server) SeedPlan(p *graph.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p.Clone()
}

// StoredPlan returns the server-side copy of a plan.
func (s *Server) StoredPlan(id string) *graph.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.plans[id]; ok {
		return p.Clone()
	}
	return nil
}

// Executed lists the plan ids execution was requested for.
func (s *Server) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// PublishNodeStatus pushes a custom_node_status frame to all subscribers.
func (s *Server) PublishNodeStatus(planID, nodeID string, status graph.Status, output, errMsg string) {
	payload := map[string]any{"plan_id": planID, "node_id": nodeID, "status": status}
	if output != "" {
		payload["output"] = output
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	s.publish("custom_node_status", payload)
}

// PublishPlanFinished pushes a custom_plan_finished frame to all subscribers.
func (s *Server) PublishPlanFinished(planID string, status graph.Status) {
	s.publish("custom_plan_finished", map[string]any{"plan_id": planID, "status": status})
}

// PublishRaw pushes an arbitrary frame; used to exercise the demux and
// malformed-payload paths.
func (s *Server) PublishRaw(event, data string) {
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		select {
		case sub <- frame:
		default:
		}
	}
}

func (s *Server) publish(event string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	s.PublishRaw(event, string(data))
}

func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Request().Header.Get("Authorization")
		if len(h) <= 7 || h[:7] != "Bearer " {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
		}
		parsed, err := jwt.Parse(h[7:], func(t *jwt.Token) (interface{}, error) { return s.secret, nil })
		if err != nil || !parsed.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return next(c)
	}
}

func (s *Server) getGraph(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != 0 {
		return echo.NewHTTPError(s.snapshotErr, "forced failure")
	}
	return c.JSON(http.StatusOK, s.snapshot)
}

func (s *Server) listPlans(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.PlanSummary, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, remote.PlanSummary{ID: p.ID, Name: p.Name, Status: p.Status, NodeCount: len(p.Nodes)})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createPlan(c echo.Context) error {
	var p graph.Plan
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = fmt.Sprintf("plan_%d_%04x", time.Now().UnixMilli(), s.seq)
	p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	s.plans[p.ID] = p.Clone()
	return c.JSON(http.StatusCreated, &p)
}

func (s *Server) getPlan(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[c.Param("id")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) updatePlan(c echo.Context) error {
	var p graph.Plan
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	p.ID = id
	p.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	s.plans[id] = p.Clone()
	return c.JSON(http.StatusOK, &p)
}

func (s *Server) executePlan(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	s.executed = append(s.executed, id)
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) streamEvents(c echo.Context) error {
	sub := make(chan string, 64)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		for i, existing := range s.subscribers {
			if existing == sub {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-sub:
			if _, err := resp.Write([]byte(frame)); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
