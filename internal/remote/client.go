package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

// Client talks to the remote orchestrator's ops API. All calls are scoped by
// the caller's context; errors are mapped into the taxonomy in errors.go and
// never escape as raw transport exceptions.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a client for the given base URL (e.g. "http://host:8420")
// and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Graph fetches the live agent graph snapshot. A 401/403 returns
// ErrUnauthorized with a snapshot carrying the UnknownNodeCount sentinel so
// callers can distinguish "not authorized" from "no plan exists".
func (c *Client) Graph(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := c.doJSON(ctx, http.MethodGet, "/ops/agents/graph", nil, &snap); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			snap.NodeCount = UnknownNodeCount
		}
		return snap, err
	}
	snap.NodeCount = len(snap.Nodes)
	return snap, nil
}

// Plan loads a stored plan by id, validating the document against the plan
// schema before trusting it.
func (c *Client) Plan(ctx context.Context, id string) (*graph.Plan, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "/ops/custom-plans/"+id, nil)
	if err != nil {
		return nil, err
	}
	p, err := graph.ParsePlanDocument(raw)
	if err != nil {
		return nil, &TransientError{Op: "get plan", Err: err}
	}
	return p, nil
}

// ListPlans returns summaries of all stored plans.
func (c *Client) ListPlans(ctx context.Context) ([]PlanSummary, error) {
	var out []PlanSummary
	if err := c.doJSON(ctx, http.MethodGet, "/ops/custom-plans", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePlan stores a new plan and returns the server-assigned id.
func (c *Client) CreatePlan(ctx context.Context, p *graph.Plan) (string, error) {
	var created graph.Plan
	if err := c.doJSON(ctx, http.MethodPost, "/ops/custom-plans", p, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &TransientError{Op: "create plan", Err: fmt.Errorf("server returned no plan id")}
	}
	return created.ID, nil
}

// UpdatePlan overwrites a previously saved plan.
func (c *Client) UpdatePlan(ctx context.Context, p *graph.Plan) error {
	return c.doJSON(ctx, http.MethodPut, "/ops/custom-plans/"+p.ID, p, nil)
}

// Execute starts execution of a previously saved plan.
func (c *Client) Execute(ctx context.Context, planID string) error {
	return c.doJSON(ctx, http.MethodPost, "/ops/custom-plans/"+planID+"/execute", nil, nil)
}

// Events opens the long-lived push channel. The caller owns the returned
// body and must close it to end the subscription.
func (c *Client) Events(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ops/events", nil)
	if err != nil {
		return nil, &TransientError{Op: "events", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.client.Do(req) //nolint:bodyclose // ownership transfers to the caller
	if err != nil {
		return nil, &TransientError{Op: "events", Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &TransientError{Op: "events", Status: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &TransientError{Op: method + " " + path, Err: err}
		}
		bodyReader = bytes.NewBuffer(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, &TransientError{Op: method + " " + path, Err: err}
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransientError{Op: method + " " + path, Status: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransientError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
