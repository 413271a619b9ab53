package live

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

// streamTestClient connects to a local Redis and skips the test when none is
// reachable, so the suite stays runnable without infrastructure.
func streamTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("PLANVIEW_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return client
}

func addEnvelope(t *testing.T, client *redis.Client, stream, eventType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(envelope{
		EventID:    fmt.Sprintf("ev-%d", time.Now().UnixNano()),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"envelope": string(env)},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
}

func TestStreamSourceConsumesEnvelopes(t *testing.T) {
	client := streamTestClient(t)
	defer client.Close()

	stream := fmt.Sprintf("planview:test:%d", time.Now().UnixNano())
	defer client.Del(context.Background(), stream)

	src := NewStreamSource(client, stream, "planview-test", "consumer-1", nil)
	if err := src.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	addEnvelope(t, client, stream, EventNodeStatus, map[string]any{
		"plan_id": "p", "node_id": "a", "status": "running",
	})
	addEnvelope(t, client, stream, "token_economy_update", map[string]any{"tokens": 3})
	addEnvelope(t, client, stream, EventNodeStatus, map[string]any{
		"plan_id": "p", "node_id": "a", "status": "done",
	})
	// Poison entry: must be acknowledged and dropped, not wedge the group.
	if err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"envelope": "{broken"},
	}).Err(); err != nil {
		t.Fatalf("xadd poison: %v", err)
	}
	addEnvelope(t, client, stream, EventPlanFinished, map[string]any{
		"plan_id": "p", "status": "done",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(chan Event, 16)
	go func() { _ = src.Run(ctx, out) }()

	var got []Event
	for len(got) < 3 {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatalf("timed out after %d/3 events", len(got))
		}
	}
	if got[0].Status != graph.StatusRunning || got[1].Status != graph.StatusDone {
		t.Fatalf("events out of order: %+v", got)
	}
	if got[2].Kind != KindPlanFinished {
		t.Fatalf("expected plan_finished last: %+v", got[2])
	}
}
