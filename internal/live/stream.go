package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/planview/internal/telemetry"
)

// envelope is the canonical wrapper the orchestrator mirrors to Redis
// Streams for consoles that prefer a durable channel over SSE.
type envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// StreamSource reads push events from a Redis Stream using a consumer group,
// so a console that reconnects resumes where it left off instead of missing
// deltas. Semantics match the SSE source: arrival order, unknown event names
// skipped, malformed entries acknowledged and dropped.
type StreamSource struct {
	client *redis.Client
	stream string
	group  string
	name   string
	block  time.Duration
	logger *log.Logger
}

// NewStreamSource builds a source for the given stream and consumer group.
func NewStreamSource(client *redis.Client, stream, group, name string, logger *log.Logger) *StreamSource {
	if logger == nil {
		logger = log.New(log.Writer(), "[EVENTS] ", log.LstdFlags)
	}
	return &StreamSource{
		client: client,
		stream: stream,
		group:  group,
		name:   name,
		block:  5 * time.Second,
		logger: logger,
	}
}

// EnsureGroup creates the consumer group if it does not exist.
func (s *StreamSource) EnsureGroup(ctx context.Context) error {
	if s.stream == "" || s.group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	if err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Run pushes events into out until ctx is cancelled.
func (s *StreamSource) Run(ctx context.Context, out chan<- Event) error {
	if err := s.EnsureGroup(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := s.read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Printf("stream read failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			if ev, ok := s.decode(ctx, msg); ok {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *StreamSource) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.name,
		Streams:  []string{s.stream, ">"},
		Block:    s.block,
		Count:    64,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	var out []redis.XMessage
	for _, st := range streams {
		out = append(out, st.Messages...)
	}
	return out, nil
}

// decode unwraps one stream entry. Every entry is acknowledged, including
// ones that fail to decode: a poison message must not wedge the group.
func (s *StreamSource) decode(ctx context.Context, msg redis.XMessage) (Event, bool) {
	defer func() {
		if err := s.client.XAck(ctx, s.stream, s.group, msg.ID).Err(); err != nil {
			s.logger.Printf("xack %s failed: %v", msg.ID, err)
		}
	}()

	raw, ok := msg.Values["envelope"]
	if !ok {
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		return Event{}, false
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		return Event{}, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		s.logger.Printf("dropping undecodable stream entry %s: %v", msg.ID, err)
		return Event{}, false
	}
	ev, known, err := ParseFrame(env.EventType, env.Data)
	if err != nil {
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		s.logger.Printf("dropping malformed %s entry %s: %v", env.EventType, msg.ID, err)
		return Event{}, false
	}
	if !known {
		return Event{}, false
	}
	return ev, true
}
