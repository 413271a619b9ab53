package live

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/planview/internal/telemetry"
)

// StreamOpener opens the long-lived push channel. *remote.Client satisfies it.
type StreamOpener interface {
	Events(ctx context.Context) (io.ReadCloser, error)
}

// SSESource subscribes to the orchestrator's server-sent event channel and
// forwards decoded events in arrival order. Frames for event names this
// engine does not own are skipped; malformed payloads are dropped, logged
// and counted, never propagated.
type SSESource struct {
	opener    StreamOpener
	logger    *log.Logger
	reconnect time.Duration
}

// NewSSESource builds a source over the given opener. reconnect is the pause
// before re-dialling after a dropped connection.
func NewSSESource(opener StreamOpener, logger *log.Logger, reconnect time.Duration) *SSESource {
	if logger == nil {
		logger = log.New(log.Writer(), "[EVENTS] ", log.LstdFlags)
	}
	if reconnect <= 0 {
		reconnect = 2 * time.Second
	}
	return &SSESource{opener: opener, logger: logger, reconnect: reconnect}
}

// Run pushes events into out until ctx is cancelled. The subscription is
// re-established after transport failures; cancellation is the only clean
// exit so the session's teardown closes the channel deterministically.
func (s *SSESource) Run(ctx context.Context, out chan<- Event) error {
	for {
		if err := s.consume(ctx, out); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("event stream dropped: %v (reconnecting in %s)", err, s.reconnect)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnect):
		}
	}
}

func (s *SSESource) consume(ctx context.Context, out chan<- Event) error {
	body, err := s.opener.Events(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	// The opener's body is not required to unblock its Read on ctx
	// cancellation, so force the issue: closing the body fails the scanner
	// and consume returns.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-watchDone:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			s.dispatch(ctx, eventName, data.String(), out)
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment/keep-alive
		}
	}
	// Flush a final frame that was not terminated by a blank line.
	s.dispatch(ctx, eventName, data.String(), out)
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *SSESource) dispatch(ctx context.Context, name, data string, out chan<- Event) {
	if name == "" || data == "" {
		return
	}
	ev, ok, err := ParseFrame(name, []byte(data))
	if err != nil {
		telemetry.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		s.logger.Printf("dropping malformed %s frame: %v", name, err)
		return
	}
	if !ok {
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
