package live

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

type fakeOpener struct {
	frames string
	opened int
}

func (f *fakeOpener) Events(ctx context.Context) (io.ReadCloser, error) {
	f.opened++
	if f.opened > 1 {
		// Block further reconnects until the test cancels.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return io.NopCloser(strings.NewReader(f.frames)), nil
}

func collect(t *testing.T, frames string, want int) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	src := NewSSESource(&fakeOpener{frames: frames}, nil, 10*time.Millisecond)
	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		_ = src.Run(ctx, out)
		close(done)
	}()

	var got []Event
	for len(got) < want {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatalf("timed out after %d/%d events", len(got), want)
		}
	}
	cancel()
	<-done
	return got
}

func TestSSESourceDecodesFramesInOrder(t *testing.T) {
	frames := "event: custom_node_status\n" +
		"data: {\"plan_id\":\"p\",\"node_id\":\"a\",\"status\":\"running\"}\n" +
		"\n" +
		"event: token_economy_update\n" +
		"data: {\"tokens\":12}\n" +
		"\n" +
		"event: custom_node_status\n" +
		"data: {\"plan_id\":\"p\",\"node_id\":\"a\",\"status\":\"done\",\"output\":\"ok\"}\n" +
		"\n" +
		"event: custom_plan_finished\n" +
		"data: {\"plan_id\":\"p\",\"status\":\"done\"}\n" +
		"\n"

	got := collect(t, frames, 3)
	if got[0].Status != graph.StatusRunning || got[1].Status != graph.StatusDone {
		t.Fatalf("events out of order: %+v", got)
	}
	if got[1].Output == nil || *got[1].Output != "ok" {
		t.Fatalf("output not decoded: %+v", got[1])
	}
	if got[2].Kind != KindPlanFinished {
		t.Fatalf("expected plan_finished last: %+v", got[2])
	}
}

func TestSSESourceDropsMalformedFrames(t *testing.T) {
	frames := "event: custom_node_status\n" +
		"data: {broken json\n" +
		"\n" +
		"event: custom_node_status\n" +
		"data: {\"plan_id\":\"p\",\"node_id\":\"a\",\"status\":\"done\"}\n" +
		"\n"

	got := collect(t, frames, 1)
	if got[0].NodeID != "a" || got[0].Status != graph.StatusDone {
		t.Fatalf("a malformed frame must not stall subsequent events: %+v", got[0])
	}
}

func TestSSESourceIgnoresCommentsAndBareData(t *testing.T) {
	frames := ": keep-alive\n" +
		"\n" +
		"data: {\"plan_id\":\"p\"}\n" +
		"\n" +
		"event: custom_plan_finished\n" +
		"data: {\"plan_id\":\"p\",\"status\":\"error\"}\n" +
		"\n"

	got := collect(t, frames, 1)
	if got[0].Kind != KindPlanFinished || got[0].Status != graph.StatusError {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

type pipeOpener struct {
	r *io.PipeReader
}

func (p *pipeOpener) Events(context.Context) (io.ReadCloser, error) {
	return p.r, nil
}

func TestSSESourceStopsOnCancelWithBlockingBody(t *testing.T) {
	// A body whose Read ignores ctx entirely; teardown must still complete.
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := NewSSESource(&pipeOpener{r: r}, nil, 5*time.Millisecond)
	out := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		_ = src.Run(ctx, out)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("source stuck in a blocking body read after cancellation")
	}
}

func TestSSESourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewSSESource(&fakeOpener{frames: ""}, nil, 5*time.Millisecond)
	out := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		_ = src.Run(ctx, out)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("source did not stop on cancellation")
	}
}
