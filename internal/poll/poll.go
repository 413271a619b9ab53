// Package poll drives the snapshot fetch cadence. The interval is derived
// from the current graph each tick: any running node means the operator is
// watching an active execution and gets the fast cadence, otherwise the slow
// one. Polling is suspended entirely while the operator edits, so local
// edits are never clobbered by an incoming snapshot mid-edit.
package poll

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/planview/internal/telemetry"
)

// Defaults for the two cadences.
const (
	DefaultFastInterval = 2 * time.Second
	DefaultSlowInterval = 10 * time.Second
)

// FetchFunc performs one snapshot fetch-and-reconcile round. It must not
// panic; errors are the fetcher's to report.
type FetchFunc func(ctx context.Context)

// Controller owns the poll timer. It is started once with Run and torn down
// by cancelling the context — the handle pattern keeps timers explicitly
// owned and explicitly cancellable, never dangling after the view exits.
type Controller struct {
	fast       time.Duration
	slow       time.Duration
	fetch      FetchFunc
	anyRunning func() bool

	suspendCh chan bool
	done      chan struct{}
	logger    *log.Logger
}

// New builds a controller. anyRunning reports whether the current plan has a
// running node and is consulted before every reschedule.
func New(fast, slow time.Duration, fetch FetchFunc, anyRunning func() bool, logger *log.Logger) *Controller {
	if fast <= 0 {
		fast = DefaultFastInterval
	}
	if slow <= 0 {
		slow = DefaultSlowInterval
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[POLL] ", log.LstdFlags)
	}
	return &Controller{
		fast:       fast,
		slow:       slow,
		fetch:      fetch,
		anyRunning: anyRunning,
		suspendCh:  make(chan bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Suspend pauses polling (entering edit mode).
func (c *Controller) Suspend() { c.signal(true) }

// Resume restarts polling and triggers an immediate fetch so the view is
// never stale for a full cadence period after leaving edit mode.
func (c *Controller) Resume() { c.signal(false) }

func (c *Controller) signal(suspend bool) {
	select {
	case c.suspendCh <- suspend:
	case <-c.done:
	}
}

// Run fetches immediately, then ticks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.fetch(ctx)
	timer := time.NewTimer(c.interval())
	defer timer.Stop()

	suspended := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-c.suspendCh:
			if s == suspended {
				continue
			}
			suspended = s
			if suspended {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				c.logger.Printf("polling suspended")
				continue
			}
			c.logger.Printf("polling resumed")
			c.fetch(ctx)
			timer.Reset(c.interval())
		case <-timer.C:
			if suspended {
				continue
			}
			c.fetch(ctx)
			timer.Reset(c.interval())
		}
	}
}

func (c *Controller) interval() time.Duration {
	if c.anyRunning != nil && c.anyRunning() {
		telemetry.PollFastMode.Set(1)
		return c.fast
	}
	telemetry.PollFastMode.Set(0)
	return c.slow
}
