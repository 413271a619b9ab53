// Package telemetry exposes the engine's prometheus metrics. Collectors are
// registered on the default registry and served by promhttp in watch mode.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsTotal counts snapshot fetches by outcome (ok, unauthorized, error).
	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planview_snapshots_total",
		Help: "Snapshot fetches by outcome",
	}, []string{"outcome"})

	// EventsAppliedTotal counts live events applied to the current plan.
	EventsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planview_events_applied_total",
		Help: "Live events applied to the current plan",
	})

	// EventsDroppedTotal counts live events dropped by reason
	// (other_plan, unknown_node, malformed, unknown_event).
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planview_events_dropped_total",
		Help: "Live events dropped by reason",
	}, []string{"reason"})

	// ValidationFailuresTotal counts plan validations that blocked a save.
	ValidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planview_validation_failures_total",
		Help: "Plan validations that blocked persistence",
	})

	// PollFastMode is 1 while the poller runs at the fast cadence.
	PollFastMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planview_poll_fast_mode",
		Help: "1 while any node is running and polling is in fast cadence",
	})
)
