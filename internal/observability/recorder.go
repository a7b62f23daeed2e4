package observability

import (
	"context"

	"stayfinder/internal/booking"
)

// EventRecorder feeds booking status events into the metrics counters. It
// sits in the publisher fanout next to the real delivery targets.
type EventRecorder struct {
	metrics *Metrics
}

// NewEventRecorder constructs an EventRecorder.
func NewEventRecorder(metrics *Metrics) *EventRecorder {
	return &EventRecorder{metrics: metrics}
}

func (r *EventRecorder) Publish(_ context.Context, ev booking.Event) error {
	r.metrics.MarkBookingEvent(string(ev.Status), ev.Alert)
	return nil
}
