package booking

import (
	"context"
	"errors"
	"time"

	"stayfinder/internal/booking/saga"
)

// Event is a booking status change emitted on every terminal or
// near-terminal transition. Delivery is at-least-once; consumers dedupe on
// (booking id, status).
type Event struct {
	ID        string      `json:"id"`
	BookingID string      `json:"booking_id"`
	Status    saga.Status `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Alert     bool        `json:"alert,omitempty"`
	At        time.Time   `json:"at"`
}

// EventPublisher abstracts delivery of booking status events to downstream
// analytics and notification collaborators.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// FanoutPublisher publishes to every target, collecting errors so each
// target gets a chance to deliver.
type FanoutPublisher struct {
	targets []EventPublisher
}

// NewFanoutPublisher constructs an EventPublisher that forwards to each
// target in sequence.
func NewFanoutPublisher(targets ...EventPublisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

func (f *FanoutPublisher) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, target := range f.targets {
		if err := target.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events through a log function. Default sink when no
// stream is configured.
type LogPublisher struct {
	logf func(format string, args ...any)
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logf func(format string, args ...any)) *LogPublisher {
	return &LogPublisher{logf: logf}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	if p.logf != nil {
		p.logf("booking event: booking=%s status=%s alert=%t reason=%q", ev.BookingID, ev.Status, ev.Alert, ev.Reason)
	}
	return nil
}
