package booking

import (
	"context"
	"sync"
	"time"

	"stayfinder/internal/inventory"
)

// Activity operation names used by FakeActivities scripting and call logs.
const (
	OpPrebook       = "prebook"
	OpCancelPrebook = "cancel-prebook"
	OpAuthorize     = "authorize-payment"
	OpRefund        = "refund-payment"
	OpConfirm       = "confirm-booking"
	OpCapture       = "capture-payment"
)

type fakeOutcome struct {
	err   error
	delay time.Duration
}

// FakeActivities is a deterministic Activities implementation for tests.
// Outcomes are scripted per operation: each queued outcome is consumed by
// one call, after which the operation succeeds. Successful calls return
// references derived from the booking id, so retries with the same
// idempotency key yield the same reference.
type FakeActivities struct {
	mu       sync.Mutex
	outcomes map[string][]fakeOutcome
	calls    map[string]int
	log      []string
}

// NewFakeActivities constructs a FakeActivities where every call succeeds.
func NewFakeActivities() *FakeActivities {
	return &FakeActivities{
		outcomes: make(map[string][]fakeOutcome),
		calls:    make(map[string]int),
	}
}

// FailNext queues err as the outcome of the next n calls of op.
func (f *FakeActivities) FailNext(op string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.outcomes[op] = append(f.outcomes[op], fakeOutcome{err: err})
	}
}

// DelayNext queues a successful outcome for op that takes d to respond.
func (f *FakeActivities) DelayNext(op string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[op] = append(f.outcomes[op], fakeOutcome{delay: d})
}

// Calls returns how many times op was invoked.
func (f *FakeActivities) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// CallLog returns the ordered "<op>:<bookingID>" invocation log.
func (f *FakeActivities) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	copy(out, f.log)
	return out
}

func (f *FakeActivities) next(ctx context.Context, op, bookingID string) error {
	f.mu.Lock()
	f.calls[op]++
	f.log = append(f.log, op+":"+bookingID)
	var outcome fakeOutcome
	if queued := f.outcomes[op]; len(queued) > 0 {
		outcome = queued[0]
		f.outcomes[op] = queued[1:]
	}
	f.mu.Unlock()

	if outcome.delay > 0 {
		timer := time.NewTimer(outcome.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Transient(ctx.Err())
		case <-timer.C:
		}
	}
	return outcome.err
}

func (f *FakeActivities) Prebook(ctx context.Context, bookingID string, _ inventory.UnitKey, _ DateRange) (string, error) {
	if err := f.next(ctx, OpPrebook, bookingID); err != nil {
		return "", err
	}
	return "sup-" + bookingID, nil
}

func (f *FakeActivities) CancelPrebook(ctx context.Context, bookingID, _ string) error {
	return f.next(ctx, OpCancelPrebook, bookingID)
}

func (f *FakeActivities) AuthorizePayment(ctx context.Context, bookingID, _ string, _ float64, _ string) (string, error) {
	if err := f.next(ctx, OpAuthorize, bookingID); err != nil {
		return "", err
	}
	return "pay-" + bookingID, nil
}

func (f *FakeActivities) RefundPayment(ctx context.Context, bookingID, _ string) error {
	return f.next(ctx, OpRefund, bookingID)
}

func (f *FakeActivities) ConfirmBooking(ctx context.Context, bookingID, _ string) (string, error) {
	if err := f.next(ctx, OpConfirm, bookingID); err != nil {
		return "", err
	}
	return "conf-" + bookingID, nil
}

func (f *FakeActivities) CapturePayment(ctx context.Context, bookingID, _ string) error {
	return f.next(ctx, OpCapture, bookingID)
}
