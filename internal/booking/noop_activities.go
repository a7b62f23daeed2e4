package booking

import (
	"context"

	"stayfinder/internal/inventory"
)

// NoopActivities is a stub Activities implementation that always succeeds.
// Default wiring until real supplier and payment gateway clients are
// plugged in.
type NoopActivities struct{}

func (NoopActivities) Prebook(_ context.Context, bookingID string, _ inventory.UnitKey, _ DateRange) (string, error) {
	return "sup-" + bookingID, nil
}

func (NoopActivities) CancelPrebook(_ context.Context, _, _ string) error {
	return nil
}

func (NoopActivities) AuthorizePayment(_ context.Context, bookingID, _ string, _ float64, _ string) (string, error) {
	return "pay-" + bookingID, nil
}

func (NoopActivities) RefundPayment(_ context.Context, _, _ string) error {
	return nil
}

func (NoopActivities) ConfirmBooking(_ context.Context, bookingID, _ string) (string, error) {
	return "conf-" + bookingID, nil
}

func (NoopActivities) CapturePayment(_ context.Context, _, _ string) error {
	return nil
}
