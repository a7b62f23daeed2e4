package booking

import (
	"context"
	"errors"
	"fmt"

	"stayfinder/internal/inventory"
)

// FailureKind classifies an activity failure for the retry policy.
type FailureKind int

const (
	// KindTransient failures (network, timeout) are retried under backoff.
	KindTransient FailureKind = iota
	// KindPermanent failures (business rejection) take the failure edge
	// immediately.
	KindPermanent
)

// ActivityError is a typed activity failure. Errors that are not
// ActivityError are treated as transient.
type ActivityError struct {
	Kind FailureKind
	Err  error
}

func (e *ActivityError) Error() string {
	switch e.Kind {
	case KindPermanent:
		return fmt.Sprintf("permanent: %v", e.Err)
	default:
		return fmt.Sprintf("transient: %v", e.Err)
	}
}

func (e *ActivityError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable activity failure.
func Transient(err error) error {
	return &ActivityError{Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable activity failure.
func Permanent(err error) error {
	return &ActivityError{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err is a permanent activity failure.
func IsPermanent(err error) bool {
	var ae *ActivityError
	return errors.As(err, &ae) && ae.Kind == KindPermanent
}

// Activities is the contract for the external side-effecting operations of a
// booking saga. Implementations are collaborators (supplier API client,
// payment gateway client); the orchestrator depends only on this interface.
//
// Every call receives the booking id as its idempotency key and must be safe
// to repeat with the same key: the collaborator deduplicates, the
// orchestrator always resends the same key when retrying a step.
type Activities interface {
	// Prebook places a hold with the supplier and returns an opaque
	// supplier reference.
	Prebook(ctx context.Context, bookingID string, key inventory.UnitKey, dates DateRange) (string, error)

	// CancelPrebook releases a supplier hold. Best effort: bounded retries,
	// then escalate.
	CancelPrebook(ctx context.Context, bookingID, supplierRef string) error

	// AuthorizePayment places a hold on the user's payment instrument and
	// returns an opaque payment reference.
	AuthorizePayment(ctx context.Context, bookingID, userID string, amount float64, currency string) (string, error)

	// RefundPayment reverses an authorization. Same best-effort policy as
	// CancelPrebook.
	RefundPayment(ctx context.Context, bookingID, paymentRef string) error

	// ConfirmBooking turns the supplier hold into a confirmed booking and
	// returns the supplier's confirmation id.
	ConfirmBooking(ctx context.Context, bookingID, supplierRef string) (string, error)

	// CapturePayment settles the authorized amount.
	CapturePayment(ctx context.Context, bookingID, paymentRef string) error
}
