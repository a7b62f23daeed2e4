package saga

import (
	"context"
	"errors"
	"time"

	"stayfinder/internal/inventory"
)

// Status captures the current state of a booking saga.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPrebooked    Status = "prebooked"
	StatusAuthorized   Status = "authorized"
	StatusConfirmed    Status = "confirmed"
	StatusCaptured     Status = "captured"
	StatusCompensating Status = "compensating"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether a saga in this status will make no further
// transitions. A confirmed saga with a raised alert is terminal too; the
// pending capture is reconciled by an operator, not by the orchestrator.
func (s Status) Terminal() bool {
	switch s {
	case StatusCaptured, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Checkpoint is the durable progress record of one booking saga. It is
// created at saga start, updated after every step transition, and owned by
// exactly one worker at a time via the lease token.
type Checkpoint struct {
	BookingID string
	UnitKey   inventory.UnitKey
	CheckIn   string
	CheckOut  string
	UserID    string
	Amount    float64
	Currency  string

	Status      Status
	SupplierRef string
	PaymentRef  string
	ConfirmID   string

	// Compensation bookkeeping. A resumed saga must never re-run a
	// compensation that already completed.
	RefundDone        bool
	CancelPrebookDone bool

	AlertRaised     bool
	CancelRequested bool
	FailureReason   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckpointStore persists saga checkpoints keyed by booking id. Save and
// Release are fenced by the lease token handed out by Acquire, so a
// crashed-and-resumed worker cannot race a still-running one.
type CheckpointStore interface {
	// Create inserts the initial checkpoint. ErrAlreadyExists when a saga
	// for the booking id was already started.
	Create(ctx context.Context, cp Checkpoint) error

	// Acquire takes ownership of the checkpoint for ttl. It fails with
	// ErrLeaseHeld while another live worker owns it and ErrNotFound when
	// no checkpoint exists.
	Acquire(ctx context.Context, bookingID, lease string, ttl time.Duration) (Checkpoint, error)

	// Save persists the checkpoint and renews the lease for the ttl given
	// at Acquire. ErrLeaseLost when the lease token no longer matches (the
	// worker was fenced off).
	Save(ctx context.Context, cp Checkpoint, lease string) error

	// Release gives up ownership after a terminal transition.
	Release(ctx context.Context, bookingID, lease string) error

	Get(ctx context.Context, bookingID string) (Checkpoint, error)

	// ListResumable returns booking ids of non-terminal checkpoints whose
	// lease has expired, oldest first.
	ListResumable(ctx context.Context, limit int) ([]string, error)
}

var (
	ErrNotFound      = errors.New("saga checkpoint not found")
	ErrAlreadyExists = errors.New("saga already started for booking")
	ErrLeaseHeld     = errors.New("saga lease held by another worker")
	ErrLeaseLost     = errors.New("saga lease lost")
)
