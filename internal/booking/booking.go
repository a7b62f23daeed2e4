package booking

import (
	"errors"
	"fmt"
	"time"

	"stayfinder/internal/inventory"
)

// ErrSagaRunning indicates another worker currently holds the booking's
// saga lease.
var ErrSagaRunning = errors.New("booking saga is being processed")

// ErrAlreadyTerminal indicates the booking reached a terminal status and
// cannot be cancelled.
var ErrAlreadyTerminal = errors.New("booking already terminal")

const dateLayout = "2006-01-02"

// DateRange is the requested stay, inclusive of check-in and exclusive of
// check-out, both in YYYY-MM-DD form.
type DateRange struct {
	CheckIn  string
	CheckOut string
}

// Validate checks both dates parse and check-out follows check-in.
func (d DateRange) Validate() error {
	in, err := time.Parse(dateLayout, d.CheckIn)
	if err != nil {
		return fmt.Errorf("check-in: %w", err)
	}
	out, err := time.Parse(dateLayout, d.CheckOut)
	if err != nil {
		return fmt.Errorf("check-out: %w", err)
	}
	if !out.After(in) {
		return errors.New("check-out must be after check-in")
	}
	return nil
}

// Request is an inbound booking request as submitted by the presentation
// layer. The identity is an opaque user id passed through to activities.
type Request struct {
	UnitKey  inventory.UnitKey
	Dates    DateRange
	UserID   string
	Amount   float64
	Currency string
}

// Validate rejects structurally invalid requests before any side effect.
func (r Request) Validate() error {
	if r.UnitKey.HotelID == "" || r.UnitKey.RoomID == "" || r.UnitKey.StayDate == "" {
		return errors.New("unit key is required")
	}
	if r.UserID == "" {
		return errors.New("user id is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return r.Dates.Validate()
}
