package inventory

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientInventory signals there is no room left for the requested
// unit. Retrying the same request cannot succeed.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrContention signals the store gave up after repeated transaction
// conflicts. The request may succeed if retried.
var ErrContention = errors.New("inventory store contention")

// ErrBookingNotFound signals no booking record exists for the id.
var ErrBookingNotFound = errors.New("booking not found")

// ErrUnitNotFound signals the unit key has no availability row.
var ErrUnitNotFound = errors.New("inventory unit not found")

// UnitKey identifies one bookable (hotel, room type, stay date) tuple.
type UnitKey struct {
	HotelID  string
	RoomID   string
	StayDate string
}

// String renders the key in hotel/room/date form for logs and storage.
func (k UnitKey) String() string {
	return k.HotelID + "/" + k.RoomID + "/" + k.StayDate
}

// Unit is one availability counter with its mutation version.
type Unit struct {
	Key       UnitKey
	Available int
	Version   int64
}

// Booking is the durable booking record kept next to the availability
// counters. After a terminal status it is an immutable historical row.
type Booking struct {
	ID          string
	Key         UnitKey
	UserID      string
	Status      string
	SupplierRef string
	PaymentRef  string
	Amount      float64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store provides serializable read-modify-write access to availability
// counters and booking records. Implementations must linearize concurrent
// decrements per unit: no two callers may observe the same pre-decrement
// count and both succeed.
type Store interface {
	// CheckAvailable reads the current count without taking a lock that
	// outlives the call.
	CheckAvailable(ctx context.Context, key UnitKey) (int, error)

	// CheckAndDecrement atomically verifies count >= amount and subtracts
	// amount, returning the post-decrement count. Fails with
	// ErrInsufficientInventory when the count is too low and ErrContention
	// when conflict retries are exhausted.
	CheckAndDecrement(ctx context.Context, key UnitKey, amount int) (int, error)

	// DecrementAndRecord performs CheckAndDecrement and persists the booking
	// record in the same transaction, so either both are durable or neither.
	DecrementAndRecord(ctx context.Context, key UnitKey, amount int, booking Booking) (int, error)

	// Increment is the compensating operation. Callers must not invoke it
	// twice for the same decrement; dedup is the saga checkpoint's job.
	Increment(ctx context.Context, key UnitKey, amount int) (int, error)

	// SetAvailability creates or resets a unit's counter.
	SetAvailability(ctx context.Context, key UnitKey, count int) error

	RecordBooking(ctx context.Context, booking Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
}
