package inventory

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters and booking records in memory. A single mutex
// serializes every mutation, which trivially satisfies the strict
// serializability contract. Used by tests and as the fallback when no
// Postgres DSN is configured.
type MemoryStore struct {
	mu       sync.Mutex
	units    map[UnitKey]*Unit
	bookings map[string]Booking
	now      func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:    make(map[UnitKey]*Unit),
		bookings: make(map[string]Booking),
		now:      time.Now,
	}
}

func (s *MemoryStore) CheckAvailable(ctx context.Context, key UnitKey) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[key]
	if !ok {
		return 0, ErrUnitNotFound
	}
	return unit.Available, nil
}

func (s *MemoryStore) CheckAndDecrement(ctx context.Context, key UnitKey, amount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementLocked(key, amount)
}

func (s *MemoryStore) DecrementAndRecord(ctx context.Context, key UnitKey, amount int, booking Booking) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// An already-recorded booking already paid its decrement: repeating it
	// would consume a second unit for the same booking.
	if _, ok := s.bookings[booking.ID]; ok {
		unit, ok := s.units[key]
		if !ok {
			return 0, ErrUnitNotFound
		}
		return unit.Available, nil
	}

	count, err := s.decrementLocked(key, amount)
	if err != nil {
		return 0, err
	}
	s.recordLocked(booking)
	return count, nil
}

func (s *MemoryStore) Increment(ctx context.Context, key UnitKey, amount int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[key]
	if !ok {
		unit = &Unit{Key: key}
		s.units[key] = unit
	}
	unit.Available += amount
	unit.Version++
	return unit.Available, nil
}

func (s *MemoryStore) SetAvailability(ctx context.Context, key UnitKey, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[key]
	if !ok {
		s.units[key] = &Unit{Key: key, Available: count, Version: 1}
		return nil
	}
	unit.Available = count
	unit.Version++
	return nil
}

func (s *MemoryStore) RecordBooking(ctx context.Context, booking Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(booking)
	return nil
}

func (s *MemoryStore) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	booking.Status = status
	booking.UpdatedAt = s.now()
	s.bookings[bookingID] = booking
	return nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

// Version returns the unit's current version (for inspection in tests).
func (s *MemoryStore) Version(key UnitKey) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unit, ok := s.units[key]; ok {
		return unit.Version
	}
	return 0
}

func (s *MemoryStore) decrementLocked(key UnitKey, amount int) (int, error) {
	unit, ok := s.units[key]
	if !ok {
		return 0, ErrUnitNotFound
	}
	if unit.Available < amount {
		return 0, ErrInsufficientInventory
	}
	unit.Available -= amount
	unit.Version++
	return unit.Available, nil
}

func (s *MemoryStore) recordLocked(booking Booking) {
	now := s.now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	s.bookings[booking.ID] = booking
}
