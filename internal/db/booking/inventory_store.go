package bookingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"stayfinder/internal/inventory"
)

// Transaction conflict retry budget. Exhausting it surfaces
// inventory.ErrContention, which means "try again" as opposed to
// ErrInsufficientInventory's "no room left".
const (
	txMaxRetries   = 4
	txRetryBackoff = 10 * time.Millisecond
)

// InventoryStore persists availability counters and booking records in
// Postgres. Every read-modify-write runs in a SERIALIZABLE transaction with
// a row lock on the unit, so concurrent decrements against one unit are
// linearized by the database.
type InventoryStore struct {
	db *sql.DB
}

// NewInventoryStore constructs an InventoryStore backed by Postgres.
func NewInventoryStore(db *sql.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// NewInventoryStoreWithSchema initializes the schema then returns the store.
func NewInventoryStoreWithSchema(ctx context.Context, db *sql.DB) (*InventoryStore, error) {
	store := NewInventoryStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates inventory tables if they do not exist.
func (s *InventoryStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS inventory_units (
			hotel_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			stay_date TEXT NOT NULL,
			available INTEGER NOT NULL CHECK (available >= 0),
			version BIGINT NOT NULL DEFAULT 1,
			PRIMARY KEY (hotel_id, room_id, stay_date)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			booking_id TEXT PRIMARY KEY,
			hotel_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			stay_date TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			supplier_ref TEXT NOT NULL DEFAULT '',
			payment_ref TEXT NOT NULL DEFAULT '',
			amount DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *InventoryStore) CheckAvailable(ctx context.Context, key inventory.UnitKey) (int, error) {
	var available int
	err := s.db.QueryRowContext(ctx, `
		SELECT available FROM inventory_units
		WHERE hotel_id = $1 AND room_id = $2 AND stay_date = $3`,
		key.HotelID, key.RoomID, key.StayDate,
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrUnitNotFound
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}

func (s *InventoryStore) CheckAndDecrement(ctx context.Context, key inventory.UnitKey, amount int) (int, error) {
	return s.decrement(ctx, key, amount, nil)
}

func (s *InventoryStore) DecrementAndRecord(ctx context.Context, key inventory.UnitKey, amount int, booking inventory.Booking) (int, error) {
	return s.decrement(ctx, key, amount, &booking)
}

// decrement runs the check-and-decrement transaction, optionally inserting
// the booking record in the same transaction so either both are durable or
// neither. A booking id that was already recorded short-circuits to success
// without decrementing again. Serialization conflicts are retried a bounded
// number of times.
func (s *InventoryStore) decrement(ctx context.Context, key inventory.UnitKey, amount int, booking *inventory.Booking) (int, error) {
	var newCount int

	backoff := retry.WithMaxRetries(txMaxRetries, retry.NewExponential(txRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		count, err := s.decrementOnce(ctx, key, amount, booking)
		if err != nil {
			if isSerializationFailure(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		newCount = count
		return nil
	})
	if err != nil {
		if isSerializationFailure(err) {
			return 0, fmt.Errorf("%w: %v", inventory.ErrContention, err)
		}
		return 0, err
	}
	return newCount, nil
}

func (s *InventoryStore) decrementOnce(ctx context.Context, key inventory.UnitKey, amount int, booking *inventory.Booking) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if booking != nil {
		var recorded bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM bookings WHERE booking_id = $1)`,
			booking.ID,
		).Scan(&recorded); err != nil {
			return 0, err
		}
		if recorded {
			// The decrement and the booking row committed on an earlier
			// attempt; running the decrement again would consume a second
			// unit for the same booking.
			var available int
			err := tx.QueryRowContext(ctx, `
				SELECT available FROM inventory_units
				WHERE hotel_id = $1 AND room_id = $2 AND stay_date = $3`,
				key.HotelID, key.RoomID, key.StayDate,
			).Scan(&available)
			if errors.Is(err, sql.ErrNoRows) {
				return 0, inventory.ErrUnitNotFound
			}
			if err != nil {
				return 0, err
			}
			return available, tx.Commit()
		}
	}

	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT available FROM inventory_units
		WHERE hotel_id = $1 AND room_id = $2 AND stay_date = $3
		FOR UPDATE`,
		key.HotelID, key.RoomID, key.StayDate,
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrUnitNotFound
	}
	if err != nil {
		return 0, err
	}
	if available < amount {
		return 0, inventory.ErrInsufficientInventory
	}

	newCount := available - amount
	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory_units
		SET available = $4, version = version + 1
		WHERE hotel_id = $1 AND room_id = $2 AND stay_date = $3`,
		key.HotelID, key.RoomID, key.StayDate, newCount,
	); err != nil {
		return 0, err
	}

	if booking != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (booking_id, hotel_id, room_id, stay_date, user_id, status, supplier_ref, payment_ref, amount, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			booking.ID, booking.Key.HotelID, booking.Key.RoomID, booking.Key.StayDate,
			booking.UserID, booking.Status, booking.SupplierRef, booking.PaymentRef,
			booking.Amount, booking.Currency,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newCount, nil
}

func (s *InventoryStore) Increment(ctx context.Context, key inventory.UnitKey, amount int) (int, error) {
	var newCount int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory_units (hotel_id, room_id, stay_date, available)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hotel_id, room_id, stay_date)
		DO UPDATE SET available = inventory_units.available + $4, version = inventory_units.version + 1
		RETURNING available`,
		key.HotelID, key.RoomID, key.StayDate, amount,
	).Scan(&newCount)
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

func (s *InventoryStore) SetAvailability(ctx context.Context, key inventory.UnitKey, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_units (hotel_id, room_id, stay_date, available)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hotel_id, room_id, stay_date)
		DO UPDATE SET available = $4, version = inventory_units.version + 1`,
		key.HotelID, key.RoomID, key.StayDate, count,
	)
	return err
}

func (s *InventoryStore) RecordBooking(ctx context.Context, booking inventory.Booking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (booking_id, hotel_id, room_id, stay_date, user_id, status, supplier_ref, payment_ref, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id) DO NOTHING`,
		booking.ID, booking.Key.HotelID, booking.Key.RoomID, booking.Key.StayDate,
		booking.UserID, booking.Status, booking.SupplierRef, booking.PaymentRef,
		booking.Amount, booking.Currency,
	)
	return err
}

func (s *InventoryStore) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE booking_id = $1`,
		bookingID, status,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return inventory.ErrBookingNotFound
	}
	return nil
}

func (s *InventoryStore) GetBooking(ctx context.Context, bookingID string) (inventory.Booking, error) {
	var booking inventory.Booking
	err := s.db.QueryRowContext(ctx, `
		SELECT booking_id, hotel_id, room_id, stay_date, user_id, status, supplier_ref, payment_ref, amount, currency, created_at, updated_at
		FROM bookings
		WHERE booking_id = $1`,
		bookingID,
	).Scan(
		&booking.ID, &booking.Key.HotelID, &booking.Key.RoomID, &booking.Key.StayDate,
		&booking.UserID, &booking.Status, &booking.SupplierRef, &booking.PaymentRef,
		&booking.Amount, &booking.Currency, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Booking{}, inventory.ErrBookingNotFound
	}
	if err != nil {
		return inventory.Booking{}, err
	}
	return booking, nil
}

// isSerializationFailure reports whether err is a Postgres serialization
// failure or deadlock, the conflicts SERIALIZABLE transactions are expected
// to retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
