package bookingdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stayfinder/internal/booking/saga"
)

// CheckpointStore persists saga checkpoints in Postgres. The lease column
// plus its expiry implement the fencing token: Save and Release only match
// rows whose lease equals the caller's token, so a stale worker's writes
// fail with ErrLeaseLost instead of clobbering a newer owner's state.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore constructs a CheckpointStore backed by Postgres.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// NewCheckpointStoreWithSchema initializes the schema then returns the store.
func NewCheckpointStoreWithSchema(ctx context.Context, db *sql.DB) (*CheckpointStore, error) {
	store := NewCheckpointStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the checkpoint table if it does not exist.
func (s *CheckpointStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS saga_checkpoints (
			booking_id TEXT PRIMARY KEY,
			hotel_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			stay_date TEXT NOT NULL,
			check_in TEXT NOT NULL,
			check_out TEXT NOT NULL,
			user_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			supplier_ref TEXT NOT NULL DEFAULT '',
			payment_ref TEXT NOT NULL DEFAULT '',
			confirm_id TEXT NOT NULL DEFAULT '',
			refund_done BOOLEAN NOT NULL DEFAULT FALSE,
			cancel_prebook_done BOOLEAN NOT NULL DEFAULT FALSE,
			alert_raised BOOLEAN NOT NULL DEFAULT FALSE,
			cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
			failure_reason TEXT NOT NULL DEFAULT '',
			lease TEXT NOT NULL DEFAULT '',
			lease_ttl_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
			lease_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (s *CheckpointStore) Create(ctx context.Context, cp saga.Checkpoint) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_checkpoints (booking_id, hotel_id, room_id, stay_date, check_in, check_out, user_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id) DO NOTHING`,
		cp.BookingID, cp.UnitKey.HotelID, cp.UnitKey.RoomID, cp.UnitKey.StayDate,
		cp.CheckIn, cp.CheckOut, cp.UserID, cp.Amount, cp.Currency, string(cp.Status),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return saga.ErrAlreadyExists
	}
	return nil
}

func (s *CheckpointStore) Acquire(ctx context.Context, bookingID, lease string, ttl time.Duration) (saga.Checkpoint, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saga_checkpoints
		SET lease = $2, lease_ttl_secs = $3, lease_expires_at = NOW() + make_interval(secs => $3)
		WHERE booking_id = $1
		  AND (lease = '' OR lease = $2 OR lease_expires_at IS NULL OR lease_expires_at <= NOW())`,
		bookingID, lease, ttl.Seconds(),
	)
	if err != nil {
		return saga.Checkpoint{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return saga.Checkpoint{}, err
	}
	if affected == 0 {
		// Distinguish a held lease from a missing checkpoint.
		if _, err := s.Get(ctx, bookingID); err != nil {
			return saga.Checkpoint{}, err
		}
		return saga.Checkpoint{}, saga.ErrLeaseHeld
	}
	return s.Get(ctx, bookingID)
}

func (s *CheckpointStore) Save(ctx context.Context, cp saga.Checkpoint, lease string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saga_checkpoints
		SET status = $3, supplier_ref = $4, payment_ref = $5, confirm_id = $6,
		    refund_done = $7, cancel_prebook_done = $8, alert_raised = $9,
		    cancel_requested = $10, failure_reason = $11,
		    lease_expires_at = NOW() + make_interval(secs => lease_ttl_secs),
		    updated_at = NOW()
		WHERE booking_id = $1 AND lease = $2`,
		cp.BookingID, lease, string(cp.Status), cp.SupplierRef, cp.PaymentRef, cp.ConfirmID,
		cp.RefundDone, cp.CancelPrebookDone, cp.AlertRaised, cp.CancelRequested, cp.FailureReason,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.Get(ctx, cp.BookingID); err != nil {
			return err
		}
		return saga.ErrLeaseLost
	}
	return nil
}

func (s *CheckpointStore) Release(ctx context.Context, bookingID, lease string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saga_checkpoints
		SET lease = '', lease_ttl_secs = 0, lease_expires_at = NULL
		WHERE booking_id = $1 AND lease = $2`,
		bookingID, lease,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.Get(ctx, bookingID); err != nil {
			return err
		}
		return saga.ErrLeaseLost
	}
	return nil
}

func (s *CheckpointStore) Get(ctx context.Context, bookingID string) (saga.Checkpoint, error) {
	var cp saga.Checkpoint
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT booking_id, hotel_id, room_id, stay_date, check_in, check_out, user_id, amount, currency,
		       status, supplier_ref, payment_ref, confirm_id, refund_done, cancel_prebook_done,
		       alert_raised, cancel_requested, failure_reason, created_at, updated_at
		FROM saga_checkpoints
		WHERE booking_id = $1`,
		bookingID,
	).Scan(
		&cp.BookingID, &cp.UnitKey.HotelID, &cp.UnitKey.RoomID, &cp.UnitKey.StayDate,
		&cp.CheckIn, &cp.CheckOut, &cp.UserID, &cp.Amount, &cp.Currency,
		&status, &cp.SupplierRef, &cp.PaymentRef, &cp.ConfirmID,
		&cp.RefundDone, &cp.CancelPrebookDone, &cp.AlertRaised, &cp.CancelRequested,
		&cp.FailureReason, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.Checkpoint{}, saga.ErrNotFound
	}
	if err != nil {
		return saga.Checkpoint{}, err
	}
	cp.Status = saga.Status(status)
	return cp, nil
}

func (s *CheckpointStore) ListResumable(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT booking_id
		FROM saga_checkpoints
		WHERE status NOT IN ('captured', 'failed', 'cancelled')
		  AND alert_raised = FALSE
		  AND (lease = '' OR lease_expires_at IS NULL OR lease_expires_at <= NOW())
		ORDER BY updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
