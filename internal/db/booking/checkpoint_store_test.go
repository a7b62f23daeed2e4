package bookingdb

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"stayfinder/internal/booking/saga"
)

func TestCheckpointStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS saga_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestCheckpointStore_Create_Duplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO saga_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	cp := saga.Checkpoint{BookingID: "b-1", UnitKey: testKey, Status: saga.StatusPending}
	if err := store.Create(context.Background(), cp); !errors.Is(err, saga.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func checkpointRows(bookingID, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"booking_id", "hotel_id", "room_id", "stay_date", "check_in", "check_out",
		"user_id", "amount", "currency", "status", "supplier_ref", "payment_ref",
		"confirm_id", "refund_done", "cancel_prebook_done", "alert_raised",
		"cancel_requested", "failure_reason", "created_at", "updated_at",
	}).AddRow(
		bookingID, "h1", "r1", "2026-09-01", "2026-09-01", "2026-09-02",
		"u-1", 120.0, "EUR", status, "", "",
		"", false, false, false,
		false, "", now, now,
	)
}

func TestCheckpointStore_Acquire(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_checkpoints").
		WithArgs("b-1", "worker-a", 30.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM saga_checkpoints").
		WithArgs("b-1").
		WillReturnRows(checkpointRows("b-1", "prebooked"))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	cp, err := store.Acquire(context.Background(), "b-1", "worker-a", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if cp.Status != saga.StatusPrebooked {
		t.Fatalf("expected prebooked, got %s", cp.Status)
	}
}

func TestCheckpointStore_Acquire_LeaseHeld(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_checkpoints").
		WithArgs("b-1", "worker-b", 30.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM saga_checkpoints").
		WithArgs("b-1").
		WillReturnRows(checkpointRows("b-1", "prebooked"))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	if _, err := store.Acquire(context.Background(), "b-1", "worker-b", 30*time.Second); !errors.Is(err, saga.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
}

func TestCheckpointStore_Acquire_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_checkpoints").
		WithArgs("missing", "worker-a", 30.0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM saga_checkpoints").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"booking_id"}))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	if _, err := store.Acquire(context.Background(), "missing", "worker-a", 30*time.Second); !errors.Is(err, saga.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckpointStore_Save_LeaseLost(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM saga_checkpoints").
		WithArgs("b-1").
		WillReturnRows(checkpointRows("b-1", "authorized"))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	cp := saga.Checkpoint{BookingID: "b-1", UnitKey: testKey, Status: saga.StatusAuthorized}
	if err := store.Save(context.Background(), cp, "stale-worker"); !errors.Is(err, saga.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
}

func TestCheckpointStore_Save(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	cp := saga.Checkpoint{BookingID: "b-1", UnitKey: testKey, Status: saga.StatusAuthorized}
	if err := store.Save(context.Background(), cp, "worker-a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestCheckpointStore_Release(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE saga_checkpoints").
		WithArgs("b-1", "worker-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	if err := store.Release(context.Background(), "b-1", "worker-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestCheckpointStore_ListResumable(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT booking_id").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"booking_id"}).AddRow("b-1").AddRow("b-2"))
	mock.ExpectClose()

	store := NewCheckpointStore(db)
	ids, err := store.ListResumable(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListResumable: %v", err)
	}
	if len(ids) != 2 || ids[0] != "b-1" || ids[1] != "b-2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
