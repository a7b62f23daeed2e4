package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"stayfinder/internal/booking/saga"
	"stayfinder/internal/inventory"
)

// Config carries the orchestrator's tunables.
type Config struct {
	// Steps bounds the forward steps (prebook, authorize, confirm, capture).
	Steps StepPolicy
	// Compensations bounds the best-effort undo calls (refund,
	// cancel-prebook); smaller budget, failures escalate instead of block.
	Compensations StepPolicy
	// LeaseTTL is how long a worker owns a checkpoint before a resumer may
	// fence it off.
	LeaseTTL time.Duration
	// Workers bounds concurrently running sagas.
	Workers int64
	// ResumeBatch caps how many stalled sagas one Resume pass picks up.
	ResumeBatch int
}

// DefaultConfig returns the tunables used when env config is absent.
func DefaultConfig() Config {
	return Config{
		Steps: StepPolicy{
			MaxAttempts: 4,
			Timeout:     5 * time.Second,
			Backoff:     Backoff{Base: 100 * time.Millisecond, Multiplier: 2, Max: 5 * time.Second, JitterFraction: 0.2},
		},
		Compensations: StepPolicy{
			MaxAttempts: 3,
			Timeout:     5 * time.Second,
			Backoff:     Backoff{Base: 100 * time.Millisecond, Multiplier: 2, Max: 2 * time.Second, JitterFraction: 0.2},
		},
		LeaseTTL:    time.Minute,
		Workers:     16,
		ResumeBatch: 100,
	}
}

// Orchestrator drives booking sagas: it calls activities in order, persists
// a checkpoint after every transition, decrements inventory atomically with
// booking-record creation at the confirmed transition, and runs
// compensations in reverse order on unrecoverable failure.
type Orchestrator struct {
	inventory   inventory.Store
	checkpoints saga.CheckpointStore
	activities  Activities
	events      EventPublisher
	logf        func(format string, args ...any)

	steps       StepPolicy
	comps       StepPolicy
	leaseTTL    time.Duration
	resumeBatch int
	pool        *Pool
	now         func() time.Time
	newID       func() string
}

// NewOrchestrator constructs an Orchestrator. A nil events publisher falls
// back to logging; a nil logf falls back to log.Printf.
func NewOrchestrator(store inventory.Store, checkpoints saga.CheckpointStore, activities Activities, events EventPublisher, cfg Config, logf func(format string, args ...any)) *Orchestrator {
	if logf == nil {
		logf = log.Printf
	}
	if events == nil {
		events = NewLogPublisher(logf)
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = time.Minute
	}
	resumeBatch := cfg.ResumeBatch
	if resumeBatch <= 0 {
		resumeBatch = 100
	}
	return &Orchestrator{
		inventory:   store,
		checkpoints: checkpoints,
		activities:  activities,
		events:      events,
		logf:        logf,
		steps:       cfg.Steps,
		comps:       cfg.Compensations,
		leaseTTL:    leaseTTL,
		resumeBatch: resumeBatch,
		pool:        NewPool(cfg.Workers),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Submit admits the request and runs its saga asynchronously on the worker
// pool, returning the booking id immediately.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	bookingID, err := o.admit(ctx, req)
	if err != nil {
		return "", err
	}

	// The saga outlives the request: detach from the caller's cancellation
	// but keep its values.
	runCtx := context.WithoutCancel(ctx)
	if err := o.pool.Go(ctx, func() {
		if _, err := o.run(runCtx, bookingID); err != nil {
			o.logf("booking %s: saga run: %v", bookingID, err)
		}
	}); err != nil {
		return "", err
	}
	return bookingID, nil
}

// Execute admits the request and drives the saga to a terminal (or
// alert-pending) state before returning the final checkpoint.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (saga.Checkpoint, error) {
	bookingID, err := o.admit(ctx, req)
	if err != nil {
		return saga.Checkpoint{}, err
	}
	return o.run(ctx, bookingID)
}

// Get returns the booking's current checkpoint.
func (o *Orchestrator) Get(ctx context.Context, bookingID string) (saga.Checkpoint, error) {
	return o.checkpoints.Get(ctx, bookingID)
}

// Cancel cancels a booking. While pending nothing external was committed
// and the saga ends immediately; after prebook the cancellation runs the
// normal compensation chain. A saga being processed by a worker cannot be
// cancelled mid-flight (ErrSagaRunning); terminal bookings, including a
// confirmed booking awaiting capture reconciliation, return
// ErrAlreadyTerminal.
func (o *Orchestrator) Cancel(ctx context.Context, bookingID string) (saga.Checkpoint, error) {
	lease := o.newID()
	cp, err := o.checkpoints.Acquire(ctx, bookingID, lease, o.leaseTTL)
	if err != nil {
		if errors.Is(err, saga.ErrLeaseHeld) {
			return saga.Checkpoint{}, ErrSagaRunning
		}
		return saga.Checkpoint{}, err
	}

	if cp.Status.Terminal() || cp.Status == saga.StatusConfirmed {
		o.release(ctx, bookingID, lease)
		return cp, ErrAlreadyTerminal
	}

	m := newSagaMachine(cp.Status)
	cp.CancelRequested = true
	cp.FailureReason = "cancelled by caller"

	if cp.Status == saga.StatusPending {
		if err := fire(m, &cp, triggerCancelled); err != nil {
			o.release(ctx, bookingID, lease)
			return cp, err
		}
		if err := o.save(ctx, &cp, lease); err != nil {
			o.release(ctx, bookingID, lease)
			return cp, err
		}
		o.recordTerminalBooking(ctx, cp)
		o.emit(ctx, cp)
		o.release(ctx, bookingID, lease)
		return cp, nil
	}

	if cp.Status != saga.StatusCompensating {
		if err := fire(m, &cp, triggerCompensate); err != nil {
			o.release(ctx, bookingID, lease)
			return cp, err
		}
	}
	if err := o.save(ctx, &cp, lease); err != nil {
		o.release(ctx, bookingID, lease)
		return cp, err
	}
	if err := o.compensate(ctx, &cp, m, lease); err != nil {
		// Hand the lease back so a retried cancel does not wait out the TTL.
		o.release(ctx, bookingID, lease)
		return cp, err
	}
	o.release(ctx, bookingID, lease)
	return cp, nil
}

// Resume schedules every stalled non-terminal saga (expired lease) onto the
// worker pool, oldest first. Called at startup and on a timer.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	ids, err := o.checkpoints.ListResumable(ctx, o.resumeBatch)
	if err != nil {
		return 0, err
	}
	for _, bookingID := range ids {
		bookingID := bookingID
		if err := o.pool.Go(ctx, func() {
			if _, err := o.run(ctx, bookingID); err != nil && !errors.Is(err, ErrSagaRunning) {
				o.logf("booking %s: resume: %v", bookingID, err)
			}
		}); err != nil {
			return len(ids), err
		}
	}
	return len(ids), nil
}

// ResumeLoop runs Resume every interval until ctx ends.
func (o *Orchestrator) ResumeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := o.Resume(ctx); err != nil {
				o.logf("saga resume pass: %v", err)
			} else if n > 0 {
				o.logf("saga resume pass picked up %d bookings", n)
			}
		}
	}
}

// Drain waits for every in-flight saga to reach a checkpoint or terminal
// state. Called on shutdown.
func (o *Orchestrator) Drain() {
	o.pool.Wait()
}

// admit validates the request, fails fast when the unit is already sold out
// (before any external side effect), and creates the initial checkpoint.
func (o *Orchestrator) admit(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	available, err := o.inventory.CheckAvailable(ctx, req.UnitKey)
	if err != nil {
		return "", err
	}
	if available < 1 {
		return "", inventory.ErrInsufficientInventory
	}

	now := o.now()
	cp := saga.Checkpoint{
		BookingID: o.newID(),
		UnitKey:   req.UnitKey,
		CheckIn:   req.Dates.CheckIn,
		CheckOut:  req.Dates.CheckOut,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    saga.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.checkpoints.Create(ctx, cp); err != nil {
		return "", err
	}
	return cp.BookingID, nil
}

// run acquires the saga lease and drives the state machine until a terminal
// state or a raised alert. Infrastructure errors (lost lease, cancelled
// context, checkpoint store failures) abort the run and leave the
// checkpoint for a later resume.
func (o *Orchestrator) run(ctx context.Context, bookingID string) (saga.Checkpoint, error) {
	lease := o.newID()
	cp, err := o.checkpoints.Acquire(ctx, bookingID, lease, o.leaseTTL)
	if err != nil {
		if errors.Is(err, saga.ErrLeaseHeld) {
			return saga.Checkpoint{}, ErrSagaRunning
		}
		return saga.Checkpoint{}, err
	}

	m := newSagaMachine(cp.Status)
	for !cp.Status.Terminal() && !cp.AlertRaised {
		switch cp.Status {
		case saga.StatusPending:
			err = o.stepPrebook(ctx, &cp, m, lease)
		case saga.StatusPrebooked:
			err = o.stepAuthorize(ctx, &cp, m, lease)
		case saga.StatusAuthorized:
			err = o.stepConfirm(ctx, &cp, m, lease)
		case saga.StatusConfirmed:
			err = o.stepCapture(ctx, &cp, m, lease)
		case saga.StatusCompensating:
			err = o.compensate(ctx, &cp, m, lease)
		default:
			err = fmt.Errorf("unexpected saga status %q", cp.Status)
		}
		if err != nil {
			return cp, err
		}
	}

	o.release(ctx, bookingID, lease)
	return cp, nil
}

func (o *Orchestrator) stepPrebook(ctx context.Context, cp *saga.Checkpoint, m *stateless.StateMachine, lease string) error {
	var supplierRef string
	err := o.steps.Run(ctx, func(callCtx context.Context) error {
		ref, err := o.activities.Prebook(callCtx, cp.BookingID, cp.UnitKey, DateRange{CheckIn: cp.CheckIn, CheckOut: cp.CheckOut})
		if err == nil {
			supplierRef = ref
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Nothing was reserved externally: fail without compensation.
		cp.FailureReason = "prebook: " + err.Error()
		if err := fire(m, cp, triggerFailed); err != nil {
			return err
		}
		if err := o.save(ctx, cp, lease); err != nil {
			return err
		}
		o.recordTerminalBooking(ctx, *cp)
		o.emit(ctx, *cp)
		return nil
	}

	cp.SupplierRef = supplierRef
	if err := fire(m, cp, triggerPrebooked); err != nil {
		return err
	}
	return o.save(ctx, cp, lease)
}

func (o *Orchestrator) stepAuthorize(ctx context.Context, cp *saga.Checkpoint, m *stateless.StateMachine, lease string) error {
	var paymentRef string
	err := o.steps.Run(ctx, func(callCtx context.Context) error {
		ref, err := o.activities.AuthorizePayment(callCtx, cp.BookingID, cp.UserID, cp.Amount, cp.Currency)
		if err == nil {
			paymentRef = ref
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return o.beginCompensation(ctx, cp, m, lease, "authorize-payment: "+err.Error())
	}

	cp.PaymentRef = paymentRef
	if err := fire(m, cp, triggerAuthorized); err != nil {
		return err
	}
	return o.save(ctx, cp, lease)
}

// stepConfirm confirms with the supplier, then commits the inventory
// decrement and the booking record in one short-lived transaction. The
// decrement happens here, at confirm, never earlier, so a request that
// loses the unit is refunded instead of charged.
func (o *Orchestrator) stepConfirm(ctx context.Context, cp *saga.Checkpoint, m *stateless.StateMachine, lease string) error {
	var confirmID string
	err := o.steps.Run(ctx, func(callCtx context.Context) error {
		id, err := o.activities.ConfirmBooking(callCtx, cp.BookingID, cp.SupplierRef)
		if err == nil {
			confirmID = id
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return o.beginCompensation(ctx, cp, m, lease, "confirm-booking: "+err.Error())
	}
	cp.ConfirmID = confirmID

	record := inventory.Booking{
		ID:          cp.BookingID,
		Key:         cp.UnitKey,
		UserID:      cp.UserID,
		Status:      string(saga.StatusConfirmed),
		SupplierRef: cp.SupplierRef,
		PaymentRef:  cp.PaymentRef,
		Amount:      cp.Amount,
		Currency:    cp.Currency,
	}
	if _, err := o.inventory.DecrementAndRecord(ctx, cp.UnitKey, 1, record); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return o.beginCompensation(ctx, cp, m, lease, "inventory: "+err.Error())
	}

	if err := fire(m, cp, triggerConfirmed); err != nil {
		return err
	}
	if err := o.save(ctx, cp, lease); err != nil {
		return err
	}
	o.emit(ctx, *cp)
	return nil
}

// stepCapture settles the payment. Capture failure after the retry budget
// does not roll the booking back: the supplier has confirmed and the room
// is committed. The saga parks in confirmed with a raised alert and capture
// is reconciled out-of-band by an operator.
func (o *Orchestrator) stepCapture(ctx context.Context, cp *saga.Checkpoint, m *stateless.StateMachine, lease string) error {
	err := o.steps.Run(ctx, func(callCtx context.Context) error {
		return o.activities.CapturePayment(callCtx, cp.BookingID, cp.PaymentRef)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		cp.AlertRaised = true
		cp.FailureReason = "capture-payment: " + err.Error()
		if err := o.save(ctx, cp, lease); err != nil {
			return err
		}
		o.logf("booking %s: capture failed after retry budget, operator attention required: %v", cp.BookingID, err)
		o.emit(ctx, *cp)
		return nil
	}

	if err := fire(m, cp, triggerCaptured); err != nil {
		return err
	}
	if err := o.save(ctx, cp, lease); err != nil {
		return err
	}
	if err := o.inventory.UpdateBookingStatus(ctx, cp.BookingID, string(saga.StatusCaptured)); err != nil {
		o.logf("booking %s: update booking record: %v", cp.BookingID, err)
	}
	o.emit(ctx, *cp)
	return nil
}

func (o *Orchestrator) beginCompensation(ctx context.Context, cp *saga.Checkpoint, m *stateless.StateMachine, lease, reason string) error {
	cp.FailureReason = reason
	if err := fire(m, cp, triggerCompensate); err != nil {
		return err
	}
	if err := o.save(ctx, cp, lease); err != nil {
		return err
	}
	return o.compensate(ctx, cp, m, lease)
}

// compensate undoes the saga's external side effects in reverse cost
// order: payment first, then the supplier hold. Each completed compensation
// is persisted before the next begins so a resumed saga never repeats one.
// A compensation that exhausts its own budget is escalated, never allowed
// to block the saga.
func (o *Orchestrator) compensate(ctx context.Context, cp *saga.Checkpoint, m *stateless.StateMachine, lease string) error {
	if cp.PaymentRef != "" && !cp.RefundDone {
		err := o.comps.Run(ctx, func(callCtx context.Context) error {
			return o.activities.RefundPayment(callCtx, cp.BookingID, cp.PaymentRef)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			o.logf("booking %s: refund-payment compensation exhausted, operator attention required: %v", cp.BookingID, err)
		}
		cp.RefundDone = true
		if err := o.save(ctx, cp, lease); err != nil {
			return err
		}
	}

	if cp.SupplierRef != "" && !cp.CancelPrebookDone {
		err := o.comps.Run(ctx, func(callCtx context.Context) error {
			return o.activities.CancelPrebook(callCtx, cp.BookingID, cp.SupplierRef)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			o.logf("booking %s: cancel-prebook compensation exhausted, operator attention required: %v", cp.BookingID, err)
		}
		cp.CancelPrebookDone = true
		if err := o.save(ctx, cp, lease); err != nil {
			return err
		}
	}

	trigger := triggerFailed
	if cp.CancelRequested {
		trigger = triggerCancelled
	}
	if err := fire(m, cp, trigger); err != nil {
		return err
	}
	if err := o.save(ctx, cp, lease); err != nil {
		return err
	}
	o.recordTerminalBooking(ctx, *cp)
	o.emit(ctx, *cp)
	return nil
}

// recordTerminalBooking writes the historical booking row for sagas that
// ended before the confirmed transition created one. Failures are logged;
// the checkpoint already carries the authoritative outcome.
func (o *Orchestrator) recordTerminalBooking(ctx context.Context, cp saga.Checkpoint) {
	record := inventory.Booking{
		ID:          cp.BookingID,
		Key:         cp.UnitKey,
		UserID:      cp.UserID,
		Status:      string(cp.Status),
		SupplierRef: cp.SupplierRef,
		PaymentRef:  cp.PaymentRef,
		Amount:      cp.Amount,
		Currency:    cp.Currency,
	}
	if err := o.inventory.RecordBooking(ctx, record); err != nil {
		o.logf("booking %s: record terminal booking: %v", cp.BookingID, err)
	}
}

func (o *Orchestrator) save(ctx context.Context, cp *saga.Checkpoint, lease string) error {
	cp.UpdatedAt = o.now()
	return o.checkpoints.Save(ctx, *cp, lease)
}

func (o *Orchestrator) release(ctx context.Context, bookingID, lease string) {
	if err := o.checkpoints.Release(ctx, bookingID, lease); err != nil && !errors.Is(err, saga.ErrLeaseLost) {
		o.logf("booking %s: release lease: %v", bookingID, err)
	}
}

func (o *Orchestrator) emit(ctx context.Context, cp saga.Checkpoint) {
	ev := Event{
		ID:        o.newID(),
		BookingID: cp.BookingID,
		Status:    cp.Status,
		Reason:    cp.FailureReason,
		Alert:     cp.AlertRaised,
		At:        o.now(),
	}
	if err := o.events.Publish(ctx, ev); err != nil {
		o.logf("booking %s: publish %s event: %v", cp.BookingID, cp.Status, err)
	}
}
