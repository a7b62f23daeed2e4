package booking

import (
	"github.com/qmuntal/stateless"

	"stayfinder/internal/booking/saga"
)

// Saga triggers. Each (status, trigger) pair permitted below is a legal
// transition of the booking state machine; everything else is rejected by
// the machine, which keeps the transition table exhaustively checkable.
const (
	triggerPrebooked   = "prebook-ok"
	triggerAuthorized  = "authorize-ok"
	triggerConfirmed   = "confirm-ok"
	triggerCaptured    = "capture-ok"
	triggerCompensate  = "compensate"
	triggerFailed      = "failed"
	triggerCancelled   = "cancelled"
)

// newSagaMachine builds the transition table seeded at the given status.
//
//	pending --prebook ok--> prebooked --authorize ok--> authorized
//	  --confirm ok--> confirmed --capture ok--> captured
//
// Failure edges route through compensating except from pending, where
// nothing external was committed yet. Capture failure has no edge at all:
// a confirmed booking with a failed capture stays confirmed with an alert.
func newSagaMachine(status saga.Status) *stateless.StateMachine {
	m := stateless.NewStateMachine(status)

	m.Configure(saga.StatusPending).
		Permit(triggerPrebooked, saga.StatusPrebooked).
		Permit(triggerFailed, saga.StatusFailed).
		Permit(triggerCancelled, saga.StatusCancelled)

	m.Configure(saga.StatusPrebooked).
		Permit(triggerAuthorized, saga.StatusAuthorized).
		Permit(triggerCompensate, saga.StatusCompensating)

	m.Configure(saga.StatusAuthorized).
		Permit(triggerConfirmed, saga.StatusConfirmed).
		Permit(triggerCompensate, saga.StatusCompensating)

	m.Configure(saga.StatusConfirmed).
		Permit(triggerCaptured, saga.StatusCaptured)

	m.Configure(saga.StatusCompensating).
		Permit(triggerFailed, saga.StatusFailed).
		Permit(triggerCancelled, saga.StatusCancelled)

	return m
}

// fire advances the machine and mirrors the new state onto the checkpoint.
func fire(m *stateless.StateMachine, cp *saga.Checkpoint, trigger string) error {
	if err := m.Fire(trigger); err != nil {
		return err
	}
	cp.Status = m.MustState().(saga.Status)
	return nil
}
