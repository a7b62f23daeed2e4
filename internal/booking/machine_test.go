package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayfinder/internal/booking/saga"
)

func TestSagaMachine_ForwardPath(t *testing.T) {
	m := newSagaMachine(saga.StatusPending)
	cp := saga.Checkpoint{Status: saga.StatusPending}

	steps := []struct {
		trigger string
		want    saga.Status
	}{
		{triggerPrebooked, saga.StatusPrebooked},
		{triggerAuthorized, saga.StatusAuthorized},
		{triggerConfirmed, saga.StatusConfirmed},
		{triggerCaptured, saga.StatusCaptured},
	}
	for _, step := range steps {
		require.NoError(t, fire(m, &cp, step.trigger))
		assert.Equal(t, step.want, cp.Status)
	}
	assert.True(t, cp.Status.Terminal())
}

func TestSagaMachine_CompensationEdges(t *testing.T) {
	for _, from := range []saga.Status{saga.StatusPrebooked, saga.StatusAuthorized} {
		m := newSagaMachine(from)
		cp := saga.Checkpoint{Status: from}
		require.NoError(t, fire(m, &cp, triggerCompensate), "from %s", from)
		assert.Equal(t, saga.StatusCompensating, cp.Status)

		require.NoError(t, fire(m, &cp, triggerFailed))
		assert.Equal(t, saga.StatusFailed, cp.Status)
	}
}

func TestSagaMachine_CompensatingMayCancel(t *testing.T) {
	m := newSagaMachine(saga.StatusCompensating)
	cp := saga.Checkpoint{Status: saga.StatusCompensating}
	require.NoError(t, fire(m, &cp, triggerCancelled))
	assert.Equal(t, saga.StatusCancelled, cp.Status)
}

func TestSagaMachine_ConfirmedCannotRollBack(t *testing.T) {
	m := newSagaMachine(saga.StatusConfirmed)
	cp := saga.Checkpoint{Status: saga.StatusConfirmed}

	assert.Error(t, fire(m, &cp, triggerCompensate))
	assert.Error(t, fire(m, &cp, triggerFailed))
	assert.Equal(t, saga.StatusConfirmed, cp.Status)

	require.NoError(t, fire(m, &cp, triggerCaptured))
	assert.Equal(t, saga.StatusCaptured, cp.Status)
}

func TestSagaMachine_NoSkippingStates(t *testing.T) {
	m := newSagaMachine(saga.StatusPending)
	cp := saga.Checkpoint{Status: saga.StatusPending}

	assert.Error(t, fire(m, &cp, triggerAuthorized))
	assert.Error(t, fire(m, &cp, triggerConfirmed))
	assert.Error(t, fire(m, &cp, triggerCaptured))
	assert.Equal(t, saga.StatusPending, cp.Status)
}

func TestSagaMachine_TerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []saga.Status{saga.StatusCaptured, saga.StatusFailed, saga.StatusCancelled} {
		m := newSagaMachine(terminal)
		cp := saga.Checkpoint{Status: terminal}
		for _, trigger := range []string{triggerPrebooked, triggerAuthorized, triggerConfirmed, triggerCaptured, triggerCompensate, triggerFailed, triggerCancelled} {
			assert.Error(t, fire(m, &cp, trigger), "%s on %s", trigger, terminal)
		}
		assert.Equal(t, terminal, cp.Status)
	}
}
