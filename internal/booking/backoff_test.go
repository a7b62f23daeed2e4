package booking

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_MonotoneUntilCap(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Multiplier: 2, Max: 5 * time.Second}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, b.Max, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, b.Max, b.Delay(12))
}

func TestBackoff_CapNeverExceededWithJitter(t *testing.T) {
	b := Backoff{
		Base:           time.Second,
		Multiplier:     3,
		Max:            4 * time.Second,
		JitterFraction: 0.5,
		Rand:           rand.New(rand.NewSource(7)),
	}

	for attempt := 1; attempt <= 20; attempt++ {
		assert.LessOrEqual(t, b.Delay(attempt), b.Max, "attempt %d", attempt)
	}
}

func TestBackoff_DeterministicWithSeed(t *testing.T) {
	mk := func() Backoff {
		return Backoff{
			Base:           50 * time.Millisecond,
			Multiplier:     2,
			Max:            time.Second,
			JitterFraction: 0.3,
			Rand:           rand.New(rand.NewSource(42)),
		}
	}

	a, b := mk(), mk()
	for attempt := 1; attempt <= 8; attempt++ {
		assert.Equal(t, a.Delay(attempt), b.Delay(attempt), "attempt %d", attempt)
	}
}

func TestBackoff_JitterStaysWithinFraction(t *testing.T) {
	b := Backoff{
		Base:           100 * time.Millisecond,
		Multiplier:     2,
		Max:            time.Hour,
		JitterFraction: 0.2,
		Rand:           rand.New(rand.NewSource(1)),
	}

	for attempt := 1; attempt <= 6; attempt++ {
		base := Backoff{Base: b.Base, Multiplier: b.Multiplier, Max: b.Max}.Delay(attempt)
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
		assert.LessOrEqual(t, float64(d), float64(base)*1.2+1, "attempt %d", attempt)
	}
}

func TestBackoff_ZeroBaseMeansNoDelay(t *testing.T) {
	assert.Zero(t, Backoff{}.Delay(5))
}

func TestStepPolicy_RetriesTransientOnly(t *testing.T) {
	policy := StepPolicy{
		MaxAttempts: 4,
		Backoff:     Backoff{Base: time.Millisecond},
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStepPolicy_PermanentSurfacesImmediately(t *testing.T) {
	policy := StepPolicy{
		MaxAttempts: 4,
		Backoff:     Backoff{Base: time.Millisecond},
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	boom := Permanent(errors.New("rejected"))
	err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStepPolicy_BudgetExhausted(t *testing.T) {
	policy := StepPolicy{
		MaxAttempts: 3,
		Backoff:     Backoff{Base: time.Millisecond},
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	flaky := Transient(errors.New("still flaky"))
	err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		return flaky
	})
	assert.ErrorIs(t, err, flaky)
	assert.Equal(t, 3, calls)
}

func TestStepPolicy_ContextCancelStopsRetries(t *testing.T) {
	policy := StepPolicy{
		MaxAttempts: 5,
		Backoff:     Backoff{Base: time.Millisecond},
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := policy.Run(ctx, func(context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("flaky"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestStepPolicy_TimeoutAppliesPerCall(t *testing.T) {
	policy := StepPolicy{
		MaxAttempts: 2,
		Timeout:     10 * time.Millisecond,
		Backoff:     Backoff{Base: time.Millisecond},
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0
	err := policy.Run(context.Background(), func(callCtx context.Context) error {
		calls++
		<-callCtx.Done()
		return Transient(callCtx.Err())
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
