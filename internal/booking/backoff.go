package booking

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before the next retry of a failed step:
// exponential growth from Base by Multiplier, capped at Max, with a random
// jitter of up to JitterFraction of the computed delay. Deterministic when
// Rand is seeded, which is how the tests pin it down.
type Backoff struct {
	Base           time.Duration
	Multiplier     float64
	Max            time.Duration
	JitterFraction float64
	Rand           *rand.Rand
}

// Delay returns the backoff delay for the given 1-based attempt number.
// The pre-jitter curve is non-decreasing in attempt and the result never
// exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := float64(b.Base) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.JitterFraction > 0 {
		var f float64
		if b.Rand != nil {
			f = b.Rand.Float64()
		} else {
			f = rand.Float64()
		}
		delay += delay * b.JitterFraction * f
		if b.Max > 0 && delay > float64(b.Max) {
			delay = float64(b.Max)
		}
	}

	return time.Duration(delay)
}

// StepPolicy bounds the attempts of one saga step. Timeout applies per
// activity call and is distinct from the backoff interval slept between
// attempts.
type StepPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	Backoff     Backoff
	Sleep       func(context.Context, time.Duration) error
}

// Run invokes fn under the policy. Transient failures are retried until the
// attempt budget is spent; permanent failures and parent-context errors
// surface immediately.
func (p StepPolicy) Run(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if IsPermanent(err) || attempt == attempts {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if delay := p.Backoff.Delay(attempt); delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
