package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityError_Classification(t *testing.T) {
	base := errors.New("card declined")

	perm := Permanent(base)
	assert.True(t, IsPermanent(perm))
	assert.ErrorIs(t, perm, base)
	assert.Contains(t, perm.Error(), "permanent")

	trans := Transient(base)
	assert.False(t, IsPermanent(trans))
	assert.ErrorIs(t, trans, base)
	assert.Contains(t, trans.Error(), "transient")

	// Unclassified errors default to transient.
	assert.False(t, IsPermanent(base))
}

func TestFakeActivities_ScriptedOutcomesConsumed(t *testing.T) {
	fake := NewFakeActivities()
	ctx := context.Background()
	boom := Transient(errors.New("flaky"))

	fake.FailNext(OpCapture, boom, 2)

	assert.ErrorIs(t, fake.CapturePayment(ctx, "b-1", "pay-b-1"), boom)
	assert.ErrorIs(t, fake.CapturePayment(ctx, "b-1", "pay-b-1"), boom)
	assert.NoError(t, fake.CapturePayment(ctx, "b-1", "pay-b-1"))
	assert.Equal(t, 3, fake.Calls(OpCapture))
}

func TestFakeActivities_ReferencesDerivedFromBookingID(t *testing.T) {
	fake := NewFakeActivities()
	ctx := context.Background()

	sup, err := fake.Prebook(ctx, "b-9", envTestKey, DateRange{CheckIn: "2026-09-01", CheckOut: "2026-09-02"})
	require.NoError(t, err)
	assert.Equal(t, "sup-b-9", sup)

	// A retry with the same idempotency key yields the same reference.
	again, err := fake.Prebook(ctx, "b-9", envTestKey, DateRange{CheckIn: "2026-09-01", CheckOut: "2026-09-02"})
	require.NoError(t, err)
	assert.Equal(t, sup, again)

	pay, err := fake.AuthorizePayment(ctx, "b-9", "u-1", 120, "EUR")
	require.NoError(t, err)
	assert.Equal(t, "pay-b-9", pay)

	conf, err := fake.ConfirmBooking(ctx, "b-9", sup)
	require.NoError(t, err)
	assert.Equal(t, "conf-b-9", conf)
}

func TestFakeActivities_DelayHonorsContext(t *testing.T) {
	fake := NewFakeActivities()
	fake.DelayNext(OpConfirm, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := fake.ConfirmBooking(ctx, "b-1", "sup-b-1")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
