package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-checkout/internal/checkout"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

func testOutcome(id string) *checkout.Outcome {
	return &checkout.Outcome{
		Order: order.Order{
			ID:       id,
			Items:    []order.Item{{SKU: "X", Quantity: 1}},
			Total:    decimal.RequireFromString("10.00"),
			Currency: "USD",
		},
		Status:              checkout.StatusFailed,
		Reason:              checkout.ReasonPaymentDeclined,
		CompensationApplied: true,
		CompletedAt:         time.Now().UTC(),
	}
}

func TestOutcomeStore_GetUnknown(t *testing.T) {
	s := NewOutcomeStore(time.Minute)

	_, err := s.Get(context.Background(), "never-seen")
	require.ErrorIs(t, err, checkout.ErrOutcomeNotFound)
}

func TestOutcomeStore_PutGet(t *testing.T) {
	s := NewOutcomeStore(time.Minute)
	out := testOutcome("O1")

	require.NoError(t, s.Put(context.Background(), out))

	got, err := s.Get(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, out, got)
}

func TestOutcomeStore_Overwrite(t *testing.T) {
	s := NewOutcomeStore(time.Minute)
	require.NoError(t, s.Put(context.Background(), testOutcome("O1")))

	second := testOutcome("O1")
	second.Status = checkout.StatusSucceeded
	second.Reason = ""
	require.NoError(t, s.Put(context.Background(), second))

	got, err := s.Get(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusSucceeded, got.Status)
}

func TestOutcomeStore_Expiry(t *testing.T) {
	s := NewOutcomeStore(10 * time.Millisecond)
	require.NoError(t, s.Put(context.Background(), testOutcome("O1")))

	_, err := s.Get(context.Background(), "O1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = s.Get(context.Background(), "O1")
	require.ErrorIs(t, err, checkout.ErrOutcomeNotFound)
}

func TestOutcomeStore_Cleanup(t *testing.T) {
	s := NewOutcomeStore(10 * time.Millisecond)
	require.NoError(t, s.Put(context.Background(), testOutcome("O1")))
	require.NoError(t, s.Put(context.Background(), testOutcome("O2")))

	time.Sleep(20 * time.Millisecond)
	s.cleanup(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Empty(t, s.outcomes)
}
