package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/pos-checkout/internal/domain/inventory"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/payment"
)

// --- Test doubles ---

type mockInventory struct {
	mu           sync.Mutex
	reserveCalls int
	releaseCalls int
	released     []inventory.ReservationToken

	reserveErr error
	releaseErr error
	token      inventory.ReservationToken
}

func (m *mockInventory) Reserve(_ context.Context, _ []order.Item) (inventory.ReservationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveCalls++
	if m.reserveErr != nil {
		return "", m.reserveErr
	}
	return m.token, nil
}

func (m *mockInventory) Release(_ context.Context, token inventory.ReservationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	m.released = append(m.released, token)
	return m.releaseErr
}

func (m *mockInventory) counts() (reserves, releases int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveCalls, m.releaseCalls
}

type mockPayment struct {
	mu          sync.Mutex
	chargeCalls int

	chargeErr error
	receipt   *payment.Receipt

	// block, when non-nil, is received from before Charge returns. It lets
	// tests hold a charge in flight.
	block chan struct{}
}

func (m *mockPayment) Charge(_ context.Context, amount decimal.Decimal, currency string) (*payment.Receipt, error) {
	m.mu.Lock()
	m.chargeCalls++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if m.chargeErr != nil {
		return nil, m.chargeErr
	}
	if m.receipt != nil {
		return m.receipt, nil
	}
	return &payment.Receipt{ChargeID: "ch_1", Amount: amount, Currency: currency}, nil
}

func (m *mockPayment) Refund(_ context.Context, _ string, _ decimal.Decimal) error {
	return nil
}

func (m *mockPayment) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chargeCalls
}

type spyAlerts struct {
	mu     sync.Mutex
	events []string
}

func (s *spyAlerts) CompensationFailed(_ context.Context, ord order.Order, _ inventory.ReservationToken, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ord.ID)
}

func (s *spyAlerts) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// fakeStore is a minimal map-backed Store so tests stay within this package.
type fakeStore struct {
	mu       sync.Mutex
	outcomes map[string]*Outcome
	putErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{outcomes: make(map[string]*Outcome)}
}

func (s *fakeStore) Get(_ context.Context, id string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outcomes[id]
	if !ok {
		return nil, ErrOutcomeNotFound
	}
	return out, nil
}

func (s *fakeStore) Put(_ context.Context, out *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.outcomes[out.Order.ID] = out
	return nil
}

// --- Helpers ---

func testOrder() order.Order {
	return order.Order{
		ID:       "O1",
		Items:    []order.Item{{SKU: "X", Quantity: 2}},
		Total:    decimal.RequireFromString("20.00"),
		Currency: "USD",
	}
}

type fixture struct {
	inv    *mockInventory
	pay    *mockPayment
	store  *fakeStore
	alerts *spyAlerts
	orch   *Orchestrator
}

func newFixture() *fixture {
	inv := &mockInventory{token: "res_1"}
	pay := &mockPayment{}
	store := newFakeStore()
	alerts := &spyAlerts{}
	tracer := noop.NewTracerProvider().Tracer("test")
	return &fixture{
		inv:    inv,
		pay:    pay,
		store:  store,
		alerts: alerts,
		orch:   New(inv, pay, store, alerts, tracer),
	}
}

// --- Tests ---

func TestProcess_ContractViolation(t *testing.T) {
	f := newFixture()

	bad := testOrder()
	bad.Items = nil

	_, err := f.orch.Process(context.Background(), bad)
	require.ErrorIs(t, err, order.ErrEmptyItems)

	reserves, _ := f.inv.counts()
	assert.Zero(t, reserves, "no capability call for a malformed order")
	assert.Zero(t, f.pay.calls())
}

func TestProcess_Settled(t *testing.T) {
	f := newFixture()

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	require.NotNil(t, out.Receipt)
	assert.True(t, decimal.RequireFromString("20.00").Equal(out.Receipt.Amount))
	assert.True(t, out.CompensationApplied)
	assert.Equal(t, testOrder(), out.Order)

	reserves, releases := f.inv.counts()
	assert.Equal(t, 1, reserves)
	assert.Zero(t, releases, "release never runs on success")
	assert.Equal(t, 1, f.pay.calls())
}

func TestProcess_ReservationFails(t *testing.T) {
	f := newFixture()
	f.inv.reserveErr = &inventory.UnavailableError{Err: errors.New("out of stock")}

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonInventoryUnavailable, out.Reason)
	assert.True(t, out.CompensationApplied, "nothing reserved, nothing to compensate")
	assert.Equal(t, testOrder(), out.Order)
	assert.Zero(t, f.pay.calls(), "payment never attempted without a reservation")
}

func TestProcess_PaymentDeclined(t *testing.T) {
	f := newFixture()
	f.pay.chargeErr = &payment.DeclinedError{Code: "card_declined", Message: "insufficient funds"}

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ReasonPaymentDeclined, out.Reason)
	assert.True(t, out.CompensationApplied)
	assert.False(t, out.Reason.Retryable())

	_, releases := f.inv.counts()
	assert.Equal(t, 1, releases, "release attempted exactly once")
	assert.Equal(t, []inventory.ReservationToken{"res_1"}, f.inv.released, "release uses the matching token")
	assert.Zero(t, f.alerts.count())
}

func TestProcess_PaymentUnavailable(t *testing.T) {
	f := newFixture()
	f.pay.chargeErr = &payment.UnavailableError{Err: errors.New("gateway timeout")}

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, ReasonPaymentUnavailable, out.Reason)
	assert.True(t, out.Reason.Retryable())
	assert.True(t, out.CompensationApplied)

	_, releases := f.inv.counts()
	assert.Equal(t, 1, releases)
}

func TestProcess_CompensationFails(t *testing.T) {
	f := newFixture()
	f.pay.chargeErr = &payment.DeclinedError{Message: "declined"}
	f.inv.releaseErr = errors.New("inventory service down")

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, ReasonPaymentDeclined, out.Reason, "compensation failure never overrides the payment reason")
	assert.False(t, out.CompensationApplied)
	assert.Equal(t, 1, f.alerts.count(), "operator alert emitted")
}

func TestProcess_BenignAlreadyReleased(t *testing.T) {
	f := newFixture()
	f.pay.chargeErr = &payment.DeclinedError{Message: "declined"}
	f.inv.releaseErr = inventory.ErrAlreadyReleased

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.True(t, out.CompensationApplied, "already-released is a benign result")
	assert.Zero(t, f.alerts.count())
}

func TestProcess_ReplaysRetainedOutcome(t *testing.T) {
	f := newFixture()

	first, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	second, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	reserves, _ := f.inv.counts()
	assert.Equal(t, 1, reserves, "duplicate submission must not re-reserve")
	assert.Equal(t, 1, f.pay.calls(), "duplicate submission must not re-charge")
}

func TestProcess_ConcurrentSameID(t *testing.T) {
	f := newFixture()
	f.pay.block = make(chan struct{})

	type result struct {
		out *Outcome
		err error
	}
	results := make(chan result, 2)
	for range 2 {
		go func() {
			out, err := f.orch.Process(context.Background(), testOrder())
			results <- result{out: out, err: err}
		}()
	}

	// Wait until the first attempt holds the charge in flight, then let both
	// callers observe its completion.
	require.Eventually(t, func() bool { return f.pay.calls() == 1 }, time.Second, time.Millisecond)
	close(f.pay.block)

	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.out, second.out, "both callers observe the same outcome")

	reserves, _ := f.inv.counts()
	assert.Equal(t, 1, reserves, "exactly one reservation")
	assert.Equal(t, 1, f.pay.calls(), "exactly one charge")
}

func TestProcess_CancelledCallerDoesNotAbortSequence(t *testing.T) {
	f := newFixture()
	f.pay.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := f.orch.Process(ctx, testOrder())
		errs <- err
	}()

	require.Eventually(t, func() bool { return f.pay.calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	// The in-flight sequence still runs to completion and retains its outcome.
	close(f.pay.block)
	require.Eventually(t, func() bool {
		out, err := f.orch.Lookup(context.Background(), "O1")
		return err == nil && out.Succeeded()
	}, time.Second, time.Millisecond)
}

func TestProcess_StorePutFailureStillReturnsOutcome(t *testing.T) {
	f := newFixture()
	f.store.putErr = errors.New("store down")

	out, err := f.orch.Process(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, out.Succeeded(), "the outcome is the only record of completed side effects")
}

func TestLookup_Unknown(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Lookup(context.Background(), "missing")
	require.ErrorIs(t, err, ErrOutcomeNotFound)
}
