//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/pos-checkout/internal/checkout"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/payment"
)

var testDatabaseURL string

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("checkout"),
		tcpostgres.WithUsername("checkout"),
		tcpostgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	testDatabaseURL, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	return m.Run()
}

func newTestRepo(t *testing.T, retention time.Duration) *OutcomeRepository {
	t.Helper()
	ctx := context.Background()

	pool, err := NewPool(ctx, testDatabaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))

	// Each test works with its own order IDs, so a shared table is fine.
	return NewOutcomeRepository(pool, retention)
}

func succeededOutcome(id string) *checkout.Outcome {
	return &checkout.Outcome{
		Order: order.Order{
			ID:       id,
			Items:    []order.Item{{SKU: "SKU-1", Quantity: 2}},
			Total:    decimal.RequireFromString("20.00"),
			Currency: "USD",
		},
		Status: checkout.StatusSucceeded,
		Receipt: &payment.Receipt{
			ChargeID: "ch_" + id,
			Amount:   decimal.RequireFromString("20.00"),
			Currency: "USD",
		},
		CompensationApplied: true,
		CompletedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestOutcomeRepository_PutGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t, time.Hour)
	ctx := context.Background()

	want := succeededOutcome("it-roundtrip")
	require.NoError(t, repo.Put(ctx, want))

	got, err := repo.Get(ctx, "it-roundtrip")
	require.NoError(t, err)

	assert.Equal(t, want.Order.ID, got.Order.ID)
	assert.Equal(t, want.Order.Items, got.Order.Items)
	assert.True(t, want.Order.Total.Equal(got.Order.Total))
	assert.Equal(t, want.Status, got.Status)
	require.NotNil(t, got.Receipt)
	assert.Equal(t, want.Receipt.ChargeID, got.Receipt.ChargeID)
	assert.True(t, want.Receipt.Amount.Equal(got.Receipt.Amount))
	assert.Equal(t, "USD", got.Receipt.Currency)
	assert.WithinDuration(t, want.CompletedAt, got.CompletedAt, time.Millisecond)
}

func TestOutcomeRepository_FailedWithoutReceipt(t *testing.T) {
	repo := newTestRepo(t, time.Hour)
	ctx := context.Background()

	out := succeededOutcome("it-failed")
	out.Status = checkout.StatusFailed
	out.Receipt = nil
	out.Reason = checkout.ReasonPaymentDeclined
	out.FailureMessage = "insufficient funds"

	require.NoError(t, repo.Put(ctx, out))

	got, err := repo.Get(ctx, "it-failed")
	require.NoError(t, err)
	assert.Nil(t, got.Receipt)
	assert.Equal(t, checkout.ReasonPaymentDeclined, got.Reason)
	assert.Equal(t, "insufficient funds", got.FailureMessage)
	assert.True(t, got.CompensationApplied)
}

func TestOutcomeRepository_GetUnknown(t *testing.T) {
	repo := newTestRepo(t, time.Hour)

	_, err := repo.Get(context.Background(), "it-missing")
	assert.ErrorIs(t, err, checkout.ErrOutcomeNotFound)
}

func TestOutcomeRepository_UpsertOverwrites(t *testing.T) {
	repo := newTestRepo(t, time.Hour)
	ctx := context.Background()

	first := succeededOutcome("it-upsert")
	require.NoError(t, repo.Put(ctx, first))

	second := succeededOutcome("it-upsert")
	second.Receipt.ChargeID = "ch_replacement"
	require.NoError(t, repo.Put(ctx, second))

	got, err := repo.Get(ctx, "it-upsert")
	require.NoError(t, err)
	assert.Equal(t, "ch_replacement", got.Receipt.ChargeID)
}

func TestOutcomeRepository_RetentionCutoff(t *testing.T) {
	repo := newTestRepo(t, time.Hour)
	ctx := context.Background()

	stale := succeededOutcome("it-stale")
	stale.CompletedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, repo.Put(ctx, stale))

	// Row exists but is past retention, so Get treats it as absent.
	_, err := repo.Get(ctx, "it-stale")
	assert.ErrorIs(t, err, checkout.ErrOutcomeNotFound)
}

func TestOutcomeRepository_PurgeExpired(t *testing.T) {
	repo := newTestRepo(t, time.Hour)
	ctx := context.Background()

	stale := succeededOutcome("it-purge-stale")
	stale.CompletedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, repo.Put(ctx, stale))

	fresh := succeededOutcome("it-purge-fresh")
	require.NoError(t, repo.Put(ctx, fresh))

	n, err := repo.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = repo.Get(ctx, "it-purge-fresh")
	assert.NoError(t, err)
}

func TestOutcomeRepository_Unreconciled(t *testing.T) {
	repo := newTestRepo(t, time.Hour)
	ctx := context.Background()

	unreconciled := succeededOutcome("it-unreconciled")
	unreconciled.Status = checkout.StatusFailed
	unreconciled.Receipt = nil
	unreconciled.Reason = checkout.ReasonPaymentDeclined
	unreconciled.CompensationApplied = false
	require.NoError(t, repo.Put(ctx, unreconciled))

	clean := succeededOutcome("it-reconciled")
	require.NoError(t, repo.Put(ctx, clean))

	var seen []string
	err := repo.Unreconciled(ctx, time.Now().Add(-time.Hour), func(out *checkout.Outcome) error {
		seen = append(seen, out.Order.ID)
		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, seen, "it-unreconciled")
	assert.NotContains(t, seen, "it-reconciled")
}
