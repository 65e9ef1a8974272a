package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/checkout"
	"github.com/xenking/pos-checkout/internal/domain/payment"
)

var _ checkout.Store = (*OutcomeRepository)(nil)

// OutcomeRepository implements checkout.Store backed by PostgreSQL. Rows
// older than the retention window are treated as absent by Get and removed
// by PurgeExpired.
type OutcomeRepository struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewOutcomeRepository returns an OutcomeRepository with the given retention
// window.
func NewOutcomeRepository(pool *pgxpool.Pool, retention time.Duration) *OutcomeRepository {
	return &OutcomeRepository{pool: pool, retention: retention}
}

const getOutcomeQuery = `
SELECT status, reason, failure_message, compensation_applied,
       order_items, order_total, order_currency,
       receipt_charge_id, receipt_amount, receipt_currency,
       completed_at
FROM outcomes
WHERE order_id = $1 AND completed_at >= $2`

// Get implements checkout.Store.
func (r *OutcomeRepository) Get(ctx context.Context, id string) (*checkout.Outcome, error) {
	cutoff := time.Now().Add(-r.retention)

	var (
		out       checkout.Outcome
		itemsJSON []byte
		chargeID  *string
		amount    *decimal.Decimal
		rcurrency *string
	)
	err := r.pool.QueryRow(ctx, getOutcomeQuery, id, cutoff).Scan(
		&out.Status,
		&out.Reason,
		&out.FailureMessage,
		&out.CompensationApplied,
		&itemsJSON,
		&out.Order.Total,
		&out.Order.Currency,
		&chargeID,
		&amount,
		&rcurrency,
		&out.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrOutcomeNotFound
		}
		return nil, errors.Wrapf(err, "get outcome %q", id)
	}

	out.Order.ID = id
	if err := json.Unmarshal(itemsJSON, &out.Order.Items); err != nil {
		return nil, errors.Wrapf(err, "decode items for outcome %q", id)
	}
	if chargeID != nil && amount != nil {
		out.Receipt = &payment.Receipt{ChargeID: *chargeID, Amount: *amount}
		if rcurrency != nil {
			out.Receipt.Currency = *rcurrency
		}
	}

	return &out, nil
}

const putOutcomeQuery = `
INSERT INTO outcomes (
    order_id, status, reason, failure_message, compensation_applied,
    order_items, order_total, order_currency,
    receipt_charge_id, receipt_amount, receipt_currency, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (order_id) DO UPDATE SET
    status = EXCLUDED.status,
    reason = EXCLUDED.reason,
    failure_message = EXCLUDED.failure_message,
    compensation_applied = EXCLUDED.compensation_applied,
    order_items = EXCLUDED.order_items,
    order_total = EXCLUDED.order_total,
    order_currency = EXCLUDED.order_currency,
    receipt_charge_id = EXCLUDED.receipt_charge_id,
    receipt_amount = EXCLUDED.receipt_amount,
    receipt_currency = EXCLUDED.receipt_currency,
    completed_at = EXCLUDED.completed_at`

// Put implements checkout.Store.
func (r *OutcomeRepository) Put(ctx context.Context, out *checkout.Outcome) error {
	itemsJSON, err := json.Marshal(out.Order.Items)
	if err != nil {
		return errors.Wrap(err, "encode order items")
	}

	var (
		chargeID  *string
		amount    *decimal.Decimal
		rcurrency *string
	)
	if out.Receipt != nil {
		chargeID = &out.Receipt.ChargeID
		amount = &out.Receipt.Amount
		rcurrency = &out.Receipt.Currency
	}

	_, err = r.pool.Exec(ctx, putOutcomeQuery,
		out.Order.ID,
		out.Status,
		out.Reason,
		out.FailureMessage,
		out.CompensationApplied,
		itemsJSON,
		out.Order.Total,
		out.Order.Currency,
		chargeID,
		amount,
		rcurrency,
		out.CompletedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "put outcome %q", out.Order.ID)
	}
	return nil
}

// PurgeExpired deletes outcomes older than the retention window and returns
// how many rows were removed.
func (r *OutcomeRepository) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.retention)
	tag, err := r.pool.Exec(ctx, `DELETE FROM outcomes WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "purge expired outcomes")
	}
	return tag.RowsAffected(), nil
}

// Unreconciled streams failed outcomes whose compensation did not apply,
// oldest first, for the reconciliation export. The callback is invoked once
// per row; returning an error stops the scan.
func (r *OutcomeRepository) Unreconciled(ctx context.Context, since time.Time, fn func(*checkout.Outcome) error) error {
	rows, err := r.pool.Query(ctx, `
SELECT order_id FROM outcomes
WHERE NOT compensation_applied AND completed_at >= $1
ORDER BY completed_at`, since)
	if err != nil {
		return errors.Wrap(err, "query unreconciled outcomes")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Wrap(err, "scan unreconciled id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate unreconciled ids")
	}

	for _, id := range ids {
		out, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}

// StartCleanup launches a background goroutine that purges expired rows at
// half the retention interval. It stops when ctx is cancelled.
func (r *OutcomeRepository) StartCleanup(ctx context.Context) {
	interval := r.retention / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.PurgeExpired(ctx)
				if err != nil {
					zctx.From(ctx).Error("purge expired outcomes", zap.Error(err))
					continue
				}
				if n > 0 {
					zctx.From(ctx).Info("purged expired outcomes", zap.Int64("rows", n))
				}
			}
		}
	}()
}
