// Package checkout implements the point-of-sale transaction orchestrator: it
// sequences an inventory reservation and a payment charge, which are not
// atomic with respect to each other, into a single consistent outcome.
//
// The per-attempt state machine is reserve -> charge -> (on charge failure)
// release. A charge is never attempted without a reservation, and a release is
// attempted exactly once if and only if the reservation succeeded and the
// charge did not. There are no hidden retries; retry policy belongs to the
// caller, which is the only party that knows whether resubmission is safe.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/pos-checkout/internal/domain/inventory"
	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/payment"
)

// Orchestrator processes orders against the injected inventory and payment
// capabilities. Safe for concurrent use; distinct orders proceed fully in
// parallel, while concurrent submissions of the same order ID collapse into a
// single execution.
type Orchestrator struct {
	inventory inventory.Capability
	payments  payment.Capability
	outcomes  Store
	alerts    AlertSink
	tracer    trace.Tracer

	// flight collapses concurrent Process calls with the same order ID: the
	// second caller waits for the first attempt to reach a terminal state and
	// observes the same outcome.
	flight singleflight.Group
}

// New creates an Orchestrator. All dependencies are required.
func New(inv inventory.Capability, pay payment.Capability, outcomes Store, alerts AlertSink, tracer trace.Tracer) *Orchestrator {
	return &Orchestrator{
		inventory: inv,
		payments:  pay,
		outcomes:  outcomes,
		alerts:    alerts,
		tracer:    tracer,
	}
}

// Process runs one order to a terminal outcome.
//
// Expected business failures (inventory unavailable, payment declined or
// unavailable) are captured inside the returned Outcome. A non-nil error is
// returned only for contract violations (a malformed Order), a store fault,
// or ctx ending before the result is available.
//
// A duplicate submission (same order ID, whether concurrent with the first or
// after it completed) never re-executes side effects: it either joins the
// in-flight attempt or replays the retained outcome.
//
// If ctx is cancelled while the attempt is in flight, Process stops waiting
// and returns ctx.Err(), but the reserve/charge/release sequence runs to
// completion on a detached context so a reservation is never left
// uncompensated. The eventual outcome stays retrievable via Lookup.
func (o *Orchestrator) Process(ctx context.Context, ord order.Order) (*Outcome, error) {
	if err := ord.Validate(); err != nil {
		return nil, err
	}

	// The attempt must outlive caller cancellation; only the wait below is
	// bound to ctx.
	detached := context.WithoutCancel(ctx)

	ch := o.flight.DoChan(ord.ID, func() (any, error) {
		return o.attempt(detached, ord)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Outcome), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup resolves an order ID to its retained outcome. It returns an error
// wrapping ErrOutcomeNotFound when no attempt for that ID is terminal within
// the retention window.
func (o *Orchestrator) Lookup(ctx context.Context, orderID string) (*Outcome, error) {
	return o.outcomes.Get(ctx, orderID)
}

// attempt executes the reservation/charge sequence once and retains the
// terminal outcome. It runs inside the single-flight group, so at most one
// attempt per order ID is in progress at any time.
func (o *Orchestrator) attempt(ctx context.Context, ord order.Order) (*Outcome, error) {
	if prev, err := o.outcomes.Get(ctx, ord.ID); err == nil {
		return prev, nil
	} else if !errors.Is(err, ErrOutcomeNotFound) {
		return nil, errors.Wrap(err, "check retained outcome")
	}

	ctx, span := o.tracer.Start(ctx, "checkout.Process",
		trace.WithAttributes(
			attribute.String("order.id", ord.ID),
			attribute.Int("order.items", len(ord.Items)),
			attribute.String("order.currency", ord.Currency),
		))
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("order_id", ord.ID))

	token, err := o.reserve(ctx, ord)
	if err != nil {
		// Nothing was reserved, so there is nothing to compensate.
		lg.Info("reservation failed", zap.Error(err))
		span.SetStatus(codes.Error, "reservation failed")
		return o.retain(ctx, lg, &Outcome{
			Order:               ord,
			Status:              StatusFailed,
			Reason:              ReasonInventoryUnavailable,
			FailureMessage:      err.Error(),
			CompensationApplied: true,
			CompletedAt:         now(),
		})
	}

	receipt, err := o.charge(ctx, ord)
	if err != nil {
		reason := ReasonPaymentUnavailable
		var declined *payment.DeclinedError
		if errors.As(err, &declined) {
			reason = ReasonPaymentDeclined
		}
		lg.Info("charge failed", zap.String("reason", string(reason)), zap.Error(err))
		span.SetStatus(codes.Error, "charge failed")

		// Compensation: exactly one release attempt per failed charge. Its
		// own failure never changes the terminal reason.
		compensated := true
		if relErr := o.release(ctx, token); relErr != nil {
			compensated = false
			lg.Error("release after failed charge did not succeed", zap.Error(relErr))
			o.alerts.CompensationFailed(ctx, ord, token, relErr)
		}

		return o.retain(ctx, lg, &Outcome{
			Order:               ord,
			Status:              StatusFailed,
			Reason:              reason,
			FailureMessage:      err.Error(),
			CompensationApplied: compensated,
			CompletedAt:         now(),
		})
	}

	lg.Info("order settled",
		zap.String("charge_id", receipt.ChargeID),
		zap.String("amount", receipt.Amount.String()),
	)
	return o.retain(ctx, lg, &Outcome{
		Order:               ord,
		Status:              StatusSucceeded,
		Receipt:             receipt,
		CompensationApplied: true,
		CompletedAt:         now(),
	})
}

func (o *Orchestrator) reserve(ctx context.Context, ord order.Order) (inventory.ReservationToken, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Reserve")
	defer span.End()

	token, err := o.inventory.Reserve(ctx, ord.Items)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return token, nil
}

func (o *Orchestrator) charge(ctx context.Context, ord order.Order) (*payment.Receipt, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Charge",
		trace.WithAttributes(attribute.String("amount", ord.Total.String())))
	defer span.End()

	receipt, err := o.payments.Charge(ctx, ord.Total, ord.Currency)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return receipt, nil
}

func (o *Orchestrator) release(ctx context.Context, token inventory.ReservationToken) error {
	ctx, span := o.tracer.Start(ctx, "checkout.Release")
	defer span.End()

	err := o.inventory.Release(ctx, token)
	if err != nil && !errors.Is(err, inventory.ErrAlreadyReleased) {
		span.RecordError(err)
		return err
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// retain stores the terminal outcome for idempotent replay. A store fault at
// this point is logged but does not hide the outcome from the caller: the
// side effects already happened, and the outcome is the only record of them.
func (o *Orchestrator) retain(ctx context.Context, lg *zap.Logger, out *Outcome) (*Outcome, error) {
	if err := o.outcomes.Put(ctx, out); err != nil {
		lg.Error("retain outcome", zap.Error(err))
	}
	return out, nil
}
