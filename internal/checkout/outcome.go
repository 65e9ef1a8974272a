package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/xenking/pos-checkout/internal/domain/order"
	"github.com/xenking/pos-checkout/internal/domain/payment"
)

// Status is the terminal state of one checkout attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// FailureReason classifies a failed attempt for the caller.
//
// The POS front end maps these to user guidance: declined means "do not retry
// with the same card", inventory/payment unavailable means "retry later", and
// a false CompensationApplied flag on top of any reason means "contact
// support" because stock may still be held.
type FailureReason string

const (
	ReasonInventoryUnavailable FailureReason = "inventory_unavailable"
	ReasonPaymentDeclined      FailureReason = "payment_declined"
	ReasonPaymentUnavailable   FailureReason = "payment_unavailable"
)

// Retryable reports whether the caller may safely resubmit the order.
// A declined payment will decline again on the same instrument; everything
// else was an infrastructure fault.
func (r FailureReason) Retryable() bool {
	return r != ReasonPaymentDeclined
}

// Outcome is the immutable, terminal record of one checkout attempt. Only the
// orchestrator constructs Outcomes; callers read them. Once an Outcome exists
// for an order ID, no further capability calls are made for that ID within
// the retention window.
type Outcome struct {
	Order  order.Order
	Status Status

	// Receipt is set only when Status is StatusSucceeded.
	Receipt *payment.Receipt

	// Reason and FailureMessage are set only when Status is StatusFailed.
	Reason         FailureReason
	FailureMessage string

	// CompensationApplied is true when no compensation was needed (nothing
	// was reserved, or the attempt succeeded) or when the release after a
	// failed charge went through. False means inventory may still be wrongly
	// held and an operator alert was emitted.
	CompensationApplied bool

	CompletedAt time.Time
}

// Succeeded reports whether the attempt settled.
func (o *Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// ErrOutcomeNotFound is returned by a Store when no terminal outcome is
// retained for the given order ID.
var ErrOutcomeNotFound = fmt.Errorf("outcome not found")

// Store retains terminal Outcomes keyed by order ID so duplicate submissions
// replay the original result instead of re-executing side effects. How long an
// outcome stays retrievable is the store's retention window. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the retained outcome for id, or an error wrapping
	// ErrOutcomeNotFound when none is retained.
	Get(ctx context.Context, id string) (*Outcome, error)

	// Put retains a terminal outcome. Overwriting an existing entry for the
	// same ID is allowed and must leave a complete outcome in place.
	Put(ctx context.Context, outcome *Outcome) error
}
