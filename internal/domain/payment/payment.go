// Package payment defines the consumed contract for the external payment
// service.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Receipt is the opaque proof of a successful charge. It is embedded in the
// checkout outcome on success.
type Receipt struct {
	ChargeID string          `json:"chargeId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// DeclinedError indicates the charge was rejected for a customer or
// payment-method fault. Retrying with the same instrument will not help.
type DeclinedError struct {
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payment declined: %s", e.Message)
}

// UnavailableError indicates an infrastructure fault: the charge may or may
// not have reached the network, and the caller may retry with a fresh
// idempotency key. Every charge failure that is not a DeclinedError is
// treated as unavailable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("payment unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Capability is the payment contract consumed by the orchestrator.
//
// Refund is not part of the core compensation path (compensation only
// reverses inventory); it exists for out-of-band reconciliation, e.g. undoing
// a charge manually after a failed compensation elsewhere.
type Capability interface {
	Charge(ctx context.Context, amount decimal.Decimal, currency string) (*Receipt, error)
	Refund(ctx context.Context, chargeID string, amount decimal.Decimal) error
}
