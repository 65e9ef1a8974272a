// Package inventory defines the consumed contract for the external inventory
// service. The orchestrator only ever talks to it through the Capability
// interface; concrete variants (HTTP adapter, test double) are injected at
// construction time.
package inventory

import (
	"context"
	"fmt"

	"github.com/xenking/pos-checkout/internal/domain/order"
)

// ReservationToken is the opaque handle returned by a successful reservation.
// It is required to release that exact reservation and is never exposed to
// callers of the orchestrator.
type ReservationToken string

// ErrAlreadyReleased is the benign result of releasing an unknown or
// already-released token. Release is idempotent by contract, so adapters map
// "nothing to release" responses to this error and callers treat it as success.
var ErrAlreadyReleased = fmt.Errorf("reservation already released")

// UnavailableError wraps any reservation failure: out of stock, timeouts,
// transport faults. The contract guarantees all-or-nothing reservation, so a
// failed Reserve holds nothing and needs no compensation.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("inventory unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Capability is the inventory contract consumed by the orchestrator.
type Capability interface {
	// Reserve atomically reserves all items or none. Partial reservation is
	// forbidden by contract.
	Reserve(ctx context.Context, items []order.Item) (ReservationToken, error)

	// Release undoes a prior reservation. Idempotent: releasing an unknown or
	// already-released token returns ErrAlreadyReleased and must not corrupt
	// state.
	Release(ctx context.Context, token ReservationToken) error
}
