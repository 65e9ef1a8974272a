package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors for order contract violations. Any of these returned from
// Validate means the caller built a malformed Order; they represent caller
// bugs, never business outcomes.
var (
	ErrMissingID       = fmt.Errorf("order id required")
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrNegativeTotal   = fmt.Errorf("total must not be negative")
	ErrInvalidCurrency = fmt.Errorf("currency must be a three-letter ISO code")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	SKU string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for sku %s", e.SKU)
}

// Order is one customer order submitted for checkout. The ID doubles as the
// idempotency key: a caller retrying a submission must reuse the same ID to
// observe the original outcome instead of triggering a second charge.
// Immutable once handed to the orchestrator.
type Order struct {
	ID       string
	Items    []Item
	Total    decimal.Decimal
	Currency string
}

// Item is a single order line: a product reference and a positive quantity.
type Item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Validate checks the order invariants. A non-nil result is a contract
// violation and must surface to the caller as an error, not as an outcome.
func (o Order) Validate() error {
	if o.ID == "" {
		return ErrMissingID
	}
	if len(o.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{SKU: item.SKU}
		}
	}
	if o.Total.IsNegative() {
		return ErrNegativeTotal
	}
	if !validCurrency(o.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := range len(code) {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
