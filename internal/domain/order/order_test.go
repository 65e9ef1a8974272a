package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrder() Order {
	return Order{
		ID:       "O1",
		Items:    []Item{{SKU: "X", Quantity: 2}},
		Total:    decimal.RequireFromString("20.00"),
		Currency: "USD",
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validOrder().Validate())
}

func TestValidate_MissingID(t *testing.T) {
	o := validOrder()
	o.ID = ""
	require.ErrorIs(t, o.Validate(), ErrMissingID)
}

func TestValidate_EmptyItems(t *testing.T) {
	o := validOrder()
	o.Items = nil
	require.ErrorIs(t, o.Validate(), ErrEmptyItems)
}

func TestValidate_NonPositiveQuantity(t *testing.T) {
	for _, qty := range []int{0, -1} {
		o := validOrder()
		o.Items = []Item{{SKU: "X", Quantity: qty}}

		var iqErr *InvalidQuantityError
		require.ErrorAs(t, o.Validate(), &iqErr)
		assert.Equal(t, "X", iqErr.SKU)
	}
}

func TestValidate_NegativeTotal(t *testing.T) {
	o := validOrder()
	o.Total = decimal.RequireFromString("-0.01")
	require.ErrorIs(t, o.Validate(), ErrNegativeTotal)
}

func TestValidate_ZeroTotalAllowed(t *testing.T) {
	o := validOrder()
	o.Total = decimal.Zero
	require.NoError(t, o.Validate())
}

func TestValidate_Currency(t *testing.T) {
	for _, code := range []string{"", "US", "USDX", "usd", "U5D"} {
		o := validOrder()
		o.Currency = code
		require.ErrorIs(t, o.Validate(), ErrInvalidCurrency, "currency %q", code)
	}
}
