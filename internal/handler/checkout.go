package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/checkout"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

// Processor is the slice of the orchestrator the transport needs.
type Processor interface {
	Process(ctx context.Context, ord order.Order) (*checkout.Outcome, error)
	Lookup(ctx context.Context, orderID string) (*checkout.Outcome, error)
}

// checkoutRequest is the submission body. The total is accepted as a JSON
// string or number; decimal handles both.
type checkoutRequest struct {
	OrderID  string          `json:"orderId"`
	Items    []order.Item    `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// submit handles POST /api/checkout: runs one order to a terminal outcome.
// Business failures are 200 responses with a failed outcome body; only
// malformed requests and infrastructure faults produce error statuses.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.checkout.Process(r.Context(), order.Order{
		ID:       req.OrderID,
		Items:    req.Items,
		Total:    req.Total,
		Currency: req.Currency,
	})
	if err != nil {
		writeProcessError(w, err)
		return
	}

	writeOutcome(w, http.StatusOK, out)
}

// lookup handles GET /api/checkout/{orderID}: resolves a previously submitted
// order to its retained outcome.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	out, err := h.checkout.Lookup(r.Context(), r.PathValue("orderID"))
	if err != nil {
		if errors.Is(err, checkout.ErrOutcomeNotFound) {
			writeError(w, http.StatusNotFound, "no outcome for this order")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeOutcome(w, http.StatusOK, out)
}

// writeProcessError maps orchestrator errors to HTTP statuses. Contract
// violations are the caller's bug, reported distinctly from outcomes.
func writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrMissingID),
		errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNegativeTotal),
		errors.Is(err, order.ErrInvalidCurrency):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The submission keeps running internally; the caller can re-poll.
		writeError(w, http.StatusServiceUnavailable, "request abandoned, poll the order for its outcome")
	default:
		var iqErr *order.InvalidQuantityError
		if errors.As(err, &iqErr) {
			writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "checkout failed")
	}
}

// writeOutcome renders an outcome. The front end keys its guidance off three
// fields: a failed status with retryable=true means "try again later",
// retryable=false means "use a different payment method", and
// contactSupport=true means stock may be wrongly held.
func writeOutcome(w http.ResponseWriter, status int, out *checkout.Outcome) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(out.Order.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(out.Status)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(out.Order.Total.String()) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(out.Order.Currency) })
		e.Field("completedAt", func(e *jx.Encoder) { e.Str(out.CompletedAt.Format(time.RFC3339Nano)) })

		if out.Succeeded() {
			e.Field("receipt", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("chargeId", func(e *jx.Encoder) { e.Str(out.Receipt.ChargeID) })
					e.Field("amount", func(e *jx.Encoder) { e.Str(out.Receipt.Amount.String()) })
					e.Field("currency", func(e *jx.Encoder) { e.Str(out.Receipt.Currency) })
				})
			})
			return
		}

		e.Field("reason", func(e *jx.Encoder) { e.Str(string(out.Reason)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(out.FailureMessage) })
		e.Field("compensationApplied", func(e *jx.Encoder) { e.Bool(out.CompensationApplied) })
		e.Field("retryable", func(e *jx.Encoder) { e.Bool(out.Reason.Retryable()) })
		e.Field("contactSupport", func(e *jx.Encoder) { e.Bool(!out.CompensationApplied) })
	})
	writeJSON(w, status, &e)
}
