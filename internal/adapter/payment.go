package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/payment"
)

var _ payment.Capability = (*PaymentClient)(nil)

// PaymentClient implements payment.Capability against a remote payment
// service. A 402 response is a decline (customer fault, same instrument will
// decline again); every other failure, timeouts included, is surfaced as
// unavailable so the caller knows a retry with a fresh idempotency key is an
// option.
type PaymentClient struct {
	baseURL string
	client  *http.Client
}

// NewPaymentClient creates a client for the payment service at baseURL.
func NewPaymentClient(baseURL string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

type chargeRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type declineResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Charge implements payment.Capability.
func (c *PaymentClient) Charge(ctx context.Context, amount decimal.Decimal, currency string) (*payment.Receipt, error) {
	resp, err := postJSON(ctx, c.client, c.baseURL+"/api/charges", chargeRequest{
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		return nil, &payment.UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var receipt payment.Receipt
		if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
			return nil, &payment.UnavailableError{Err: errors.Wrap(err, "decode receipt")}
		}
		if receipt.ChargeID == "" {
			return nil, &payment.UnavailableError{Err: errors.New("charge: empty charge id")}
		}
		return &receipt, nil

	case resp.StatusCode == http.StatusPaymentRequired:
		var decline declineResponse
		if err := json.NewDecoder(resp.Body).Decode(&decline); err != nil {
			decline.Message = "charge declined"
		}
		return nil, &payment.DeclinedError{Code: decline.Code, Message: decline.Message}

	default:
		return nil, &payment.UnavailableError{
			Err: errors.Errorf("charge: %s", readError(resp)),
		}
	}
}

// Refund implements payment.Capability. Not used by the compensation path;
// it exists for out-of-band reconciliation tooling.
func (c *PaymentClient) Refund(ctx context.Context, chargeID string, amount decimal.Decimal) error {
	u := c.baseURL + "/api/charges/" + url.PathEscape(chargeID) + "/refunds"
	resp, err := postJSON(ctx, c.client, u, struct {
		Amount decimal.Decimal `json:"amount"`
	}{Amount: amount})
	if err != nil {
		return errors.Wrap(err, "refund")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.Errorf("refund: %s", readError(resp))
	}
	return nil
}
