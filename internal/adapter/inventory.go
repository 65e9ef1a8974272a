package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-checkout/internal/domain/inventory"
	"github.com/xenking/pos-checkout/internal/domain/order"
)

var _ inventory.Capability = (*InventoryClient)(nil)

// InventoryClient implements inventory.Capability against a remote inventory
// service. Any reservation failure, transport faults included, maps to
// inventory.UnavailableError: the contract guarantees all-or-nothing
// reservation, so there is never partial state to clean up.
type InventoryClient struct {
	baseURL string
	client  *http.Client
}

// NewInventoryClient creates a client for the inventory service at baseURL.
func NewInventoryClient(baseURL string, timeout time.Duration) *InventoryClient {
	return &InventoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(timeout),
	}
}

type reserveRequest struct {
	Items []order.Item `json:"items"`
}

type reserveResponse struct {
	Token string `json:"token"`
}

// Reserve implements inventory.Capability.
func (c *InventoryClient) Reserve(ctx context.Context, items []order.Item) (inventory.ReservationToken, error) {
	resp, err := postJSON(ctx, c.client, c.baseURL+"/api/reservations", reserveRequest{Items: items})
	if err != nil {
		return "", &inventory.UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &inventory.UnavailableError{
			Err: errors.Errorf("reserve: %s", readError(resp)),
		}
	}

	var body reserveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &inventory.UnavailableError{Err: errors.Wrap(err, "decode reserve response")}
	}
	if body.Token == "" {
		return "", &inventory.UnavailableError{Err: errors.New("reserve: empty token")}
	}

	return inventory.ReservationToken(body.Token), nil
}

// Release implements inventory.Capability. A 404 or 410 from the service
// means the token is unknown or already released, which the contract treats
// as the benign inventory.ErrAlreadyReleased.
func (c *InventoryClient) Release(ctx context.Context, token inventory.ReservationToken) error {
	u := c.baseURL + "/api/reservations/" + url.PathEscape(string(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return errors.Wrap(err, "build release request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "release")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		return inventory.ErrAlreadyReleased
	default:
		return errors.Errorf("release: %s", readError(resp))
	}
}
