// Package adapter provides HTTP implementations of the inventory and payment
// capability contracts. The orchestrator core never sees HTTP; it only sees
// the domain interfaces these clients satisfy.
//
// Timeouts are the capability's responsibility: each client carries its own
// client-side deadline and surfaces expiry as an unavailable error. The
// orchestrator imposes no hidden timeout of its own.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBody caps how much of an error response is read for diagnostics.
const maxErrorBody = 4 << 10

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// postJSON issues a POST with a JSON body and returns the response. The caller
// owns closing the body.
func postJSON(ctx context.Context, client *http.Client, url string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	return client.Do(req)
}

// readError drains up to maxErrorBody bytes for inclusion in error messages.
func readError(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return resp.Status
	}
	return string(raw)
}
