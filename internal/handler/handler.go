// Package handler exposes the checkout orchestrator over HTTP. The POS front
// end submits orders here and reads back outcomes; it never talks to the
// inventory or payment services directly.
package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Handler serves the checkout API routes.
type Handler struct {
	checkout Processor
}

// NewHandler constructs a Handler around the given orchestrator.
func NewHandler(checkout Processor) *Handler {
	return &Handler{checkout: checkout}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout", h.submit)
	mux.HandleFunc("GET /api/checkout/{orderID}", h.lookup)
}

// writeJSON writes an encoded jx buffer with the given status code.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes a {"code":..,"message":..} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
	writeJSON(w, status, &e)
}
