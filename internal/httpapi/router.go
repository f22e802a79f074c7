package httpapi

import (
	"net/http"
)

// Router wires the ledger routes. maxInFlight bounds concurrent requests.
func Router(h *Handlers, maxInFlight int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("POST /v1/accounts", h.CreateAccount)
	mux.HandleFunc("GET /v1/accounts/{accountNumber}", h.GetAccount)
	mux.HandleFunc("POST /v1/accounts/{src}/transfers/{dst}", h.PostTransfer)
	mux.HandleFunc("GET /v1/accounts/{src}/transfers", h.GetTransfers)

	// Backpressure at the edge.
	// Prevents unbounded goroutine/lock queueing when the store is saturated.
	return withConcurrencyLimit(mux, maxInFlight)
}

func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			// Fast fail instead of queueing forever.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server busy"}`))
		}
	})
}
