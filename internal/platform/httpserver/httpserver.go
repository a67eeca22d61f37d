package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Header and idle timeouts are set so slow or
// stalled clients cannot pin connections; per-request deadlines come from
// the Timeout middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
