package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this project. All order
// mutations are synchronous and bounded by store timeouts, so a modest write
// timeout is enough.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
