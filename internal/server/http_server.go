// Package server constructs the HTTP service hosting the WebSocket gateway.
package server

import (
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// Upgraded connections are hijacked, so the timeouts only bound the handshake.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
