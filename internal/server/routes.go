// Package server wires the gateway handlers into a ServeMux.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with the gateway routes:
// a health check on "/" and the WebSocket endpoint on "/ws".
func (g *Gateway) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.HealthHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	return mux
}
