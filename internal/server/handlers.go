// Package server exposes the gateway HTTP handlers: the WebSocket upgrade and
// the health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/Tyrowin/chatrelay/internal/trace"
)

// WebSocketHandler upgrades GET requests and hands the session to the
// listener set through Accept.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		trace.Debug1(g.log, "websocket upgrade failed", trace.Code(codeUpgradeFailed), "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newWSConn(conn, g.maxMessageSize, g.log)
	select {
	case g.conns <- c:
	case <-g.done:
		_ = c.Close()
	case <-r.Context().Done():
		_ = c.Close()
	}
}

// HealthHandler reports that the relay runs and how many slots are taken.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if g.occupancy == nil {
		_, _ = fmt.Fprint(w, "chat relay is running")
		return
	}
	occupied, capacity := g.occupancy()
	_, _ = fmt.Fprintf(w, "chat relay is running: %d/%d slots occupied", occupied, capacity)
}
