// Package server runs the optional WebSocket gateway: an HTTP service whose
// upgraded sessions are handed to the event loop like accepted TCP connections.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/trace"
)

// OccupancyFunc reports occupied slots and total capacity.
type OccupancyFunc func() (occupied, capacity int)

// Gateway is a net.Listener whose Accept yields upgraded WebSocket sessions.
type Gateway struct {
	ln             net.Listener
	srv            *http.Server
	upgrader       websocket.Upgrader
	origins        originPolicy
	maxMessageSize int64
	occupancy      OccupancyFunc
	log            *slog.Logger

	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
	served    chan struct{}
}

var _ net.Listener = (*Gateway)(nil)

// ListenWebSocket binds cfg.Addr and starts serving the gateway routes on it.
// A nil listen uses net.ListenConfig.
func ListenWebSocket(ctx context.Context, cfg WebSocketConfig, listen ListenFunc, occupancy OccupancyFunc, log *slog.Logger) (*Gateway, error) {
	if listen == nil {
		var lc net.ListenConfig
		listen = lc.Listen
	}
	ln, err := listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		ln:             ln,
		origins:        newOriginPolicy(cfg.AllowedOrigins, log),
		maxMessageSize: cfg.MaxMessageSize,
		occupancy:      occupancy,
		log:            log,
		conns:          make(chan net.Conn),
		done:           make(chan struct{}),
		served:         make(chan struct{}),
	}
	if g.maxMessageSize <= 0 {
		g.maxMessageSize = DefaultWSMessageSize
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	g.srv = CreateServer(ln.Addr().String(), g.SetupRoutes())

	go func() {
		defer close(g.served)
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("websocket gateway stopped", trace.Code(codeGatewayFailed), "error", err)
		}
	}()

	return g, nil
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.origins.allows(r) {
		return true
	}
	g.log.Warn("blocked websocket connection", trace.Code(codeOriginBlocked),
		"origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
	return false
}

// Accept waits for the next upgraded session. After Close it returns net.ErrClosed.
func (g *Gateway) Accept() (net.Conn, error) {
	select {
	case c := <-g.conns:
		return c, nil
	case <-g.done:
		return nil, net.ErrClosed
	}
}

// Close stops the HTTP service. Sessions already handed out stay open.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err = g.srv.Shutdown(ctx); err != nil {
			err = g.srv.Close()
		}
		<-g.served
	})
	return err
}

// Addr returns the bound HTTP address.
func (g *Gateway) Addr() net.Addr {
	return g.ln.Addr()
}
