// Package server runs the relay event loop: one multiplexed wait per cycle
// over the listener set and the connection pool, followed by accept and
// process dispatch.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/chatrelay/internal/trace"
)

// State is the lifecycle state of a Server.
type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateError
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateError:
		return "ERROR"
	case StateFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the trace logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithResolver sets the reverse resolver used for display names.
func WithResolver(r Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithListenFunc replaces the function opening listening sockets.
func WithListenFunc(fn ListenFunc) Option {
	return func(s *Server) {
		s.listen = fn
	}
}

// Server is the relay. Start binds the listeners, Run drives the event loop
// until ctx is cancelled or a fatal error occurs.
type Server struct {
	cfg      Config
	log      *slog.Logger
	resolver Resolver
	listen   ListenFunc

	mux       *Mux
	listeners *ListenerSet
	pool      *Pool
	gateway   *Gateway

	state   atomic.Int32
	mu      sync.RWMutex
	addrs   []net.Addr
	wsAddr  net.Addr
	started bool
}

// New validates cfg and creates a server in the INITIALIZING state.
func New(cfg Config, opts ...Option) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		resolver: net.DefaultResolver,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = NewMux()
	s.pool = NewPool(cfg, s.mux, s.resolver, s.log)
	s.listeners = NewListenerSet(cfg, s.mux, s.listen, s.log)
	s.state.Store(int32(StateInitializing))
	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// Start binds every listener. On failure the server moves to ERROR and
// everything opened so far is closed.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.log.Info("initialized", trace.Code(codeInitialized),
		"port", s.cfg.Port, "pool_size", s.cfg.PoolSize, "max_listeners", s.cfg.MaxListeners)

	if err := s.listeners.BindAndListen(ctx); err != nil {
		s.setState(StateError)
		s.deinit()
		return err
	}
	s.addrs = s.listeners.Addrs()
	for _, addr := range s.addrs {
		s.log.Info("listening", trace.Code(codeServing), "address", addr.String())
	}

	if s.cfg.WebSocket.Addr != "" {
		gw, err := ListenWebSocket(ctx, s.cfg.WebSocket, s.listen, s.occupancy, s.log)
		if err != nil {
			s.log.Warn("cannot start websocket gateway", trace.Code(codeGatewayFailed),
				"address", s.cfg.WebSocket.Addr, "error", err)
		} else {
			s.gateway = gw
			s.wsAddr = gw.Addr()
			s.listeners.add(gw, "ws")
			s.log.Info("websocket gateway listening", trace.Code(codeGatewayUp), "address", gw.Addr().String())
		}
	}

	s.setState(StateRunning)
	return nil
}

// Run drives the event loop. It returns nil when ctx is cancelled and the
// fatal error otherwise. Connections and listeners are closed on return.
func (s *Server) Run(ctx context.Context) error {
	if s.State() != StateRunning {
		return fmt.Errorf("run in state %s: %w", s.State(), ErrNotStarted)
	}
	defer s.deinit()

	set := NewReadySet()
	for {
		if ctx.Err() != nil {
			s.log.Info("stopping event loop", trace.Code(codeWaitInterrupt))
			s.setState(StateFinished)
			return nil
		}

		set.Reset()
		s.listeners.ContributeReadiness(set)
		s.pool.ContributeReadiness(set)
		trace.Debug2(s.log, "waiting", trace.Code(codeWaitBegin), "max_handle", set.Max())

		n, err := s.mux.Wait(ctx, set)
		if errors.Is(err, ErrInterrupted) {
			continue
		}
		if err != nil {
			s.log.Error("wait failed", trace.Code(codeWaitFailed), "error", err)
			s.setState(StateError)
			return err
		}
		if n == 0 {
			trace.Debug2(s.log, "no ready sockets", trace.Code(codeWaitIdle))
			continue
		}

		if err := s.dispatch(ctx, set); err != nil {
			s.log.Error("event loop failed", trace.Code(codeDispatchError), "error", err)
			s.setState(StateError)
			return err
		}
	}
}

// dispatch runs accept-ready then process-ready. Pool exhaustion is only a
// warning; any other failure of either step is returned.
func (s *Server) dispatch(ctx context.Context, set *ReadySet) error {
	acceptErr := s.listeners.AcceptReady(ctx, set, s.pool)
	if errors.Is(acceptErr, ErrPoolExhausted) {
		s.log.Warn("connection pool exhausted", trace.Code(codePoolExhausted),
			"capacity", s.pool.Capacity(), "error", acceptErr)
		acceptErr = nil
	}
	processErr := s.pool.ProcessReady(set)
	return errors.Join(acceptErr, processErr)
}

// Serve is Start followed by Run.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Run(ctx)
}

func (s *Server) deinit() {
	trace.Debug1(s.log, "closing connections and listeners", trace.Code(codeFinished))
	s.pool.Close()
	s.listeners.Close()
	if s.gateway != nil {
		_ = s.gateway.Close()
	}
	s.mux.Close()
	s.log.Info("completed", trace.Code(codeCompleted), "state", s.State().String())
}

// Addrs returns the bound TCP listener addresses. Empty before Start.
func (s *Server) Addrs() []net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]net.Addr(nil), s.addrs...)
}

// WebSocketAddr returns the gateway address, or nil when it is not running.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wsAddr
}

// Occupancy returns the number of occupied slots.
func (s *Server) Occupancy() int {
	return s.pool.Occupancy()
}

// SlotOccupied reports whether slot i holds a connection.
func (s *Server) SlotOccupied(i int) bool {
	return s.pool.SlotOccupied(i)
}

// Capacity returns the number of slots.
func (s *Server) Capacity() int {
	return s.pool.Capacity()
}

func (s *Server) occupancy() (int, int) {
	return s.pool.Occupancy(), s.pool.Capacity()
}
