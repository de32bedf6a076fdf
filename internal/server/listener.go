// Package server binds the listening sockets and turns their accepted
// connections into pool slots.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/samber/lo"

	"github.com/Tyrowin/chatrelay/internal/trace"
)

// ListenFunc opens one listening socket. (*net.ListenConfig).Listen fits.
type ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

// Attacher takes ownership of an accepted connection. *Pool implements it.
type Attacher interface {
	Attach(ctx context.Context, conn net.Conn) (int, error)
}

// candidate is one local address to bind.
type candidate struct {
	network string
	address string
}

// listenerEntry is one bound listening socket.
type listenerEntry struct {
	ln     net.Listener
	family string
	handle Handle
	watch  *watcher
}

// ListenerSet owns the listening sockets. Every method except Addrs must be
// called from the event loop goroutine, or before it starts.
type ListenerSet struct {
	cfg     Config
	mux     *Mux
	log     *slog.Logger
	listen  ListenFunc
	entries []*listenerEntry
}

// NewListenerSet creates an empty listener set. A nil listen uses net.ListenConfig.
func NewListenerSet(cfg Config, mux *Mux, listen ListenFunc, log *slog.Logger) *ListenerSet {
	if listen == nil {
		var lc net.ListenConfig
		listen = lc.Listen
	}
	return &ListenerSet{
		cfg:    sanitizeConfig(cfg),
		mux:    mux,
		log:    log,
		listen: listen,
	}
}

// candidates resolves the configured port and bind host into local addresses.
// Without a bind host it yields the wildcard address of every family.
func (l *ListenerSet) candidates(ctx context.Context) ([]candidate, error) {
	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", l.cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: port %q: %v", ErrAddressInfo, l.cfg.Port, err)
	}
	p := strconv.Itoa(port)

	if l.cfg.Host == "" {
		return []candidate{
			{network: "tcp4", address: net.JoinHostPort("0.0.0.0", p)},
			{network: "tcp6", address: net.JoinHostPort("::", p)},
		}, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, l.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: host %q: %v", ErrAddressInfo, l.cfg.Host, err)
	}
	return lo.Map(ips, func(ip net.IPAddr, _ int) candidate {
		network := lo.Ternary(ip.IP.To4() != nil, "tcp4", "tcp6")
		return candidate{network: network, address: net.JoinHostPort(ip.String(), p)}
	}), nil
}

// BindAndListen listens on every candidate address, up to MaxListeners.
// A failing address is skipped; ErrNoListenersAvailable is returned only when
// none succeeds.
func (l *ListenerSet) BindAndListen(ctx context.Context) error {
	cands, err := l.candidates(ctx)
	if err != nil {
		l.log.Error("cannot get address information", trace.Code(codeAddressInfo), "error", err)
		return err
	}

	bound := 0
	for _, c := range cands {
		if bound >= l.cfg.MaxListeners {
			break
		}
		ln, err := l.listen(ctx, c.network, c.address)
		if err != nil {
			trace.Debug1(l.log, "cannot listen", trace.Code(codeListenFailed),
				"network", c.network, "address", c.address, "error", err)
			continue
		}
		entry := l.add(ln, c.network)
		trace.Debug2(l.log, "listen", trace.Code(codeListening),
			"index", bound, "network", c.network, "address", ln.Addr().String(), "handle", entry.handle)
		bound++
	}

	if bound == 0 {
		l.log.Error("cannot listen on any interface", trace.Code(codeNoListener), "port", l.cfg.Port)
		return fmt.Errorf("%w: port %s", ErrNoListenersAvailable, l.cfg.Port)
	}
	return nil
}

// add registers an already listening socket.
func (l *ListenerSet) add(ln net.Listener, family string) *listenerEntry {
	entry := &listenerEntry{ln: ln, family: family}
	entry.watch = l.mux.watch(func() Event {
		conn, err := ln.Accept()
		return Event{Conn: conn, Err: err}
	})
	entry.handle = entry.watch.handle
	l.entries = append(l.entries, entry)
	return entry
}

// Len returns the number of open listening sockets.
func (l *ListenerSet) Len() int {
	return len(l.entries)
}

// Addrs returns the bound addresses in bind order.
func (l *ListenerSet) Addrs() []net.Addr {
	return lo.Map(l.entries, func(e *listenerEntry, _ int) net.Addr {
		return e.ln.Addr()
	})
}

// ContributeReadiness adds every open listener to set and returns the largest
// handle added.
func (l *ListenerSet) ContributeReadiness(set *ReadySet) Handle {
	var maxHandle Handle
	for _, e := range l.entries {
		set.Watch(e.handle)
		e.watch.arm()
		maxHandle = max(maxHandle, e.handle)
	}
	return maxHandle
}

// AcceptReady hands every connection accepted by a ready listener to pool.
// A connection that finds no vacant slot is closed; ErrPoolExhausted is
// returned once all ready listeners have been served.
func (l *ListenerSet) AcceptReady(ctx context.Context, set *ReadySet, pool Attacher) error {
	var exhausted error
	kept := l.entries[:0]

	for _, e := range l.entries {
		ev, ok := set.IsSet(e.handle)
		if !ok {
			kept = append(kept, e)
			continue
		}
		e.watch.consumed()

		if ev.Err != nil {
			if errors.Is(ev.Err, net.ErrClosed) {
				l.log.Warn("listener closed, dropping it", trace.Code(codeListenerDropped),
					"network", e.family, "address", e.ln.Addr().String())
				l.closeEntry(e)
				continue
			}
			l.log.Error("cannot accept", trace.Code(codeAcceptFailed),
				"network", e.family, "address", e.ln.Addr().String(), "error", ev.Err)
			kept = append(kept, e)
			continue
		}
		kept = append(kept, e)

		if _, err := pool.Attach(ctx, ev.Conn); err != nil {
			l.log.Warn("rejecting connection", trace.Code(codeConnRejected),
				"remote", ev.Conn.RemoteAddr().String(), "error", err)
			_ = ev.Conn.Close()
			exhausted = fmt.Errorf("accept on %s: %w", e.ln.Addr(), err)
		}
	}

	clear(l.entries[len(kept):])
	l.entries = kept
	return exhausted
}

func (l *ListenerSet) closeEntry(e *listenerEntry) {
	e.watch.stop()
	if err := e.ln.Close(); err != nil && !isExpectedCloseError(err) {
		l.log.Warn("error closing listener", trace.Code(codeListenerClose), "error", err)
	}
}

// Close closes every listening socket.
func (l *ListenerSet) Close() {
	for _, e := range l.entries {
		trace.Debug1(l.log, "closing listener", trace.Code(codeListenerClose),
			"network", e.family, "address", e.ln.Addr().String())
		l.closeEntry(e)
	}
	l.entries = nil
}
