// Package server multiplexes blocking socket operations into the single
// readiness wait of the event loop.
package server

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Handle identifies one watched socket. Handles are never reused, so a late
// result from a closed socket cannot be mistaken for its successor's.
type Handle uint64

// Event is the outcome of one armed wait on a socket: an accepted connection
// for listeners, received bytes for client connections, or an error.
type Event struct {
	Handle Handle
	Conn   net.Conn
	Data   []byte
	Err    error
}

// ReadySet is the per-cycle readiness set: the handles contributed by the
// listener set and the pool, and the events of those that became ready.
type ReadySet struct {
	watched map[Handle]struct{}
	ready   map[Handle]Event
	max     Handle
}

// NewReadySet returns an empty readiness set.
func NewReadySet() *ReadySet {
	return &ReadySet{
		watched: make(map[Handle]struct{}),
		ready:   make(map[Handle]Event),
	}
}

// Reset clears the set for a new cycle.
func (s *ReadySet) Reset() {
	clear(s.watched)
	clear(s.ready)
	s.max = 0
}

// Watch adds h to the watched handles.
func (s *ReadySet) Watch(h Handle) {
	s.watched[h] = struct{}{}
	if h > s.max {
		s.max = h
	}
}

// Max returns the largest watched handle.
func (s *ReadySet) Max() Handle {
	return s.max
}

// IsSet reports whether h became ready this cycle and returns its event.
func (s *ReadySet) IsSet(h Handle) (Event, bool) {
	ev, ok := s.ready[h]
	return ev, ok
}

// Len returns the number of ready handles.
func (s *ReadySet) Len() int {
	return len(s.ready)
}

// Mark records ev as ready. Events for handles that are not watched this
// cycle are refused.
func (s *ReadySet) Mark(ev Event) bool {
	if _, ok := s.watched[ev.Handle]; !ok {
		return false
	}
	s.ready[ev.Handle] = ev
	return true
}

// Mux multiplexes readiness of many sockets into one blocking wait. Every
// watched socket has a watcher goroutine that performs one blocking operation
// per arming and hands its result over an unbuffered channel, so the caller of
// Wait stays the only goroutine that acts on the results.
type Mux struct {
	events chan Event
	group  errgroup.Group
	next   Handle

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMux creates a multiplexer with no watchers.
func NewMux() *Mux {
	return &Mux{
		events: make(chan Event),
		closed: make(chan struct{}),
	}
}

// watcher runs one blocking operation each time it is armed.
type watcher struct {
	handle   Handle
	arming   chan struct{}
	done     chan struct{}
	armed    bool
	stopOnce sync.Once
}

// watch registers op under a fresh handle. op runs on the watcher goroutine,
// once per arming.
func (m *Mux) watch(op func() Event) *watcher {
	m.next++
	w := &watcher{
		handle: m.next,
		arming: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	m.group.Go(func() error {
		for {
			select {
			case <-w.arming:
			case <-w.done:
				return nil
			case <-m.closed:
				return nil
			}

			ev := op()
			ev.Handle = w.handle

			select {
			case m.events <- ev:
			case <-w.done:
				discard(ev)
				return nil
			case <-m.closed:
				discard(ev)
				return nil
			}
		}
	})

	return w
}

// arm lets the watcher run its operation once. Arming an armed watcher is a no-op.
func (w *watcher) arm() {
	if w.armed {
		return
	}
	w.armed = true
	w.arming <- struct{}{}
}

// consumed marks the watcher's pending result as handled.
func (w *watcher) consumed() {
	w.armed = false
}

// stop ends the watcher goroutine. The owner must also close the socket so a
// blocked operation returns.
func (w *watcher) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Wait blocks until at least one watcher delivers an event, then collects
// every other event already pending. It returns the number of ready handles
// in set, which may be zero if only stale events arrived.
func (m *Mux) Wait(ctx context.Context, set *ReadySet) (int, error) {
	select {
	case ev := <-m.events:
		m.mark(set, ev)
	case <-m.closed:
		return 0, ErrMuxClosed
	case <-ctx.Done():
		return 0, ErrInterrupted
	}

	for {
		select {
		case ev := <-m.events:
			m.mark(set, ev)
		default:
			return set.Len(), nil
		}
	}
}

func (m *Mux) mark(set *ReadySet, ev Event) {
	if !set.Mark(ev) {
		discard(ev)
	}
}

// Close stops every watcher and waits for their goroutines. Sockets must be
// closed by their owners first, or blocked operations keep Close waiting.
func (m *Mux) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
	_ = m.group.Wait()
}

func discard(ev Event) {
	if ev.Conn != nil {
		_ = ev.Conn.Close()
	}
}
