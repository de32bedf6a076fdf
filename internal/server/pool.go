// Package server keeps the bounded table of client connections and performs
// the receive, command check, broadcast and disconnect steps of the relay.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatrelay/internal/trace"
)

// slot is one entry of the connection table. A nil conn means vacant.
type slot struct {
	conn    net.Conn
	name    string
	handle  Handle
	session string
	watch   *watcher
	limiter *rateLimiter
}

func (s *slot) occupied() bool {
	return s.conn != nil
}

// Pool owns a fixed number of connection slots. Every method except Occupancy
// and Capacity must be called from the event loop goroutine.
type Pool struct {
	slots        []slot
	mux          *Mux
	resolver     Resolver
	log          *slog.Logger
	recvSize     int
	nameLen      int
	writeTimeout time.Duration
	lookup       time.Duration
	rateLimit    RateLimitConfig
	occupancy    atomic.Int32
	taken        []atomic.Bool
}

// NewPool creates a pool with cfg.PoolSize vacant slots.
func NewPool(cfg Config, mux *Mux, resolver Resolver, log *slog.Logger) *Pool {
	cfg = sanitizeConfig(cfg)
	return &Pool{
		slots:        make([]slot, cfg.PoolSize),
		taken:        make([]atomic.Bool, cfg.PoolSize),
		mux:          mux,
		resolver:     resolver,
		log:          log,
		recvSize:     cfg.MaxMessageSize - 1,
		nameLen:      cfg.MaxNameLength,
		writeTimeout: cfg.WriteTimeout,
		lookup:       cfg.LookupTimeout,
		rateLimit:    cfg.RateLimit,
	}
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Occupancy returns the number of occupied slots. Safe from any goroutine.
func (p *Pool) Occupancy() int {
	return int(p.occupancy.Load())
}

// SlotOccupied reports whether slot i holds a connection. Safe from any goroutine.
func (p *Pool) SlotOccupied(i int) bool {
	if i < 0 || i >= len(p.taken) {
		return false
	}
	return p.taken[i].Load()
}

// findVacant returns the lowest vacant slot index, or -1.
func (p *Pool) findVacant() int {
	if p.log.Enabled(context.Background(), trace.LevelDebug2) {
		trace.Debug2(p.log, "slot table", trace.Code(codeSlotTable), "occupied", p.Occupancy(), "capacity", len(p.slots))
	}
	for i := range p.slots {
		if !p.slots[i].occupied() {
			trace.Debug1(p.log, "use connection slot", trace.Code(codeSlotSelected), "slot", i)
			return i
		}
	}
	trace.Debug1(p.log, "no more space to save sockets", trace.Code(codeNoVacantSlot), "capacity", len(p.slots))
	return -1
}

// Attach stores conn in the first vacant slot and starts watching it.
// It returns ErrPoolExhausted, leaving conn untouched, when every slot is taken.
func (p *Pool) Attach(ctx context.Context, conn net.Conn) (int, error) {
	i := p.findVacant()
	if i < 0 {
		return -1, ErrPoolExhausted
	}

	sl := &p.slots[i]
	sl.conn = conn
	sl.name = displayName(ctx, p.resolver, conn.RemoteAddr(), p.lookup, p.nameLen)
	sl.session = uuid.NewString()
	sl.limiter = newRateLimiter(p.rateLimit)
	sl.watch = p.mux.watch(p.receiver(conn))
	sl.handle = sl.watch.handle
	p.occupancy.Add(1)
	p.taken[i].Store(true)

	trace.Debug1(p.log, "connection established",
		trace.Code(codeConnEstablished),
		"slot", i,
		"name", sl.name,
		"session", sl.session,
		"remote", conn.RemoteAddr().String(),
	)
	return i, nil
}

// receiver returns the watcher operation reading one message from conn.
func (p *Pool) receiver(conn net.Conn) func() Event {
	return func() Event {
		buf := make([]byte, p.recvSize)
		n, err := conn.Read(buf)
		return Event{Data: buf[:n], Err: err}
	}
}

// ContributeReadiness adds every occupied slot to set and returns the
// largest handle added.
func (p *Pool) ContributeReadiness(set *ReadySet) Handle {
	var maxHandle Handle
	for i := range p.slots {
		sl := &p.slots[i]
		if !sl.occupied() {
			continue
		}
		set.Watch(sl.handle)
		sl.watch.arm()
		maxHandle = max(maxHandle, sl.handle)
	}
	return maxHandle
}

// ProcessReady handles every occupied slot whose handle is ready, in slot
// order. A fatal receive error stops the scan and is returned.
func (p *Pool) ProcessReady(set *ReadySet) error {
	for i := range p.slots {
		sl := &p.slots[i]
		if !sl.occupied() {
			continue
		}
		ev, ok := set.IsSet(sl.handle)
		if !ok {
			continue
		}
		sl.watch.consumed()

		trace.Debug1(p.log, "process a message", trace.Code(codeProcessMessage), "slot", i, "session", sl.session)
		if err := p.receiveBroadcast(i, ev); err != nil {
			return err
		}
	}
	return nil
}

// receive interprets a read result. It returns the received bytes, or nil
// when there is nothing to relay.
func (p *Pool) receive(i int, ev Event) ([]byte, error) {
	if len(ev.Data) > 0 {
		return ev.Data, nil
	}

	switch {
	case ev.Err == nil:
		return nil, nil
	case isTimeout(ev.Err):
		trace.Debug1(p.log, "timed out", trace.Code(codeRecvTimeout), "slot", i)
		return nil, nil
	case isRemoteClose(ev.Err):
		p.log.Warn("connection closed by remote host", trace.Code(codeRemoteClosed), "slot", i, "name", p.slots[i].name)
		p.disconnect(i)
		return nil, nil
	default:
		p.log.Error("cannot recv", trace.Code(codeRecvFailed), "slot", i, "error", ev.Err)
		return nil, fmt.Errorf("%w from slot %d: %v", ErrReceive, i, ev.Err)
	}
}

func (p *Pool) receiveBroadcast(i int, ev Event) error {
	msg, err := p.receive(i, ev)
	if err != nil || msg == nil {
		return err
	}
	trace.Dump(p.log, codeRecvDump, "received", msg)

	sl := &p.slots[i]
	if isQuitCommand(msg) {
		trace.Debug1(p.log, "quit command", trace.Code(codeQuit), "slot", i, "name", sl.name)
		p.write(sl, Farewell)
		p.disconnect(i)
		return nil
	}

	if !sl.limiter.allow() {
		p.log.Warn("rate limit exceeded, discarding message",
			trace.Code(codeRateLimited),
			"slot", i,
			"name", sl.name,
			"burst", p.rateLimit.Burst,
			"interval", p.rateLimit.RefillInterval,
		)
		return nil
	}

	p.Broadcast(sl.name, msg)
	return nil
}

// Broadcast writes "[name] msg" to every occupied slot, sender included.
// Failed writes are logged and skipped.
func (p *Pool) Broadcast(name string, msg []byte) {
	out := formatBroadcast(name, msg)
	trace.Debug1(p.log, "send message", trace.Code(codeBroadcast), "message", string(out))

	for i := range p.slots {
		sl := &p.slots[i]
		if !sl.occupied() {
			continue
		}
		if err := p.write(sl, out); err != nil {
			p.log.Warn("cannot send", trace.Code(codeSendFailed), "slot", i, "name", sl.name, "error", err)
		}
	}
}

// write sends b in a single write, bounded by the write timeout.
func (p *Pool) write(sl *slot, b []byte) error {
	if p.writeTimeout > 0 {
		if err := sl.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := sl.conn.Write(b)
	return err
}

// disconnect closes slot i and resets it to the vacant state. Calling it on a
// vacant slot is a no-op.
func (p *Pool) disconnect(i int) {
	sl := &p.slots[i]
	if !sl.occupied() {
		p.slots[i] = slot{}
		return
	}

	sl.watch.stop()
	if err := sl.conn.Close(); err != nil && !isExpectedCloseError(err) {
		p.log.Warn("error closing connection", trace.Code(codeConnClose), "slot", i, "error", err)
	}
	p.slots[i] = slot{}
	p.taken[i].Store(false)
	p.occupancy.Add(-1)
}

// Close disconnects every occupied slot.
func (p *Pool) Close() {
	for i := range p.slots {
		if p.slots[i].occupied() {
			trace.Debug1(p.log, "closing connection", trace.Code(codeConnClose), "slot", i, "name", p.slots[i].name)
			p.disconnect(i)
		}
	}
}
