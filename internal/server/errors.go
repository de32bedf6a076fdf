package server

import "errors"

var (
	// ErrAddressInfo reports that the configured port or bind host could not be resolved.
	ErrAddressInfo = errors.New("cannot get address information")

	// ErrNoListenersAvailable reports that no candidate address could be bound.
	ErrNoListenersAvailable = errors.New("cannot listen on any interface")

	// ErrPoolExhausted reports an accepted connection that found no vacant slot.
	// The connection is closed before this error is returned.
	ErrPoolExhausted = errors.New("no more space to save sockets")

	// ErrReceive reports a receive failure that is neither a timeout nor a remote close.
	ErrReceive = errors.New("cannot recv")

	// ErrMuxClosed reports a wait on a multiplexer that has been closed.
	ErrMuxClosed = errors.New("multiplexer closed")

	// ErrInterrupted reports a wait cut short by cancellation. Callers retry.
	ErrInterrupted = errors.New("wait interrupted")

	// ErrInvalidConfig wraps validation failures of Config.
	ErrInvalidConfig = errors.New("invalid configuration")
)

var (
	// ErrAlreadyStarted reports a second Start on the same Server.
	ErrAlreadyStarted = errors.New("server already started")

	// ErrNotStarted reports Run on a server that is not RUNNING.
	ErrNotStarted = errors.New("server not running")
)
