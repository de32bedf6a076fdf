// Package server implements the chat relay: a bounded pool of client
// connections, the set of listening sockets that feeds it, and the single
// event loop that multiplexes readiness across both.
//
// The implementation is organized into specialized files for configuration,
// readiness multiplexing, listeners, the connection pool, the event loop and
// the optional WebSocket gateway.
package server
