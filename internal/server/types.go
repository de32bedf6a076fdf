// Package server defines the wire literals and error classification helpers
// shared by the pool, the listeners and the WebSocket gateway.
package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/samber/lo"
)

// PlaceholderName is the display name of a peer whose address does not
// resolve to a host name.
const PlaceholderName = "noname"

// Farewell is written to a client right before a quit command disconnects it.
var Farewell = []byte("Bye!\r\n")

// quitCommands are matched byte for byte against a received message, in order.
var quitCommands = [][]byte{
	[]byte("bye\r\n"),
	[]byte("exit\r\n"),
	[]byte("quit\r\n"),
}

// isQuitCommand reports whether msg is exactly one of the quit literals.
func isQuitCommand(msg []byte) bool {
	return lo.ContainsBy(quitCommands, func(cmd []byte) bool {
		return bytes.Equal(cmd, msg)
	})
}

// formatBroadcast builds "[<name>] <msg>" without adding any delimiter.
func formatBroadcast(name string, msg []byte) []byte {
	out := make([]byte, 0, len(name)+len(msg)+3)
	out = append(out, '[')
	out = append(out, name...)
	out = append(out, ']', ' ')
	return append(out, msg...)
}

// isTimeout reports a timeout-class receive error.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRemoteClose reports errors meaning the peer went away.
func isRemoteClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) || isRemoteClose(err) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent")
}
