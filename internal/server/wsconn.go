// Package server adapts WebSocket sessions to the byte-stream connection
// interface the pool works with.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/trace"
)

// wsConn presents a WebSocket session as a net.Conn. Every text or binary
// message is read as stream bytes, and every Write is sent as one text
// message. Any read failure ends the stream with io.EOF.
type wsConn struct {
	conn   *websocket.Conn
	reader io.Reader
	log    *slog.Logger
	addr   string
}

var _ net.Conn = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn, maxMessageSize int64, log *slog.Logger) *wsConn {
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{
		conn: conn,
		log:  log,
		addr: conn.RemoteAddr().String(),
	}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				c.handleReadError(err)
				return 0, io.EOF
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		if err != nil {
			c.handleReadError(err)
			return n, io.EOF
		}
		return n, nil
	}
}

// handleReadError logs read failures that are not an ordinary disconnect.
func (c *wsConn) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("websocket message exceeded the read limit", trace.Code(codeWSReadClosed), "remote", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure),
		isExpectedCloseError(err):
		trace.Debug1(c.log, "websocket client disconnected", trace.Code(codeWSReadClosed), "remote", c.addr, "error", err)
	default:
		c.log.Warn("websocket read error", trace.Code(codeWSReadClosed), "remote", c.addr, "error", err)
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		if !isExpectedCloseError(err) {
			trace.Debug1(c.log, "websocket write failed", trace.Code(codeWSWriteFailed), "remote", c.addr, "error", err)
		}
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame when possible, then closes the connection.
func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.conn.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
