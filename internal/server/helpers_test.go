package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/chatrelay/internal/server/mocks"
)

const testTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// localhostResolver resolves every address to "localhost.".
func localhostResolver(t *testing.T) *mocks.MockResolver {
	t.Helper()
	ctrl := gomock.NewController(t)
	r := mocks.NewMockResolver(ctrl)
	r.EXPECT().LookupAddr(gomock.Any(), gomock.Any()).Return([]string{"localhost."}, nil).AnyTimes()
	return r
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (serverSide, clientSide net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	clientSide, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverSide = <-accepted
	require.NotNil(t, serverSide)

	t.Cleanup(func() {
		_ = clientSide.Close()
		_ = serverSide.Close()
	})
	return serverSide, clientSide
}

// readExactly reads len(want) bytes from conn and compares them with want.
func readExactly(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, want, string(buf))
}

// requireNothing asserts that conn has no pending data for a short while.
func requireNothing(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.Zero(t, n, "unexpected data %q", buf[:n])
	require.True(t, isTimeout(err), "expected timeout, got %v", err)
}

// requireClosed asserts that the peer of conn closed the connection.
func requireClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			continue
		}
		require.Error(t, err)
		require.False(t, isTimeout(err), "connection still open")
		return
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent loggers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// timeoutError is a net.Error reporting a timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn is a net.Conn whose reads fail with err.
type fakeConn struct {
	err    error
	closed chan struct{}
}

func newFakeConn(err error) *fakeConn {
	return &fakeConn{err: err, closed: make(chan struct{})}
}

func (c *fakeConn) Read([]byte) (int, error)         { return 0, c.err }
func (c *fakeConn) Write(b []byte) (int, error)      { return len(b), nil }
func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10023} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

// brokenWriteConn is a fakeConn whose writes fail.
type brokenWriteConn struct {
	*fakeConn
}

func (brokenWriteConn) Write([]byte) (int, error) {
	return 0, syscall.EPIPE
}

// fakeListener hands out the queued connections, then blocks until closed.
type fakeListener struct {
	conns  chan net.Conn
	closed chan struct{}
}

func newFakeListener(conns ...net.Conn) *fakeListener {
	l := &fakeListener{conns: make(chan net.Conn, len(conns)), closed: make(chan struct{})}
	for _, c := range conns {
		l.conns <- c
	}
	return l
}

func (l *fakeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *fakeListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

func (l *fakeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10023}
}

func listenWith(ln net.Listener) ListenFunc {
	return func(context.Context, string, string) (net.Listener, error) {
		return ln, nil
	}
}

func failingListen(context.Context, string, string) (net.Listener, error) {
	return nil, errors.New("address already in use")
}

// testConfig binds loopback on an ephemeral port.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = "0"
	return cfg
}
