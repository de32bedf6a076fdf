package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/trace"
)

// noEnvFile points EnvFile at a path that does not exist.
func noEnvFile(t *testing.T) {
	t.Helper()
	old := EnvFile
	EnvFile = filepath.Join(t.TempDir(), "missing.env")
	t.Cleanup(func() { EnvFile = old })
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestParseDefaults(t *testing.T) {
	r := require.New(t)
	noEnvFile(t)
	unsetEnv(t, "CHATSERV_PORT")
	unsetEnv(t, "CHATSERV_DEBUG")

	opts, err := Parse(nil)
	r.NoError(err)
	r.Equal(server.DefaultPort, opts.Config.Port)
	r.Equal(trace.ErrorLevel, opts.TraceLevel)
	r.Empty(opts.Config.WebSocket.Addr)
}

func TestParseFlags(t *testing.T) {
	r := require.New(t)
	noEnvFile(t)
	t.Setenv("CHATSERV_PORT", "30000")

	opts, err := Parse([]string{"-p", "2000", "-d", "3", "-b", "127.0.0.1", "-w", ":8080"})
	r.NoError(err)
	r.Equal("2000", opts.Config.Port)
	r.Equal(trace.Debug1Level, opts.TraceLevel)
	r.Equal("127.0.0.1", opts.Config.Host)
	r.Equal(":8080", opts.Config.WebSocket.Addr)
}

func TestParseEnvironment(t *testing.T) {
	r := require.New(t)
	noEnvFile(t)
	t.Setenv("CHATSERV_PORT", "telnet")
	t.Setenv("CHATSERV_DEBUG", "4")

	opts, err := Parse(nil)
	r.NoError(err)
	r.Equal("telnet", opts.Config.Port)
	r.Equal(trace.Debug2Level, opts.TraceLevel)
}

func TestParseEnvFile(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	r.NoError(os.WriteFile(path, []byte("CHATSERV_PORT=12345\nCHATSERV_DEBUG=2\n"), 0o600))
	old := EnvFile
	EnvFile = path
	t.Cleanup(func() { EnvFile = old })
	unsetEnv(t, "CHATSERV_PORT")
	unsetEnv(t, "CHATSERV_DEBUG")

	opts, err := Parse(nil)
	r.NoError(err)
	r.Equal("12345", opts.Config.Port)
	r.Equal(trace.InfoLevel, opts.TraceLevel)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"help", []string{"-h"}, ErrHelp},
		{"positional argument", []string{"extra"}, ErrUsage},
		{"positional after flags", []string{"-p", "2000", "extra"}, ErrUsage},
		{"debug level too high", []string{"-d", "5"}, ErrUsage},
		{"negative debug level", []string{"-d", "-1"}, ErrUsage},
		{"malformed debug level", []string{"-d", "loud"}, ErrUsage},
		{"unknown flag", []string{"-x"}, ErrUsage},
		{"missing value", []string{"-p"}, ErrUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noEnvFile(t)
			unsetEnv(t, "CHATSERV_DEBUG")
			_, err := Parse(tt.args)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUsageListsLevels(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)

	out := buf.String()
	require.Contains(t, out, "usage: chatserv [-h] [-d <debug_level>] [-p <port_name>]")
	for _, l := range trace.Levels() {
		require.Contains(t, out, l.String())
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, fmt.Errorf("%w: unexpected argument %q", ErrUsage, "extra"))
	require.Contains(t, buf.String(), `unexpected argument "extra"`)
	require.Contains(t, buf.String(), "usage: chatserv")

	buf.Reset()
	PrintError(&buf, server.ErrNoListenersAvailable)
	require.Contains(t, buf.String(), "cannot listen on any interface")
	require.NotContains(t, buf.String(), "usage:")
}

func TestExitCode(t *testing.T) {
	require.Equal(t, ExitOK, ExitCode(nil))
	require.Equal(t, ExitOK, ExitCode(ErrHelp))
	require.Equal(t, ExitUsage, ExitCode(fmt.Errorf("%w: bad", ErrUsage)))
	require.Equal(t, ExitNoListeners, ExitCode(fmt.Errorf("bind: %w", server.ErrNoListenersAvailable)))
	require.Equal(t, ExitAddressInfo, ExitCode(fmt.Errorf("lookup: %w", server.ErrAddressInfo)))
	require.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
}
