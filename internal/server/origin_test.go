package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   string
		ok     bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"https://example.com/path?q=1", "https://example.com", true},
		{"example.com", "", false},
		{"http://", "", false},
		{"://bad", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.origin)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeOriginsDedupesAndSkipsInvalid(t *testing.T) {
	got, allowAll := normalizeOrigins([]string{
		" http://localhost:8080 ",
		"HTTP://LOCALHOST:8080",
		"not an origin",
		"",
		"https://chat.example",
	}, testLogger())

	require.False(t, allowAll)
	require.Equal(t, []string{"http://localhost:8080", "https://chat.example"}, got)
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"listed origin", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case differs", []string{"http://localhost:8080"}, "http://LocalHost:8080", true},
		{"unlisted origin", []string{"http://localhost:8080"}, "http://evil.example", false},
		{"missing header", []string{"http://localhost:8080"}, "", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"wildcard without header", []string{"*"}, "", true},
		{"empty allowlist", nil, "http://localhost:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, testLogger())
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, policy.allows(req))
		})
	}
}
