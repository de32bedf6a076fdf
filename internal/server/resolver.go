package server

import (
	"context"
	"net"
	"strings"
	"time"
)

//go:generate mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks

// Resolver performs reverse lookups of peer addresses. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// displayName reverse-resolves the host part of addr. It returns
// PlaceholderName when nothing resolves, and never more than maxLen-1 bytes.
func displayName(ctx context.Context, r Resolver, addr net.Addr, timeout time.Duration, maxLen int) string {
	if r == nil || addr == nil {
		return PlaceholderName
	}

	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	names, err := r.LookupAddr(ctx, host)
	if err != nil || len(names) == 0 {
		return PlaceholderName
	}

	name := strings.TrimSuffix(names[0], ".")
	if maxLen > 1 && len(name) > maxLen-1 {
		name = name[:maxLen-1]
	}
	if name == "" {
		return PlaceholderName
	}
	return name
}
