package resolver

import (
	"context"
	"net"
)

var sysResolver = net.DefaultResolver

// Resolve looks up host via the system resolver. IP literals are
// returned as a single-element slice without a network round trip,
// mirroring the "on literal IP → prepare addrinfo directly" fast path
// in spec §4.D.
func (Default) Resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	addrs, err := sysResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}
