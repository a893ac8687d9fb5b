// Package resolver provides the hostname-resolution collaborator consumed by relay (spec §6: "resolver.query(hostname,
// callback, context, port) → handle / resolver.cancel(handle)").
package resolver

import "context"

// Resolver looks up a hostname's addresses. The reference design is
// callback-driven because its reactor is single-threaded and has no
// other suspension primitive; a goroutine-per-connection Go build has no
// such constraint, so Resolve is a plain blocking call taking a Context
// for cancellation — the task-per-connection equivalent of dispatching
// and awaiting the callback.
type Resolver interface {
	// Resolve returns the resolved IP addresses for host, preserving the
	// resolver's ordering. An empty, non-error result should not occur;
	// resolvers report "no such host" as an error.
	Resolve(ctx context.Context, host string) ([]string, error)
}

// Default wraps net.Resolver. It is the resolver ss-server uses;
// ss-tunnel resolves nothing itself and carries domain destinations to
// the remote server in the header.
type Default struct{}

// NewDefault returns the net.Resolver-backed implementation.
func NewDefault() Default { return Default{} }
