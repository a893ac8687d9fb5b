// Package acl implements the access-control-list collaborator consumed
// by relay (spec §6: "acl.match(peer_ip) → bool, acl.add(peer_ip),
// acl.mode() → {Black, White}").
package acl

// Mode selects whether listed addresses are denied (Black) or are the
// only addresses allowed (White).
type Mode int

const (
	Black Mode = iota
	White
)

func (m Mode) String() string {
	if m == White {
		return "white"
	}
	return "black"
}

// ACL answers whether a peer address is permitted to connect, and
// accepts auto-ban additions reported by a failed connection (spec §7:
// BadHeader/AuthFail "report peer, optional ACL ban").
type ACL interface {
	// Match reports whether ip is permitted to connect under the
	// current mode: in Black mode, permitted means NOT listed; in White
	// mode, permitted means listed.
	Match(ip string) bool
	// Add records ip, e.g. in response to an auto-ban-eligible failure.
	// It is a no-op for ACLs that don't support dynamic additions.
	Add(ip string)
	Mode() Mode
}

// AllowAll is the zero-configuration ACL: every peer is permitted and
// Add is a no-op. Used when no ACL file is configured.
type AllowAll struct{}

func (AllowAll) Match(string) bool { return true }
func (AllowAll) Add(string)        {}
func (AllowAll) Mode() Mode        { return Black }
