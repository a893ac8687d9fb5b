// Package streamcipher implements the cryptographic stream layer: cipher
// registry, EVP_BytesToKey key derivation, per-connection cipher contexts,
// the substitution-table legacy cipher, one-time authentication, and the
// IV replay cache.
package streamcipher

import (
	"sort"

	log "github.com/sirupsen/logrus"
)

// Family tags the three cipher construction strategies §4.A distinguishes.
type Family int

const (
	FamilyTable Family = iota
	FamilyBlockMode
	FamilyStreamPos
)

func (f Family) String() string {
	switch f {
	case FamilyTable:
		return "table"
	case FamilyBlockMode:
		return "block-mode"
	case FamilyStreamPos:
		return "stream-pos"
	default:
		return "unknown"
	}
}

// Descriptor is the static, shared cipher entry from the registry table.
type Descriptor struct {
	Name    string
	KeyLen  int
	IVLen   int
	Family  Family
	// Rekey marks ciphers (rc4-md5) that derive a fresh per-connection key
	// from master_key||iv and feed the primitive an empty nonce, while still
	// advertising IVLen on the wire. See the open question in spec §9.
	Rekey bool
	// counterBits is the primitive's native block-counter width, relevant
	// only to FamilyStreamPos. chacha20-ietf's IETF layout has a 32-bit
	// block counter; salsa20 and the legacy chacha20 layout both carry a
	// full 64-bit one.
	counterBits int
	// unsupported marks registry entries with no available primitive in the
	// dependency set used here (camellia, idea, rc2, seed). The entry still
	// reports correct key/iv sizes so registry lookups and wire framing stay
	// accurate; only construction fails.
	unsupported bool
}

var registry = map[string]Descriptor{
	"table":   {Name: "table", KeyLen: 0, IVLen: 0, Family: FamilyTable},
	"rc4":     {Name: "rc4", KeyLen: 16, IVLen: 0, Family: FamilyBlockMode},
	"rc4-md5": {Name: "rc4-md5", KeyLen: 16, IVLen: 16, Family: FamilyBlockMode, Rekey: true},

	"aes-128-cfb": {Name: "aes-128-cfb", KeyLen: 16, IVLen: 16, Family: FamilyBlockMode},
	"aes-192-cfb": {Name: "aes-192-cfb", KeyLen: 24, IVLen: 16, Family: FamilyBlockMode},
	"aes-256-cfb": {Name: "aes-256-cfb", KeyLen: 32, IVLen: 16, Family: FamilyBlockMode},

	"bf-cfb": {Name: "bf-cfb", KeyLen: 16, IVLen: 8, Family: FamilyBlockMode},

	"camellia-128-cfb": {Name: "camellia-128-cfb", KeyLen: 16, IVLen: 16, Family: FamilyBlockMode, unsupported: true},
	"camellia-192-cfb": {Name: "camellia-192-cfb", KeyLen: 24, IVLen: 16, Family: FamilyBlockMode, unsupported: true},
	"camellia-256-cfb": {Name: "camellia-256-cfb", KeyLen: 32, IVLen: 16, Family: FamilyBlockMode, unsupported: true},

	"cast5-cfb": {Name: "cast5-cfb", KeyLen: 16, IVLen: 8, Family: FamilyBlockMode},
	"des-cfb":   {Name: "des-cfb", KeyLen: 8, IVLen: 8, Family: FamilyBlockMode},

	"idea-cfb": {Name: "idea-cfb", KeyLen: 16, IVLen: 8, Family: FamilyBlockMode, unsupported: true},
	"rc2-cfb":  {Name: "rc2-cfb", KeyLen: 16, IVLen: 8, Family: FamilyBlockMode, unsupported: true},
	"seed-cfb": {Name: "seed-cfb", KeyLen: 16, IVLen: 16, Family: FamilyBlockMode, unsupported: true},

	"salsa20":       {Name: "salsa20", KeyLen: 32, IVLen: 8, Family: FamilyStreamPos, counterBits: 64},
	"chacha20":      {Name: "chacha20", KeyLen: 32, IVLen: 8, Family: FamilyStreamPos, counterBits: 64},
	"chacha20-ietf": {Name: "chacha20-ietf", KeyLen: 32, IVLen: 12, Family: FamilyStreamPos, counterBits: 32},
}

// Lookup returns the descriptor for a cipher name, if registered.
func Lookup(name string) (Descriptor, bool) {
	d, ok := registry[name]
	return d, ok
}

// Resolve mirrors the reference behavior: an unknown cipher name silently
// falls back to "table" with a warning, rather than failing startup.
func Resolve(name string) Descriptor {
	if d, ok := registry[name]; ok {
		return d
	}
	log.Warnf("streamcipher: unknown cipher %q, falling back to table", name)
	return registry["table"]
}

// Names returns the sorted set of registered cipher names, used by config
// validation to produce a helpful error listing supported ciphers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
