package protocol

import "errors"

// Kind classifies a connection-ending condition per the error table in
// spec §7. Every failure on a connection is self-contained — a Kind
// never propagates to any other connection.
type Kind int

const (
	KindShortRead Kind = iota
	KindBadHeader
	KindAuthFail
	KindDuplicateIV
	KindDecryptFail
	KindResolveFail
	KindConnectFail
	KindIdleTimeout
	KindPeerClose
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindShortRead:
		return "short_read"
	case KindBadHeader:
		return "bad_header"
	case KindAuthFail:
		return "auth_fail"
	case KindDuplicateIV:
		return "duplicate_iv"
	case KindDecryptFail:
		return "decrypt_fail"
	case KindResolveFail:
		return "resolve_fail"
	case KindConnectFail:
		return "connect_fail"
	case KindIdleTimeout:
		return "idle_timeout"
	case KindPeerClose:
		return "peer_close"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Report peer: ShortRead/Transient/PeerClose do not warrant it; the rest
// of the table is the authoritative source for whether a failure should
// be reported to the ACL for auto-ban.
func (k Kind) ReportsPeer() bool {
	switch k {
	case KindBadHeader, KindAuthFail:
		return true
	default:
		return false
	}
}

// Quiet marks kinds that close without logging at warn/error level —
// DuplicateIV and PeerClose are routine traffic, not anomalies.
func (k Kind) Quiet() bool {
	switch k {
	case KindDuplicateIV, KindPeerClose, KindTransient:
		return true
	default:
		return false
	}
}

// ErrBadHeader wraps any ATYP/length validation failure; errors.Is
// against it to classify a ParseHeader failure as Kind BadHeader.
var ErrBadHeader = errors.New("protocol: bad header")

// errShortHeader signals "not enough bytes yet" — the caller should wait
// for more data rather than close the connection (spec's ShortRead kind
// is explicitly "wait for more, do not close").
var errShortHeader = errors.New("protocol: short header")

// IsShortHeader reports whether err is the short-header sentinel.
func IsShortHeader(err error) bool { return errors.Is(err, errShortHeader) }
