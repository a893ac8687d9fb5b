package relay

import (
	"errors"

	"shadowrelay/protocol"
)

// Sentinel errors a splice/accept loop can classify via errors.Is into a
// protocol.Kind for logging and ACL reporting (spec §7).
var (
	ErrDuplicateIV = errors.New("relay: duplicate iv")
	ErrAuthFail    = errors.New("relay: authentication failed")
	ErrDecryptFail = errors.New("relay: decrypt failed")
	ErrResolveFail = errors.New("relay: resolve failed")
	ErrConnectFail = errors.New("relay: connect failed")
	ErrIdleTimeout = errors.New("relay: idle timeout")
)

// classify maps a connection-ending error to its spec §7 Kind for
// logging verbosity and ACL auto-ban decisions.
func classify(err error) protocol.Kind {
	switch {
	case err == nil:
		return protocol.KindPeerClose
	case errors.Is(err, ErrDuplicateIV):
		return protocol.KindDuplicateIV
	case errors.Is(err, ErrAuthFail), protocol.IsChunkAuthFail(err):
		return protocol.KindAuthFail
	case errors.Is(err, ErrDecryptFail):
		return protocol.KindDecryptFail
	case errors.Is(err, ErrResolveFail):
		return protocol.KindResolveFail
	case errors.Is(err, ErrConnectFail):
		return protocol.KindConnectFail
	case errors.Is(err, ErrIdleTimeout):
		return protocol.KindIdleTimeout
	case protocol.IsShortHeader(err):
		return protocol.KindShortRead
	case errors.Is(err, protocol.ErrBadHeader):
		return protocol.KindBadHeader
	case isTimeout(err):
		return protocol.KindTransient
	default:
		return protocol.KindPeerClose
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
