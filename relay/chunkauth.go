package relay

import (
	"shadowrelay/protocol"
	"shadowrelay/streamcipher"
)

// hmacChunkAuther adapts streamcipher's HMAC helpers to
// protocol.ChunkAuther, keeping protocol free of a streamcipher import.
type hmacChunkAuther struct{}

func (hmacChunkAuther) Verify(iv []byte, counter uint32, payload, tag []byte) bool {
	want := streamcipher.ChunkAuth(iv, counter, payload)
	return streamcipher.ConstantTimeCompare(want, tag)
}

// Sign computes the same tag Verify checks against, for the encode side
// of an OTA connection (relay.Tunnel's request direction).
func (hmacChunkAuther) Sign(iv []byte, counter uint32, payload []byte) []byte {
	return streamcipher.ChunkAuth(iv, counter, payload)
}

var (
	_ protocol.ChunkAuther = hmacChunkAuther{}
	_ protocol.ChunkSigner = hmacChunkAuther{}
)
