package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxChunkLen caps the LEN field the reassembler will honor. The source
// trusts LEN up to u16 (65535) with no further bound; capping at
// MaxChunkLen avoids an unbounded per-chunk allocation from a hostile or
// corrupt peer (spec §9 open question, decided in DESIGN.md).
const MaxChunkLen = 16 * 1024 // BUF_SIZE equivalent; see relay.BufSize

// ChunkReassembler tracks the authenticated-payload-chunk state machine
// described in spec §3/§4.C: `len(be16) ‖ hmac(10) ‖ payload` frames,
// verified in strictly increasing counter order.
type ChunkReassembler struct {
	pending []byte // bytes accumulated toward the current frame
	counter uint32
}

// NewChunkReassembler returns a reassembler with counter starting at 0,
// matching the sender's initial chunk_counter.
func NewChunkReassembler() *ChunkReassembler {
	return &ChunkReassembler{}
}

// Feed appends newly decrypted bytes to the reassembler's pending buffer.
func (r *ChunkReassembler) Feed(b []byte) {
	r.pending = append(r.pending, b...)
}

// ChunkAuther verifies one chunk's HMAC tag, keyed by IV and the chunk's
// counter. Implemented by streamcipher.ChunkAuth + ConstantTimeCompare
// via a small adapter in relay, to avoid protocol importing streamcipher
// for a single function pair.
type ChunkAuther interface {
	Verify(iv []byte, counter uint32, payload, tag []byte) bool
}

// Next extracts and verifies complete chunks accumulated so far, calling
// auth.Verify for each. It returns the verified payloads in order and
// consumes their bytes from the pending buffer; any trailing partial
// chunk is left in place for the next Feed. A verification failure
// returns immediately with KindAuthFail — the caller must close the
// connection (spec §4.C: "on mismatch the connection is terminated").
func (r *ChunkReassembler) Next(iv []byte, auth ChunkAuther) ([][]byte, error) {
	var payloads [][]byte

	for {
		const headerLen = 2 + 10
		if len(r.pending) < headerLen {
			return payloads, nil
		}

		length := int(binary.BigEndian.Uint16(r.pending[:2]))
		if length > MaxChunkLen {
			return payloads, fmt.Errorf("%w: chunk length %d exceeds cap", ErrBadHeader, length)
		}

		total := headerLen + length
		if len(r.pending) < total {
			return payloads, nil
		}

		tag := r.pending[2:headerLen]
		payload := r.pending[headerLen:total]

		if !auth.Verify(iv, r.counter, payload, tag) {
			return payloads, fmt.Errorf("protocol: chunk %d: %w", r.counter, errChunkAuthFail)
		}

		payloads = append(payloads, append([]byte{}, payload...))
		r.pending = r.pending[total:]
		r.counter++
	}
}

var errChunkAuthFail = errors.New("chunk authentication failed")

// IsChunkAuthFail reports whether err originated from a chunk HMAC
// mismatch, for callers classifying the failure as Kind AuthFail.
func IsChunkAuthFail(err error) bool {
	return errors.Is(err, errChunkAuthFail)
}

// ChunkSigner computes one payload chunk's HMAC tag, keyed by IV and the
// chunk's counter — the encode-side counterpart of ChunkAuther.
// Implemented by streamcipher.ChunkAuth via the same small adapter in
// relay that implements ChunkAuther, keeping protocol free of a
// streamcipher import.
type ChunkSigner interface {
	Sign(iv []byte, counter uint32, payload []byte) []byte
}

// ChunkEncoder frames outbound payload into the `len ‖ hmac ‖ payload`
// chunks spec §4.C describes, for the sending side of a one-time-auth
// connection (the request direction only). It mirrors ChunkReassembler,
// which does the equivalent work on the receiving side: both start
// their counter at 0 and advance it once per chunk, so the two stay in
// lockstep across the connection.
type ChunkEncoder struct {
	counter uint32
}

// NewChunkEncoder returns an encoder with counter starting at 0.
func NewChunkEncoder() *ChunkEncoder {
	return &ChunkEncoder{}
}

// Encode signs payload under the chunk's current counter, returns the
// wire frame, and advances the counter for the next call.
func (e *ChunkEncoder) Encode(iv, payload []byte, signer ChunkSigner) []byte {
	tag := signer.Sign(iv, e.counter, payload)
	e.counter++

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))

	frame := make([]byte, 0, len(hdr)+len(tag)+len(payload))
	frame = append(frame, hdr[:]...)
	frame = append(frame, tag...)
	frame = append(frame, payload...)
	return frame
}
