package streamcipher

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // one-time-auth HMAC-SHA1 is the wire-mandated primitive, spec §4.C.
	"encoding/binary"
)

// AuthLen is the truncated HMAC-SHA1 tag length the one-time-auth option
// appends to the address header and each payload chunk (spec §4.C).
const AuthLen = 10

// HeaderAuth computes the one-time-auth tag for the address header: the
// first AuthLen bytes of HMAC-SHA1(key = iv||master_key, header).
func HeaderAuth(iv, masterKey, header []byte) []byte {
	return truncatedHMAC(authKey(iv, masterKey), header)
}

// ChunkAuth computes the one-time-auth tag for payload chunk number
// chunkIdx: the first AuthLen bytes of
// HMAC-SHA1(key = iv||chunk_counter_be32, msg = payload) (spec §4.C).
func ChunkAuth(iv []byte, chunkIdx uint32, payload []byte) []byte {
	var counter [4]byte
	binary.BigEndian.PutUint32(counter[:], chunkIdx)
	key := authKey(iv, counter[:])

	return truncatedHMAC(key, payload)
}

func authKey(iv, suffix []byte) []byte {
	key := make([]byte, 0, len(iv)+len(suffix))
	key = append(key, iv...)
	key = append(key, suffix...)
	return key
}

func truncatedHMAC(key, data []byte) []byte {
	h := hmac.New(sha1.New, key)
	h.Write(data)
	return h.Sum(nil)[:AuthLen]
}

// ConstantTimeCompare reports whether the two tags are equal, taking
// time independent of where they first differ. A length mismatch is
// itself revealing, but one-time-auth tags are always fixed-length so
// this never leaks more than hmac.Equal already would. Verification
// code must use this rather than bytes.Equal — a data-dependent compare
// is exactly the kind of timing side channel spec §4.C calls out.
func ConstantTimeCompare(a, b []byte) bool {
	return hmac.Equal(a, b)
}
