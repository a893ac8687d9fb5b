package streamcipher

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

// streamPosPrimitive XORs src into dst using the keystream starting at
// 64-byte block blockIdx. Callers are responsible for the
// "padding = counter mod 64" trick (spec §4.C) that lets arbitrary byte
// ranges be requested while the primitive itself only ever starts at a
// block boundary.
type streamPosPrimitive interface {
	xorAtBlock(dst, src []byte, blockIdx uint64)
}

// salsaPrimitive wraps golang.org/x/crypto/salsa20/salsa's block-addressable
// core. The low-level salsa.XORKeyStream takes a 16-byte counter array built
// from an 8-byte nonce and an 8-byte little-endian block counter, which maps
// directly onto spec §4.C's "block = counter / 64" addressing.
type salsaPrimitive struct {
	key   [32]byte
	nonce [8]byte
}

func newSalsaPrimitive(key, iv []byte) (*salsaPrimitive, error) {
	if len(key) != 32 || len(iv) != 8 {
		return nil, fmt.Errorf("streamcipher: salsa20 requires 32-byte key and 8-byte iv")
	}
	p := &salsaPrimitive{}
	copy(p.key[:], key)
	copy(p.nonce[:], iv)
	return p, nil
}

func (p *salsaPrimitive) xorAtBlock(dst, src []byte, blockIdx uint64) {
	var counter [16]byte
	copy(counter[:8], p.nonce[:])
	putUint64LE(counter[8:], blockIdx)
	salsa.XORKeyStream(dst, src, &counter, &p.key)
}

// chacha20IETFPrimitive wraps golang.org/x/crypto/chacha20, which
// natively implements the IETF 12-byte-nonce/32-bit-counter variant
// spec §4.A's "chacha20-ietf" cipher needs.
// A fresh chacha20.Cipher is built for every call, because SetCounter
// refuses to move a cipher's counter backwards and a mid-block call
// restarts at a block that an earlier call already consumed.
type chacha20IETFPrimitive struct {
	key   []byte
	nonce []byte
}

func newChaCha20IETFPrimitive(key, iv []byte) (*chacha20IETFPrimitive, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("streamcipher: chacha20-ietf requires a 32-byte key")
	}
	if len(iv) != chacha20.NonceSize {
		return nil, fmt.Errorf("streamcipher: chacha20-ietf requires a %d-byte iv", chacha20.NonceSize)
	}
	if _, err := chacha20.NewUnauthenticatedCipher(key, iv); err != nil {
		return nil, err
	}
	return &chacha20IETFPrimitive{key: append([]byte{}, key...), nonce: append([]byte{}, iv...)}, nil
}

func (p *chacha20IETFPrimitive) xorAtBlock(dst, src []byte, blockIdx uint64) {
	c, _ := chacha20.NewUnauthenticatedCipher(p.key, p.nonce) // sizes checked in the constructor
	c.SetCounter(uint32(blockIdx))
	c.XORKeyStream(dst, src)
}

// chacha20Primitive implements the original (pre-IETF) Bernstein
// ChaCha20 layout that shadowsocks-libev's "chacha20" cipher (as
// opposed to "chacha20-ietf") uses: a 64-bit block counter in state
// words 12-13 and an 8-byte nonce in words 14-15, rather than the IETF
// layout's 32-bit counter in word 12 and 12-byte nonce in words 13-15.
// golang.org/x/crypto/chacha20 only implements the IETF layout, so this
// reimplements the block function directly from RFC 7539's algorithm
// (the round function is identical between the two variants; only the
// state's counter/nonce words differ) rather than produce a keystream
// that would never match a real shadowsocks-libev "chacha20" peer.
type chacha20Primitive struct {
	key   [8]uint32
	nonce [2]uint32
}

func newChaCha20Primitive(key, iv []byte) (*chacha20Primitive, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("streamcipher: chacha20 requires a 32-byte key")
	}
	if len(iv) != 8 {
		return nil, fmt.Errorf("streamcipher: chacha20 requires an 8-byte iv")
	}
	p := &chacha20Primitive{}
	for i := 0; i < 8; i++ {
		p.key[i] = binary.LittleEndian.Uint32(key[i*4 : i*4+4])
	}
	p.nonce[0] = binary.LittleEndian.Uint32(iv[0:4])
	p.nonce[1] = binary.LittleEndian.Uint32(iv[4:8])
	return p, nil
}

func (p *chacha20Primitive) xorAtBlock(dst, src []byte, blockIdx uint64) {
	for offset := 0; offset < len(src); offset += chachaBlockSize {
		end := offset + chachaBlockSize
		if end > len(src) {
			end = len(src)
		}

		state := [16]uint32{
			chachaConst0, chachaConst1, chachaConst2, chachaConst3,
			p.key[0], p.key[1], p.key[2], p.key[3],
			p.key[4], p.key[5], p.key[6], p.key[7],
			uint32(blockIdx), uint32(blockIdx >> 32),
			p.nonce[0], p.nonce[1],
		}

		var keystream [chachaBlockSize]byte
		chachaBlock(&state, &keystream)

		for i := offset; i < end; i++ {
			dst[i] = src[i] ^ keystream[i-offset]
		}
		blockIdx++
	}
}

// chachaBlockSize is the ChaCha20 block size in bytes, shared by both
// the legacy and IETF layouts.
const chachaBlockSize = 64

// ChaCha's four constant words, "expand 32-byte k" in little-endian.
const (
	chachaConst0 = 0x61707865
	chachaConst1 = 0x3320646e
	chachaConst2 = 0x79622d32
	chachaConst3 = 0x6b206574
)

// chachaBlock runs the 20-round ChaCha core over state, writing the
// resulting 64-byte keystream block to out.
func chachaBlock(state *[16]uint32, out *[chachaBlockSize]byte) {
	var w [16]uint32
	copy(w[:], state[:])

	for i := 0; i < 10; i++ {
		chachaQuarterRound(&w, 0, 4, 8, 12)
		chachaQuarterRound(&w, 1, 5, 9, 13)
		chachaQuarterRound(&w, 2, 6, 10, 14)
		chachaQuarterRound(&w, 3, 7, 11, 15)
		chachaQuarterRound(&w, 0, 5, 10, 15)
		chachaQuarterRound(&w, 1, 6, 11, 12)
		chachaQuarterRound(&w, 2, 7, 8, 13)
		chachaQuarterRound(&w, 3, 4, 9, 14)
	}

	for i, word := range w {
		word += state[i]
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], word)
	}
}

func chachaQuarterRound(w *[16]uint32, a, b, c, d int) {
	w[a] += w[b]
	w[d] ^= w[a]
	w[d] = chachaRotl(w[d], 16)

	w[c] += w[d]
	w[b] ^= w[c]
	w[b] = chachaRotl(w[b], 12)

	w[a] += w[b]
	w[d] ^= w[a]
	w[d] = chachaRotl(w[d], 8)

	w[c] += w[d]
	w[b] ^= w[c]
	w[b] = chachaRotl(w[b], 7)
}

func chachaRotl(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
