package streamcipher

import (
	"crypto/md5" //nolint:gosec // legacy table cipher keying, see spec §4.F.
	"encoding/binary"
	"sort"
)

// tableCipher is the legacy substitution-table method: a permutation of
// 0..=255 derived from the passphrase, encrypted/decrypted by byte-wise
// lookup. No IV, no per-connection state, no authentication (spec §4.F).
type tableCipher struct {
	enc [256]byte
	dec [256]byte
}

// buildTableCipher derives the encryption table from the passphrase and its
// exact inverse for decryption.
//
// key = first 8 bytes of MD5(pass), little-endian.
// T = [0, 1, ..., 255]; for salt in 1..=1023, stable-sort T by the
// comparator (x, y) -> key mod (x+salt) - key mod (y+salt).
func buildTableCipher(passphrase string) *tableCipher {
	sum := md5.Sum([]byte(passphrase)) //nolint:gosec
	key := binary.LittleEndian.Uint64(sum[:8])

	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}

	for salt := uint64(1); salt <= 1023; salt++ {
		sort.SliceStable(t[:], func(i, j int) bool {
			a := key % (uint64(t[i]) + salt)
			b := key % (uint64(t[j]) + salt)
			return a < b
		})
	}

	var dec [256]byte
	for i, v := range t {
		dec[v] = byte(i)
	}

	return &tableCipher{enc: t, dec: dec}
}

func (tc *tableCipher) Encrypt(dst, src []byte) {
	for i, b := range src {
		dst[i] = tc.enc[b]
	}
}

func (tc *tableCipher) Decrypt(dst, src []byte) {
	for i, b := range src {
		dst[i] = tc.dec[b]
	}
}
