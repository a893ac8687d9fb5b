package streamcipher

import "crypto/md5" //nolint:gosec // OpenSSL-compatible EVP_BytesToKey requires MD5; see spec §4.B.

// DeriveKey implements OpenSSL's EVP_BytesToKey(MD5, pass, salt=nil, iters=1):
// repeatedly hash MD5(previous_digest || pass), concatenating digests until
// keyLen bytes are available. Byte-exact compatibility with OpenSSL is a
// hard interoperability requirement (spec §4.B), not a style choice.
func DeriveKey(passphrase string, keyLen int) []byte {
	var (
		result []byte
		prev   []byte
	)
	for len(result) < keyLen {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(passphrase))
		sum := h.Sum(nil)
		result = append(result, sum...)
		prev = sum
	}
	return result[:keyLen]
}
