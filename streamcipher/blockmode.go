package streamcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec // des-cfb is a legacy compatibility cipher named by the registry.
	"crypto/md5" //nolint:gosec // rc4-md5 per-connection rekey, see spec §4.C.
	"crypto/rc4" //nolint:gosec // rc4/rc4-md5 are legacy compatibility ciphers named by the registry.
	"fmt"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
)

// newBlockModeStream builds the cipher.Stream for a BlockMode cipher.
// isEncrypt selects CFB encrypt vs decrypt mode for block ciphers; RC4
// variants have no mode distinction (the same keystream generator both
// encrypts and decrypts via XOR).
func newBlockModeStream(d Descriptor, key, iv []byte, isEncrypt bool) (cipher.Stream, error) {
	if d.unsupported {
		return nil, fmt.Errorf("streamcipher: %s has no available primitive in this build", d.Name)
	}

	switch d.Name {
	case "rc4", "rc4-md5":
		return rc4.NewCipher(key) //nolint:gosec
	}

	block, err := newBlockCipher(d.Name, key)
	if err != nil {
		return nil, err
	}
	if isEncrypt {
		return cipher.NewCFBEncrypter(block, iv), nil
	}
	return cipher.NewCFBDecrypter(block, iv), nil
}

func newBlockCipher(name string, key []byte) (cipher.Block, error) {
	switch name {
	case "aes-128-cfb", "aes-192-cfb", "aes-256-cfb":
		return aes.NewCipher(key)
	case "des-cfb":
		return des.NewCipher(key) //nolint:gosec
	case "bf-cfb":
		return blowfish.NewCipher(key)
	case "cast5-cfb":
		return cast5.NewCipher(key)
	default:
		return nil, fmt.Errorf("streamcipher: no block cipher constructor for %s", name)
	}
}

// rc4MD5ConnectionKey derives the per-connection RC4 key for rc4-md5:
// MD5(master_key || iv). The primitive is then constructed with an empty
// nonce — rc4-md5 has no separate IV concept once rekeyed (spec §4.C, §9).
func rc4MD5ConnectionKey(masterKey, iv []byte) []byte {
	sum := md5.Sum(append(append([]byte{}, masterKey...), iv...)) //nolint:gosec
	return sum[:]
}
