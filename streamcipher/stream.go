package streamcipher

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Context is a per-direction cipher state: one for the connection's read
// side, one for its write side. It is lazily initialized — a server-side
// read context doesn't know the peer's IV until the first header bytes
// arrive, and a write context doesn't generate its IV until the first
// byte needs encrypting (spec §4.B).
type Context struct {
	desc       Descriptor
	masterKey  []byte
	encrypting bool

	iv []byte

	blockStream cipher.Stream // FamilyBlockMode
	streamPos   streamPosPrimitive
	table       *tableCipher

	// counter is the running byte offset into the keystream, used by
	// FamilyStreamPos to compute the block index and intra-block padding
	// for each Crypt call (spec §4.C).
	counter uint64
}

// NewContext builds an uninitialized Context for the given cipher and
// master key. Call InitEncrypt or InitDecrypt before Crypt.
func NewContext(d Descriptor, masterKey []byte) *Context {
	return &Context{desc: d, masterKey: masterKey}
}

// IV returns the context's IV, valid only after Init{Encrypt,Decrypt}.
func (c *Context) IV() []byte { return c.iv }

// InitEncrypt generates a fresh random IV (skipped for the table and
// bare-rc4 ciphers, which carry none) and initializes the keystream.
// The caller is responsible for prefixing the IV onto the first frame
// written to the wire.
func (c *Context) InitEncrypt() error {
	c.encrypting = true
	if c.desc.IVLen == 0 {
		return c.init(nil)
	}
	iv := make([]byte, c.desc.IVLen)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("streamcipher: generating iv: %w", err)
	}
	return c.init(iv)
}

// InitDecrypt initializes the keystream from a peer-supplied IV read off
// the wire. iv must be exactly desc.IVLen bytes (or empty, for ciphers
// with no IV).
func (c *Context) InitDecrypt(iv []byte) error {
	c.encrypting = false
	if len(iv) != c.desc.IVLen {
		return fmt.Errorf("streamcipher: %s expects %d-byte iv, got %d", c.desc.Name, c.desc.IVLen, len(iv))
	}
	return c.init(iv)
}

func (c *Context) init(iv []byte) error {
	if c.iv != nil {
		return fmt.Errorf("streamcipher: context already initialized")
	}
	if iv == nil {
		iv = []byte{}
	}
	c.iv = iv

	switch c.desc.Family {
	case FamilyTable:
		c.table = buildTableCipher(string(c.masterKey))
		return nil

	case FamilyStreamPos:
		switch c.desc.Name {
		case "salsa20":
			p, err := newSalsaPrimitive(c.masterKey, iv)
			if err != nil {
				return err
			}
			c.streamPos = p
		case "chacha20":
			p, err := newChaCha20Primitive(c.masterKey, iv)
			if err != nil {
				return err
			}
			c.streamPos = p
		case "chacha20-ietf":
			p, err := newChaCha20IETFPrimitive(c.masterKey, iv)
			if err != nil {
				return err
			}
			c.streamPos = p
		default:
			return fmt.Errorf("streamcipher: no stream-position primitive for %s", c.desc.Name)
		}
		return nil

	case FamilyBlockMode:
		key := c.masterKey
		if c.desc.Rekey {
			key = rc4MD5ConnectionKey(c.masterKey, iv)
		}
		stream, err := newBlockModeStream(c.desc, key, iv, c.encrypting)
		if err != nil {
			return err
		}
		c.blockStream = stream
		return nil

	default:
		return fmt.Errorf("streamcipher: unknown cipher family")
	}
}

// Crypt transforms src into dst (len(dst) == len(src)) in whichever
// direction the context was initialized for, advancing the keystream.
// Block-mode ciphers are symmetric XOR or directional CFB (already fixed
// at Init time); stream-position ciphers re-derive the keystream at the
// current block per spec §4.C; the table cipher picks its forward or
// inverse permutation based on direction since it has no XOR structure.
func (c *Context) Crypt(dst, src []byte) {
	switch c.desc.Family {
	case FamilyTable:
		if c.encrypting {
			c.table.Encrypt(dst, src)
		} else {
			c.table.Decrypt(dst, src)
		}
	case FamilyBlockMode:
		c.blockStream.XORKeyStream(dst, src)
	case FamilyStreamPos:
		c.cryptStreamPos(dst, src)
	}
	c.counter += uint64(len(src))
}

const streamPosBlockSize = 64

// cryptStreamPos implements the "padding = counter mod 64" trick (spec
// §4.C): the underlying primitive only starts at a block boundary, so a
// mid-block Crypt call re-derives the whole containing block and
// discards the bytes before the requested offset.
func (c *Context) cryptStreamPos(dst, src []byte) {
	blockIdx := c.counter / streamPosBlockSize
	padding := int(c.counter % streamPosBlockSize)

	buf := make([]byte, padding+len(src))
	copy(buf[padding:], src)

	out := make([]byte, len(buf))
	c.streamPos.xorAtBlock(out, buf, blockIdx)

	copy(dst, out[padding:])
}
