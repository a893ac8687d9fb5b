package relay

import (
	"fmt"
	"net"

	"shadowrelay/streamcipher"
)

// Conn wraps a net.Conn with a pair of per-direction cipher contexts,
// lazily initialized on first use exactly as spec §4.C describes: the
// write side generates its IV on first Write, the read side consumes the
// peer's IV off the wire on first Read. This mirrors the teacher's
// pattern of a connection object owning its crypto/session state
// (github.com/gwest/go-sol's Session wraps one RMCP+ session the same
// way a Conn here wraps one Shadowsocks stream).
type Conn struct {
	net.Conn

	desc      streamcipher.Descriptor
	masterKey []byte
	ivCache   *streamcipher.IVCache

	enc     *streamcipher.Context
	dec     *streamcipher.Context
	wroteIV bool
}

// NewConn builds a Conn ready to encrypt/decrypt once the cipher has
// been established. ivCache may be nil for the table cipher, which has
// no IV to replay-check.
func NewConn(nc net.Conn, desc streamcipher.Descriptor, masterKey []byte, ivCache *streamcipher.IVCache) *Conn {
	return &Conn{
		Conn:      nc,
		desc:      desc,
		masterKey: masterKey,
		ivCache:   ivCache,
		enc:       streamcipher.NewContext(desc, masterKey),
		dec:       streamcipher.NewContext(desc, masterKey),
	}
}

// Read reads available ciphertext from the wire and decrypts it in
// place into dst, returning the number of plaintext bytes produced. It
// shadows the embedded net.Conn's Read so a *Conn satisfies net.Conn
// while being transparently decrypting to every caller, including
// io.Copy-style splice loops. On the very first call it also consumes
// the leading IV, checking it against the replay cache (spec §4.C
// decrypt path, §4.G).
func (c *Conn) Read(dst []byte) (int, error) {
	if c.dec.IV() == nil {
		if err := c.initDecrypt(); err != nil {
			return 0, err
		}
	}

	n, err := c.Conn.Read(dst)
	if n > 0 {
		c.dec.Crypt(dst[:n], dst[:n])
	}
	return n, err
}

func (c *Conn) initDecrypt() error {
	ivLen := c.desc.IVLen
	if ivLen > 0 {
		iv := make([]byte, ivLen)
		if _, err := readFull(c.Conn, iv); err != nil {
			return fmt.Errorf("relay: reading iv: %w", err)
		}
		if c.ivCache != nil && !c.ivCache.CheckAndInsert(iv) {
			return ErrDuplicateIV
		}
		return c.dec.InitDecrypt(iv)
	}
	return c.dec.InitDecrypt(nil)
}

// Write encrypts src and writes it to the wire, prefixing the fresh
// random IV on the very first call (spec §4.C encrypt path). It shadows
// the embedded net.Conn's Write for the same transparency reason Read
// does.
func (c *Conn) Write(src []byte) (int, error) {
	if c.enc.IV() == nil {
		if err := c.enc.InitEncrypt(); err != nil {
			return 0, err
		}
	}

	out := make([]byte, len(src))
	c.enc.Crypt(out, src)

	var prefix []byte
	if iv := c.enc.IV(); len(iv) > 0 && c.firstWrite() {
		prefix = iv
	}

	if prefix != nil {
		if _, err := c.Conn.Write(append(prefix, out...)); err != nil {
			return 0, err
		}
		return len(src), nil
	}
	if _, err := c.Conn.Write(out); err != nil {
		return 0, err
	}
	return len(src), nil
}

// firstWrite reports whether the IV prefix still needs to be sent. It is
// tracked separately from enc.IV() being non-nil because InitEncrypt
// sets the IV before any bytes reach the wire.
func (c *Conn) firstWrite() bool {
	wrote := c.wroteIV
	c.wroteIV = true
	return !wrote
}

var _ net.Conn = (*Conn)(nil)

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
