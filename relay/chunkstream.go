package relay

import (
	"shadowrelay/protocol"
)

// chunkDecodingReader adapts a decrypting *Conn into an io.Reader of
// verified payload bytes for the life of the connection, keeping every
// read — not just the header's residual bytes — flowing through the
// same ChunkReassembler (spec §4.C, "request direction only"). Without
// this, only the bytes that happened to arrive bundled with the header
// get chunk-verified and everything splice reads afterward would be
// forwarded to upstream with its length/HMAC framing still attached.
type chunkDecodingReader struct {
	src *Conn
	cr  *protocol.ChunkReassembler

	out []byte // verified payload bytes not yet returned to the caller
	err error  // sticky error, surfaced once out is drained
}

func newChunkDecodingReader(src *Conn, cr *protocol.ChunkReassembler) *chunkDecodingReader {
	return &chunkDecodingReader{src: src, cr: cr}
}

func (r *chunkDecodingReader) Read(dst []byte) (int, error) {
	chunk := make([]byte, BufSize)
	for len(r.out) == 0 && r.err == nil {
		n, rerr := r.src.Read(chunk)
		if n > 0 {
			r.cr.Feed(chunk[:n])
			payloads, verr := r.cr.Next(r.src.dec.IV(), hmacChunkAuther{})
			if verr != nil {
				r.err = ErrAuthFail
				break
			}
			for _, p := range payloads {
				r.out = append(r.out, p...)
			}
		}
		if rerr != nil {
			r.err = rerr
		}
	}

	n := copy(dst, r.out)
	r.out = r.out[n:]
	if len(r.out) == 0 && r.err != nil {
		return n, r.err
	}
	return n, nil
}

// chunkEncodingWriter frames every write as one complete one-time-auth
// chunk (spec §4.C) before handing it to the underlying encrypting
// *Conn, so the request direction of an OTA-enabled Tunnel produces the
// `len ‖ hmac ‖ payload` framing a real chunk-auth-aware peer expects.
// Each call from spliceCount passes at most BufSize bytes — no more than
// protocol.MaxChunkLen — so one Read from the plaintext side becomes
// exactly one frame.
type chunkEncodingWriter struct {
	dst *Conn
	enc *protocol.ChunkEncoder
}

func newChunkEncodingWriter(dst *Conn) *chunkEncodingWriter {
	return &chunkEncodingWriter{dst: dst, enc: protocol.NewChunkEncoder()}
}

func (w *chunkEncodingWriter) Write(p []byte) (int, error) {
	frame := w.enc.Encode(w.dst.enc.IV(), p, hmacChunkAuther{})
	if _, err := w.dst.Write(frame); err != nil {
		return 0, err
	}
	return len(p), nil
}
