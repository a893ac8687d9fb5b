package relay

import (
	"io"
)

// spliceOne copies from src to dst until src returns an error (including
// io.EOF on clean peer close), using buf to hold a chunk while writing
// it out. onActivity is invoked after every successful read, so the
// caller can re-arm the client-side idle timer as spec §4.D requires
// ("any activity on either side re-arms the client-side timer").
//
// Under the goroutine-per-connection model a Write to a net.Conn already
// blocks until the whole chunk is accepted by the OS socket buffer (or
// fails), so there is no EAGAIN/partial-write case to special-case the
// way the reactor's non-blocking sockets require — Buffer still holds
// the in-flight chunk so the structure generalizes if a non-blocking
// transport is substituted later.
func spliceOne(dst io.Writer, src io.Reader, buf *Buffer, onActivity func()) error {
	_, err := spliceCount(dst, src, buf, onActivity)
	return err
}

// spliceCount is spliceOne plus a running total of bytes successfully
// read from src, used to feed the manager-channel traffic report.
func spliceCount(dst io.Writer, src io.Reader, buf *Buffer, onActivity func()) (int64, error) {
	chunk := make([]byte, BufSize)
	var total int64
	for {
		n, rerr := src.Read(chunk)
		if n > 0 {
			total += int64(n)
			if onActivity != nil {
				onActivity()
			}
			buf.Append(chunk[:n])
			for buf.HasPending() {
				written, werr := dst.Write(buf.Pending())
				if written > 0 {
					buf.Advance(written)
				}
				if werr != nil {
					return total, werr
				}
			}
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
