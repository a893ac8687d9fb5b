package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"shadowrelay/connlog"
	"shadowrelay/protocol"
	"shadowrelay/reporter"
	"shadowrelay/streamcipher"
)

// Tunnel implements the ss-tunnel side (spec §4.D "Tunnel side"):
// accepts plaintext local connections and, on first contact with the
// remote server, synthesizes the fixed destination header, optionally
// authenticates and chunk-frames it, encrypts, and splices.
type Tunnel struct {
	desc       streamcipher.Descriptor
	masterKey  []byte
	auth       bool
	remoteAddr string
	dest       protocol.Destination

	reporter    *reporter.Reporter
	connLog     *connlog.Writer
	idleTimeout time.Duration
}

// NewTunnel constructs a Tunnel that dials remoteAddr and addresses
// every connection at dest.
func NewTunnel(desc streamcipher.Descriptor, masterKey []byte, auth bool, remoteAddr string, dest protocol.Destination, rep *reporter.Reporter, cl *connlog.Writer, idleTimeout time.Duration) *Tunnel {
	return &Tunnel{
		desc:        desc,
		masterKey:   masterKey,
		auth:        auth,
		remoteAddr:  remoteAddr,
		dest:        dest,
		reporter:    rep,
		connLog:     cl,
		idleTimeout: idleTimeout,
	}
}

// Serve accepts plaintext local connections on ln until ctx is canceled.
func (t *Tunnel) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("relay: tunnel accept: %w", err)
		}
		go t.handleConn(ctx, nc)
	}
}

func (t *Tunnel) handleConn(ctx context.Context, local net.Conn) {
	peer := local.RemoteAddr().String()
	defer local.Close()

	d := net.Dialer{Timeout: 10 * time.Second}
	remoteRaw, err := d.DialContext(ctx, "tcp", t.remoteAddr)
	if err != nil {
		log.Warnf("relay: tunnel %s: connect to %s: %v", peer, t.remoteAddr, err)
		return
	}
	defer remoteRaw.Close()

	remote := NewConn(remoteRaw, t.desc, t.masterKey, nil)

	if err := t.sendHeader(remote); err != nil {
		log.Warnf("relay: tunnel %s: sending header: %v", peer, err)
		return
	}

	log.Infof("relay: tunnel %s SPLICING -> %s via %s", peer, t.dest, t.remoteAddr)
	t.splice(local, remote, peer)
}

// requestWriter returns the io.Writer the local->remote (request)
// direction writes through: a chunkEncodingWriter when one-time auth is
// on, framing every write per spec §4.C, or remote itself otherwise.
func (t *Tunnel) requestWriter(remote *Conn) io.Writer {
	if t.auth {
		return newChunkEncodingWriter(remote)
	}
	return remote
}

// sendHeader writes the fixed destination header as the first bytes of
// the encrypted stream, before any client payload.
func (t *Tunnel) sendHeader(remote *Conn) error {
	header := protocol.BuildHeader(t.dest, t.auth)
	if t.auth {
		// The header HMAC is keyed by this connection's write-side IV,
		// which InitEncrypt generates on the very first Write. Force it
		// now so the IV is available to compute the tag before any
		// bytes reach the wire.
		if remote.enc.IV() == nil {
			if err := remote.enc.InitEncrypt(); err != nil {
				return err
			}
		}
		tag := streamcipher.HeaderAuth(remote.enc.IV(), t.masterKey, header)
		header = append(header, tag...)
	}
	_, err := remote.Write(header)
	return err
}

func (t *Tunnel) splice(local net.Conn, remote *Conn, peer string) {
	idle := newIdleCloser(local, t.idleTimeout)
	defer idle.stop()

	var wg sync.WaitGroup
	wg.Add(2)

	// As in Server.splice, each pair below belongs to exactly one
	// goroutine and is only read after wg.Wait().
	var up, down int64
	var errUp, errDown error
	go func() {
		defer wg.Done()
		defer closeWrite(remote.Conn)
		n, err := spliceCount(t.requestWriter(remote), local, &Buffer{}, idle.reset)
		up = n
		errUp = err
	}()
	go func() {
		defer wg.Done()
		n, err := spliceCount(local, remote, &Buffer{}, idle.reset)
		down = n
		errDown = err
		local.Close()
	}()
	wg.Wait()

	lastErr := errUp
	if lastErr == nil {
		lastErr = errDown
	}
	if addr, ok := local.LocalAddr().(*net.TCPAddr); ok {
		t.reporter.ReportTraffic(addr.Port, up+down)
	}
	if t.connLog != nil {
		t.connLog.LogClose("tunnel", peer, t.dest.String(), classify(lastErr), up, down, lastErr)
	}
	log.Debugf("relay: tunnel %s closed", peer)
}
