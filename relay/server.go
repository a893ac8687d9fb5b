// Package relay implements the per-connection protocol state machine
// and bidirectional splicing described in spec §4.D–§4.E: encrypted
// address-header parsing on the server side, upstream dialing, and
// buffered duplex forwarding with idle timeouts. The reactor's single
// event loop is replaced by a goroutine per connection — the
// task-per-connection alternative spec §9 explicitly sanctions — so the
// state names WAIT_HEADER/RESOLVING/CONNECTING/SPLICING are kept only as
// labels for logging, not as a dispatch table.
package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"shadowrelay/acl"
	"shadowrelay/connlog"
	"shadowrelay/protocol"
	"shadowrelay/reporter"
	"shadowrelay/resolver"
	"shadowrelay/statusapi"
	"shadowrelay/streamcipher"
)

// state labels a connection's phase purely for logging; see the package
// doc comment for why this isn't a dispatch table.
type state string

const (
	stateWaitHeader state = "WAIT_HEADER"
	stateResolving  state = "RESOLVING"
	stateConnecting state = "CONNECTING"
	stateSplicing   state = "SPLICING"
	stateClosed     state = "CLOSED"
)

// acceptBurst bounds how many connections a single source IP may open in
// a short burst before the per-IP rate.Limiter starts rejecting accepts
// from it; chosen to absorb a browser's normal burst of parallel
// requests without meaningfully slowing a real client.
const acceptBurst = 20

// Server implements the ss-server side: it accepts encrypted client
// connections, decrypts and parses the destination header, dials the
// named upstream, and splices.
type Server struct {
	desc      streamcipher.Descriptor
	masterKey []byte
	auth      bool

	ivCache  *streamcipher.IVCache
	acl      acl.ACL
	resolver resolver.Resolver
	reporter *reporter.Reporter
	connLog  *connlog.Writer
	stats    *statusapi.Stats

	idleTimeout time.Duration

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	// acceptRate is the steady-state accept rate permitted per source
	// IP; 0 disables limiting.
	acceptRate rate.Limit
}

// NewServer constructs a Server ready to Serve. masterKey must already
// be derived (streamcipher.DeriveKey) for desc.
func NewServer(desc streamcipher.Descriptor, masterKey []byte, auth bool, a acl.ACL, r resolver.Resolver, rep *reporter.Reporter, cl *connlog.Writer, stats *statusapi.Stats, idleTimeout time.Duration) *Server {
	if a == nil {
		a = acl.AllowAll{}
	}
	var ivCache *streamcipher.IVCache
	if desc.Family != streamcipher.FamilyTable {
		ivCache = streamcipher.NewIVCache(0)
	}
	return &Server{
		desc:        desc,
		masterKey:   masterKey,
		auth:        auth,
		ivCache:     ivCache,
		acl:         a,
		resolver:    r,
		reporter:    rep,
		connLog:     cl,
		stats:       stats,
		idleTimeout: idleTimeout,
		limiters:    make(map[string]*rate.Limiter),
		acceptRate:  rate.Limit(5),
	}
}

// Serve accepts and handles connections on ln until ctx is canceled or
// Accept fails. Each accepted connection runs in its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
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
			return fmt.Errorf("relay: accept: %w", err)
		}

		if !s.allow(nc) {
			s.stats.IncRejected()
			nc.Close()
			continue
		}

		s.stats.IncAccepted()
		s.stats.IncActive()
		go func() {
			defer s.stats.DecActive()
			s.handleConn(ctx, nc)
		}()
	}
}

// allow applies the ACL and per-IP accept rate limit before a connection
// is handed to a handler goroutine.
func (s *Server) allow(nc net.Conn) bool {
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		host = nc.RemoteAddr().String()
	}

	if !s.acl.Match(host) {
		log.Warnf("relay: rejecting %s: acl denied", host)
		return false
	}

	if s.acceptRate <= 0 {
		return true
	}
	if !s.limiterFor(host).Allow() {
		log.Warnf("relay: rejecting %s: accept rate exceeded", host)
		return false
	}
	return true
}

func (s *Server) limiterFor(host string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.acceptRate, acceptBurst)
		s.limiters[host] = l
	}
	return l
}

// handleConn runs the full WAIT_HEADER → RESOLVING/CONNECTING →
// SPLICING → CLOSED sequence for one accepted connection, never letting
// a failure here affect any other connection (spec §7).
func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	peer := nc.RemoteAddr().String()
	conn := NewConn(nc, s.desc, s.masterKey, s.ivCache)
	defer conn.Close()

	st := stateWaitHeader
	header, residual, err := s.readHeader(conn)
	if err != nil {
		s.fail(peer, st, err)
		return
	}

	st = stateResolving
	dest := header.Dest.String()
	upstream, err := s.dial(ctx, header)
	if err != nil {
		s.fail(peer, st, err)
		return
	}
	defer upstream.Close()

	st = stateSplicing
	log.Infof("relay: %s SPLICING -> %s", peer, dest)

	var chunkReassembler *protocol.ChunkReassembler
	if header.Auth {
		chunkReassembler = protocol.NewChunkReassembler()
	}
	if len(residual) > 0 {
		if err := s.forwardResidual(conn, upstream, chunkReassembler, residual); err != nil {
			s.fail(peer, st, err)
			return
		}
	}

	s.splice(conn, upstream, peer, dest, chunkReassembler)
	log.Debugf("relay: %s %s", peer, stateClosed)
}

// readHeader accumulates decrypted bytes from conn until a complete
// address header parses, verifying the header HMAC if the auth flag or
// global auth mode requires it (spec §4.D).
func (s *Server) readHeader(conn *Conn) (protocol.Header, []byte, error) {
	buf := make([]byte, 0, protocol.MinHeaderLen+protocol.AuthTagLen())
	chunk := make([]byte, BufSize)

	for {
		header, consumed, err := protocol.ParseHeader(buf)
		if err == nil {
			if s.auth && !header.Auth {
				return protocol.Header{}, nil, fmt.Errorf("%w: auth required but not set", protocol.ErrBadHeader)
			}
			if header.Auth {
				tag := protocol.AuthTag(buf, consumed)
				want := streamcipher.HeaderAuth(currentIV(conn), s.masterKey, header.Raw)
				if !streamcipher.ConstantTimeCompare(want, tag) {
					return protocol.Header{}, nil, ErrAuthFail
				}
			}
			return header, buf[consumed:], nil
		}
		if !protocol.IsShortHeader(err) {
			return protocol.Header{}, nil, err
		}

		n, rerr := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			return protocol.Header{}, nil, rerr
		}
	}
}

// currentIV exposes the decrypt-side IV for header HMAC verification;
// the context is already initialized by the time readHeader's first
// ParseHeader succeeds, since InitDecrypt runs lazily on conn's first
// Read.
func currentIV(conn *Conn) []byte {
	return conn.dec.IV()
}

// dial resolves the header's destination (skipped for literal IPs) and
// opens the upstream TCP connection.
func (s *Server) dial(ctx context.Context, header protocol.Header) (net.Conn, error) {
	host := header.Dest.Domain
	if host == "" {
		host = header.Dest.IP.String()
	} else {
		addrs, err := s.resolver.Resolve(ctx, host)
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrResolveFail, err)
		}
		host = addrs[0]
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", header.Dest.Port))
	d := net.Dialer{Timeout: 10 * time.Second}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFail, err)
	}
	return nc, nil
}

// forwardResidual handles the bytes that arrived packed in the same
// read as the header (spec §4.D: "residual bytes after the header
// become the first outbound payload"), running them through the chunk
// reassembler first when auth is on.
func (s *Server) forwardResidual(conn *Conn, upstream net.Conn, cr *protocol.ChunkReassembler, residual []byte) error {
	if cr == nil {
		_, err := upstream.Write(residual)
		return err
	}
	cr.Feed(residual)
	payloads, err := cr.Next(currentIV(conn), hmacChunkAuther{})
	if err != nil {
		return ErrAuthFail
	}
	for _, p := range payloads {
		if _, err := upstream.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// splice runs both forwarding directions until either side closes or
// the idle timer fires, reporting the outcome through the logger and
// the optional manager channel. When cr is non-nil (header auth was
// set), every client->upstream byte keeps flowing through it via
// chunkDecodingReader — not just the header's residual bytes — so
// one-time auth is enforced for the connection's whole lifetime (spec
// §4.C, "request direction only").
func (s *Server) splice(conn *Conn, upstream net.Conn, peer, dest string, cr *protocol.ChunkReassembler) {
	idle := newIdleCloser(conn, s.idleTimeout)
	defer idle.stop()

	var wg sync.WaitGroup
	wg.Add(2)

	// Each pair below is written by exactly one of the two goroutines
	// and only read after wg.Wait(), so no shared-mutable-state guard
	// is needed between them.
	var bytesUp, bytesDown int64
	var errUp, errDown error

	go func() {
		defer wg.Done()
		defer closeWrite(upstream)
		var src io.Reader = conn
		if cr != nil {
			src = newChunkDecodingReader(conn, cr)
		}
		n, err := spliceCount(upstream, src, &Buffer{}, idle.reset)
		bytesUp = n
		errUp = err
		if err != nil && classify(err) != protocol.KindPeerClose {
			log.Debugf("relay: %s client->upstream: %v", peer, err)
		}
	}()

	go func() {
		defer wg.Done()
		n, err := spliceCount(conn, upstream, &Buffer{}, idle.reset)
		bytesDown = n
		errDown = err
		if err != nil && classify(err) != protocol.KindPeerClose {
			log.Debugf("relay: %s upstream->client: %v", peer, err)
		}
		conn.Close()
	}()

	wg.Wait()
	lastErr := errUp
	if lastErr == nil {
		lastErr = errDown
	}
	s.reporter.ReportTraffic(localPort(conn), bytesUp+bytesDown)
	if s.connLog != nil {
		s.connLog.LogClose("server", peer, dest, classify(lastErr), bytesUp, bytesDown, lastErr)
	}
}

func (s *Server) fail(peer string, st state, err error) {
	kind := classify(err)
	host, _, _ := net.SplitHostPort(peer)
	if kind.ReportsPeer() {
		s.acl.Add(host)
	}
	if s.connLog != nil {
		s.connLog.LogClose("server", peer, "", kind, 0, 0, err)
	}
	if kind.Quiet() {
		log.Debugf("relay: %s %s: %s", peer, st, kind)
		return
	}
	log.Warnf("relay: %s %s: %s: %v", peer, st, kind, err)
}

// closeWrite half-closes the write side of a TCP connection so the peer
// observes EOF without losing whatever is still in flight the other
// way. Only *net.TCPConn (what net.Dialer produces for "tcp") supports
// this; other net.Conn implementations just get a no-op.
func closeWrite(nc net.Conn) {
	if tc, ok := nc.(interface{ CloseWrite() error }); ok {
		tc.CloseWrite()
	}
}

func localPort(conn *Conn) int {
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
