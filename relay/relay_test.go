package relay

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"shadowrelay/protocol"
	"shadowrelay/streamcipher"
)

func TestBufferAppendAdvanceCompacts(t *testing.T) {
	var b Buffer
	b.Append([]byte("hello world"))
	if !b.HasPending() {
		t.Fatalf("expected pending data after Append")
	}
	b.Advance(5)
	if string(b.Pending()) != " world" {
		t.Fatalf("Pending = %q, want %q", b.Pending(), " world")
	}
	b.Advance(len(" world"))
	if b.HasPending() {
		t.Fatalf("expected no pending data once fully drained")
	}
}

func TestConnRoundTripOverPipe(t *testing.T) {
	desc, _ := streamcipher.Lookup("aes-256-cfb")
	key := streamcipher.DeriveKey("integration test password", desc.KeyLen)

	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	ivCache := streamcipher.NewIVCache(0)
	client := NewConn(clientRaw, desc, key, ivCache)
	server := NewConn(serverRaw, desc, key, ivCache)

	msg := []byte("relay this payload through the encrypted conn")
	go func() {
		if _, err := client.Write(msg); err != nil {
			t.Errorf("client write: %v", err)
		}
	}()

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("got %q, want %q", buf, msg)
	}
}

func TestConnRejectsReplayedIV(t *testing.T) {
	desc, _ := streamcipher.Lookup("aes-256-cfb")
	key := streamcipher.DeriveKey("replay test password", desc.KeyLen)
	ivCache := streamcipher.NewIVCache(0)

	c1, s1 := net.Pipe()
	defer c1.Close()
	defer s1.Close()

	client1 := NewConn(c1, desc, key, ivCache)
	server1 := NewConn(s1, desc, key, ivCache)

	go client1.Write([]byte("first connection"))
	buf := make([]byte, len("first connection"))
	if _, err := io.ReadFull(server1, buf); err != nil {
		t.Fatalf("first connection read: %v", err)
	}
	iv := append([]byte{}, client1.enc.IV()...)

	c2, s2 := net.Pipe()
	defer c2.Close()
	defer s2.Close()

	server2 := NewConn(s2, desc, key, ivCache)
	go func() {
		// Hand-craft a second "connection" that replays the exact same IV
		// raw on the wire, as if an attacker captured and resent it.
		c2.Write(iv)
		c2.Write([]byte("replayed"))
	}()

	readBuf := make([]byte, 8)
	_, err := io.ReadFull(server2, readBuf)
	if err == nil || !errors.Is(err, ErrDuplicateIV) {
		t.Fatalf("expected ErrDuplicateIV, got %v", err)
	}
}

func TestClassifyMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		kind protocol.Kind
	}{
		{nil, protocol.KindPeerClose},
		{ErrDuplicateIV, protocol.KindDuplicateIV},
		{ErrAuthFail, protocol.KindAuthFail},
		{ErrResolveFail, protocol.KindResolveFail},
		{ErrConnectFail, protocol.KindConnectFail},
		{ErrIdleTimeout, protocol.KindIdleTimeout},
		{protocol.ErrBadHeader, protocol.KindBadHeader},
	}
	for _, c := range cases {
		if got := classify(c.err); got != c.kind {
			t.Errorf("classify(%v) = %v, want %v", c.err, got, c.kind)
		}
	}
}

func TestHMACChunkAutherRejectsTamperedPayload(t *testing.T) {
	iv := []byte("01234567")
	payload := []byte("chunked payload")
	tag := streamcipher.ChunkAuth(iv, 0, payload)

	a := hmacChunkAuther{}
	if !a.Verify(iv, 0, payload, tag) {
		t.Fatalf("expected valid tag to verify")
	}
	if a.Verify(iv, 0, []byte("tampered payload"), tag) {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestIdleCloserClosesAfterTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	idle := newIdleCloser(server, 20*time.Millisecond)
	defer idle.stop()

	buf := make([]byte, 1)
	_, err := client.Read(buf)
	if err == nil {
		t.Fatalf("expected read to fail once the idle timer closes the peer")
	}
}

func TestIdleCloserResetPostponesClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	idle := newIdleCloser(server, 50*time.Millisecond)
	defer idle.stop()

	done := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		idle.reset()
		close(done)
	}()
	<-done

	// The reset should have pushed the deadline out; give it a moment and
	// confirm the pipe is still usable.
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Write([]byte("x"))
		errCh <- err
	}()
	buf := make([]byte, 1)
	if _, err := server.Read(buf); err != nil {
		t.Fatalf("expected pipe to still be open after reset: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("write after reset failed: %v", err)
	}
}
