// Package reporter implements the optional manager-channel collaborator:
// a UDP client that emits small JSON datagrams reporting per-port
// connection statistics to a management process (spec §6: "the optional
// manager channel (UDP datagrams of JSON {"port": bytes}) is an external
// collaborator").
package reporter

import (
	"encoding/json"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

// Reporter sends fire-and-forget statistics datagrams. A nil *Reporter
// is valid and every method becomes a no-op, so callers don't need a
// conditional at every call site when no manager address is configured.
type Reporter struct {
	conn *net.UDPConn
}

// Dial opens a UDP socket toward addr (host:port). addr == "" returns a
// nil *Reporter, disabling reporting entirely.
func Dial(addr string) (*Reporter, error) {
	if addr == "" {
		return nil, nil
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("reporter: resolving manager address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("reporter: dialing manager: %w", err)
	}
	return &Reporter{conn: conn}, nil
}

// ReportTraffic emits {"<port>": bytesTransferred} for the connection
// that just closed on the given local port, matching the original
// manager protocol's per-port accounting datagram.
func (r *Reporter) ReportTraffic(port int, bytesTransferred int64) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(map[string]int64{fmt.Sprintf("%d", port): bytesTransferred})
	if err != nil {
		log.Warnf("reporter: marshaling stat: %v", err)
		return
	}
	if _, err := r.conn.Write(payload); err != nil {
		log.Debugf("reporter: sending stat: %v", err)
	}
}

// Close releases the underlying UDP socket.
func (r *Reporter) Close() error {
	if r == nil {
		return nil
	}
	return r.conn.Close()
}
