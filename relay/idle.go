package relay

import (
	"net"
	"time"
)

// idleCloser closes conn if reset isn't called again within timeout
// (spec §4.D: "any activity on either side re-arms the client-side
// timer... Firing → close both sides"). A zero timeout disables it.
type idleCloser struct {
	timer    *time.Timer
	duration time.Duration
}

func newIdleCloser(conn net.Conn, timeout time.Duration) *idleCloser {
	if timeout <= 0 {
		return &idleCloser{}
	}
	return &idleCloser{
		timer:    time.AfterFunc(timeout, func() { conn.Close() }),
		duration: timeout,
	}
}

func (c *idleCloser) reset() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer.Reset(c.duration)
}

func (c *idleCloser) stop() {
	if c.timer != nil {
		c.timer.Stop()
	}
}
