// Package rlimit raises the process's open-file-descriptor ceiling at
// startup (spec §5: "RLIMIT_NOFILE is raised at startup from config").
package rlimit

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Raise sets RLIMIT_NOFILE's soft limit to want, capped at the current
// hard limit. It logs (rather than fails) when want exceeds what the
// OS permits — a relay that can't reach the configured ceiling should
// still run at whatever the OS allows, not refuse to start.
func Raise(want uint64) error {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fmt.Errorf("rlimit: getrlimit: %w", err)
	}

	target := want
	if target > rl.Max {
		log.Warnf("rlimit: requested nofile=%d exceeds hard limit %d, capping", want, rl.Max)
		target = rl.Max
	}
	if target <= rl.Cur {
		return nil
	}

	rl.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fmt.Errorf("rlimit: setrlimit(%d): %w", target, err)
	}
	log.Infof("rlimit: raised RLIMIT_NOFILE to %d", target)
	return nil
}
