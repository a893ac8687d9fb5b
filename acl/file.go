package acl

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// FileACL is line-oriented, one CIDR or bare IP per line, blank lines
// and "#"-prefixed comments ignored. The first line may be
// "white" or "black" to select Mode (default black); this mirrors the
// original source's jconf.c acl file format. Dynamically added
// addresses (via Add) are kept in a separate in-memory set and are not
// persisted back to disk.
type FileACL struct {
	mu      sync.RWMutex
	mode    Mode
	nets    []*net.IPNet
	ips     map[string]struct{}
	dynamic map[string]struct{}

	path string
}

// LoadFile reads and parses an ACL file. The returned FileACL does not
// watch for changes; call Watch separately to enable hot reload.
func LoadFile(path string) (*FileACL, error) {
	f := &FileACL{
		path:    path,
		ips:     make(map[string]struct{}),
		dynamic: make(map[string]struct{}),
	}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileACL) reload() error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	mode := Black
	var nets []*net.IPNet
	ips := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if first {
			first = false
			switch strings.ToLower(line) {
			case "white":
				mode = White
				continue
			case "black":
				mode = Black
				continue
			}
		}
		if strings.Contains(line, "/") {
			_, ipnet, err := net.ParseCIDR(line)
			if err != nil {
				log.Warnf("acl: skipping invalid CIDR %q: %v", line, err)
				continue
			}
			nets = append(nets, ipnet)
			continue
		}
		if net.ParseIP(line) == nil {
			log.Warnf("acl: skipping invalid address %q", line)
			continue
		}
		ips[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.mode, f.nets, f.ips = mode, nets, ips
	f.mu.Unlock()
	return nil
}

// Match reports whether ip is permitted per the current mode and entry
// set, including dynamically added addresses.
func (f *FileACL) Match(ip string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	listed := f.listed(ip)
	if f.mode == White {
		return listed
	}
	return !listed
}

func (f *FileACL) listed(ip string) bool {
	if _, ok := f.ips[ip]; ok {
		return true
	}
	if _, ok := f.dynamic[ip]; ok {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range f.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// Add records ip in the in-memory dynamic set, e.g. for auto-ban on an
// auth failure while in black-list mode.
func (f *FileACL) Add(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dynamic[ip] = struct{}{}
	log.Warnf("acl: auto-banned %s", ip)
}

// Mode reports the ACL's current allow/deny polarity.
func (f *FileACL) Mode() Mode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// Watch starts an fsnotify watcher on the ACL file's directory and
// reloads the static entry set on every write event, until ctx is
// canceled. Dynamically added (auto-banned) addresses survive a reload
// since they live in a separate map. This is the same push-driven
// refresh shape as the teacher's discovery.Scanner.OnChange callback,
// swapped from HTTP polling to filesystem events.
func (f *FileACL) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := f.path
	if idx := strings.LastIndexByte(dir, '/'); idx >= 0 {
		dir = dir[:idx]
	} else {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, f.path) && ev.Name != f.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := f.reload(); err != nil {
					log.Warnf("acl: reload failed: %v", err)
					continue
				}
				log.Infof("acl: reloaded %s", f.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("acl: watcher error: %v", err)
			}
		}
	}()
	return nil
}
