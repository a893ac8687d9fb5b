// Package connlog records one structured JSON line per connection
// lifecycle event (accept, dial, close, failure) to a rotating file,
// adapted from the teacher's console-transcript log writer: same
// per-key file handle map, rotation-with-symlink, and retention sweep,
// but the per-line content is a JSON connection event rather than
// cleaned console text.
package connlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"shadowrelay/protocol"
)

// Event is one line written to the connection log.
type Event struct {
	Time    time.Time `json:"time"`
	Peer    string    `json:"peer"`
	Dest    string    `json:"dest,omitempty"`
	Kind    string    `json:"kind"`
	BytesUp int64     `json:"bytes_up,omitempty"`
	BytesDn int64     `json:"bytes_down,omitempty"`
	Err     string    `json:"error,omitempty"`
}

// Writer owns one rotating log file per listener ("server" or
// "tunnel"), matching the teacher's one-file-per-key model applied
// here to deployment role instead of per-BMC-server name.
type Writer struct {
	basePath      string
	retentionDays int

	mu    sync.Mutex
	files map[string]*os.File
}

// NewWriter returns a Writer rooted at basePath, retaining rotated files
// for retentionDays (0 disables retention sweeps).
func NewWriter(basePath string, retentionDays int) *Writer {
	return &Writer{
		basePath:      basePath,
		retentionDays: retentionDays,
		files:         make(map[string]*os.File),
	}
}

// LogClose records the terminal event for one connection: how it ended,
// how much it moved, and why.
func (w *Writer) LogClose(key, peer, dest string, kind protocol.Kind, bytesUp, bytesDown int64, err error) {
	ev := Event{
		Time:    time.Now(),
		Peer:    peer,
		Dest:    dest,
		Kind:    kind.String(),
		BytesUp: bytesUp,
		BytesDn: bytesDown,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	if werr := w.write(key, ev); werr != nil {
		log.Warnf("connlog: writing event for %s: %v", key, werr)
	}
}

func (w *Writer) write(key string, ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.getOrCreateFile(key)
	if err != nil {
		return err
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

func (w *Writer) getOrCreateFile(key string) (*os.File, error) {
	if f, ok := w.files[key]; ok {
		return f, nil
	}

	dir := filepath.Join(w.basePath, key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("connlog: creating directory: %w", err)
	}

	symlinkPath := filepath.Join(dir, "current.log")
	if target, err := os.Readlink(symlinkPath); err == nil {
		existingPath := filepath.Join(dir, target)
		if f, err := os.OpenFile(existingPath, os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			w.files[key] = f
			return f, nil
		}
	}

	filename := time.Now().Format("2006-01-02_15-04-05") + ".log"
	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("connlog: creating log file: %w", err)
	}

	w.files[key] = f
	os.Remove(symlinkPath)
	os.Symlink(filename, symlinkPath)
	return f, nil
}

// Rotate closes the current file for key and removes the current.log
// symlink, so the next write for key creates a fresh file and points
// current.log at it (teacher's RotateWithName pattern, minus the
// custom-name option this domain has no use for).
func (w *Writer) Rotate(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if f, ok := w.files[key]; ok {
		f.Close()
		delete(w.files, key)
	}

	dir := filepath.Join(w.basePath, key)
	os.Remove(filepath.Join(dir, "current.log"))
	return nil
}

// Cleanup removes rotated log files older than the retention window.
func (w *Writer) Cleanup() {
	if w.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return
	}
	for _, keyDir := range entries {
		if !keyDir.IsDir() {
			continue
		}
		keyPath := filepath.Join(w.basePath, keyDir.Name())
		logFiles, err := os.ReadDir(keyPath)
		if err != nil {
			continue
		}
		for _, lf := range logFiles {
			if lf.IsDir() || filepath.Ext(lf.Name()) != ".log" {
				continue
			}
			info, err := lf.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(keyPath, lf.Name())
				os.Remove(path)
				log.Infof("connlog: removed expired log %s", path)
			}
		}
	}
}

// Close closes every open file handle.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		f.Close()
	}
	w.files = make(map[string]*os.File)
}
