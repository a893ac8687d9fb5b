package connlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shadowrelay/protocol"
)

func TestLogCloseWritesJSONLine(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 0)
	defer w.Close()

	w.LogClose("server", "203.0.113.5:1234", "example.com:443", protocol.KindPeerClose, 100, 200, nil)

	path := filepath.Join(dir, "server", "current.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(data[:len(data)-1], &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Peer != "203.0.113.5:1234" || ev.Dest != "example.com:443" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Kind != protocol.KindPeerClose.String() {
		t.Fatalf("Kind = %q, want %q", ev.Kind, protocol.KindPeerClose.String())
	}
	if ev.BytesUp != 100 || ev.BytesDn != 200 {
		t.Fatalf("unexpected byte counts: %+v", ev)
	}
}

func TestLogCloseRecordsError(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 0)
	defer w.Close()

	w.LogClose("server", "peer", "", protocol.KindAuthFail, 0, 0, errors.New("boom"))

	path := filepath.Join(dir, "server", "current.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data[:len(data)-1], &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Err != "boom" {
		t.Fatalf("Err = %q, want boom", ev.Err)
	}
}

func TestWriterReopensCurrentLogAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	w1 := NewWriter(dir, 0)
	w1.LogClose("server", "peer1", "", protocol.KindPeerClose, 1, 1, nil)
	w1.Close()

	w2 := NewWriter(dir, 0)
	defer w2.Close()
	w2.LogClose("server", "peer2", "", protocol.KindPeerClose, 2, 2, nil)

	path := filepath.Join(dir, "server", "current.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lineCount := 0
	for _, b := range data {
		if b == '\n' {
			lineCount++
		}
	}
	if lineCount != 2 {
		t.Fatalf("expected 2 lines across both writer instances, got %d", lineCount)
	}
}

func TestCleanupRemovesExpiredLogs(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "server")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	oldPath := filepath.Join(logDir, "old.log")
	if err := os.WriteFile(oldPath, []byte("stale\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	old := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	w := NewWriter(dir, 14)
	w.Cleanup()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected expired log to be removed, stat err = %v", err)
	}
}
