package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsNilReceiverIsNoOp(t *testing.T) {
	var s *Stats
	s.IncAccepted()
	s.IncActive()
	s.DecActive()
	s.IncRejected()
	snap := s.snapshot()
	if snap["accepted"] != 0 || snap["active"] != 0 || snap["rejected"] != 0 {
		t.Fatalf("expected zeroed snapshot from nil stats, got %v", snap)
	}
}

func TestStatsCounters(t *testing.T) {
	s := &Stats{}
	s.IncAccepted()
	s.IncAccepted()
	s.IncActive()
	s.IncRejected()
	snap := s.snapshot()
	if snap["accepted"] != 2 || snap["active"] != 1 || snap["rejected"] != 1 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
	s.DecActive()
	if s.snapshot()["active"] != 0 {
		t.Fatalf("expected active to drop back to 0")
	}
}

func TestHandleStatusReportsModeAndCipher(t *testing.T) {
	stats := &Stats{}
	stats.IncAccepted()
	api := New(0, "server", "aes-256-cfb", stats)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["mode"] != "server" || body["cipher"] != "aes-256-cfb" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandleServerEchoesRequestedName(t *testing.T) {
	api := New(0, "tunnel", "chacha20-ietf", &Stats{})

	req := httptest.NewRequest(http.MethodGet, "/servers/edge-1", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["name"] != "edge-1" {
		t.Fatalf("name = %v, want edge-1", body["name"])
	}
}
