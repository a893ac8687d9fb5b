package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "crypto:\n  password: hunter2\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Crypto.Cipher != "aes-256-cfb" {
		t.Fatalf("Cipher = %q, want default aes-256-cfb", cfg.Crypto.Cipher)
	}
	if cfg.Network.ListenAddr != ":8388" {
		t.Fatalf("ListenAddr = %q, want default :8388", cfg.Network.ListenAddr)
	}
	if cfg.Network.IdleTimeout != 300*time.Second {
		t.Fatalf("IdleTimeout = %v, want 300s", cfg.Network.IdleTimeout)
	}
	if cfg.Limits.NoFile != 51200 {
		t.Fatalf("NoFile = %d, want 51200", cfg.Limits.NoFile)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "crypto:\n  password: hunter2\n  cipher: chacha20-ietf\nnetwork:\n  listen_addr: \"127.0.0.1:9999\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Crypto.Cipher != "chacha20-ietf" {
		t.Fatalf("Cipher = %q, want chacha20-ietf", cfg.Crypto.Cipher)
	}
	if cfg.Network.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("ListenAddr = %q, want 127.0.0.1:9999", cfg.Network.ListenAddr)
	}
}

func TestLoadRejectsMissingPassword(t *testing.T) {
	path := writeConfig(t, "network:\n  listen_addr: \":8388\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a missing crypto.password")
	}
}

func TestLoadRejectsUnknownCipher(t *testing.T) {
	path := writeConfig(t, "crypto:\n  password: hunter2\n  cipher: not-a-cipher\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown cipher")
	}
}

func TestLoadRequiresTunnelFields(t *testing.T) {
	path := writeConfig(t, "mode:\n  tunnel: true\ncrypto:\n  password: hunter2\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error when tunnel mode is missing remote_addr/tunnel_dest")
	}
}

func TestLoadTunnelModeSucceedsWithRequiredFields(t *testing.T) {
	path := writeConfig(t, "mode:\n  tunnel: true\ncrypto:\n  password: hunter2\nnetwork:\n  remote_addr: \"example.com:8388\"\n  tunnel_dest: \"8.8.8.8:53\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.RemoteAddr != "example.com:8388" {
		t.Fatalf("RemoteAddr = %q", cfg.Network.RemoteAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
