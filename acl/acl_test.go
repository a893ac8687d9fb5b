package acl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllowAllPermitsEverything(t *testing.T) {
	a := AllowAll{}
	if !a.Match("203.0.113.5") {
		t.Fatalf("AllowAll must permit any address")
	}
	if a.Mode() != Black {
		t.Fatalf("AllowAll.Mode() = %v, want Black", a.Mode())
	}
}

func writeACL(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "acl.conf")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileACLBlackModeDeniesListed(t *testing.T) {
	path := writeACL(t, "black\n203.0.113.5\n198.51.100.0/24\n")
	a, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if a.Mode() != Black {
		t.Fatalf("Mode() = %v, want Black", a.Mode())
	}
	if a.Match("203.0.113.5") {
		t.Fatalf("listed address must be denied in black mode")
	}
	if a.Match("198.51.100.42") {
		t.Fatalf("address within a listed CIDR must be denied in black mode")
	}
	if !a.Match("8.8.8.8") {
		t.Fatalf("unlisted address must be permitted in black mode")
	}
}

func TestFileACLWhiteModeAllowsOnlyListed(t *testing.T) {
	path := writeACL(t, "white\n203.0.113.5\n")
	a, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !a.Match("203.0.113.5") {
		t.Fatalf("listed address must be permitted in white mode")
	}
	if a.Match("8.8.8.8") {
		t.Fatalf("unlisted address must be denied in white mode")
	}
}

func TestFileACLAddAutoBans(t *testing.T) {
	path := writeACL(t, "black\n")
	a, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !a.Match("1.2.3.4") {
		t.Fatalf("expected address to be allowed before Add")
	}
	a.Add("1.2.3.4")
	if a.Match("1.2.3.4") {
		t.Fatalf("expected address to be denied after Add in black mode")
	}
}

func TestFileACLSkipsInvalidLines(t *testing.T) {
	path := writeACL(t, "black\nnot-an-ip\n10.0.0.1\n")
	a, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if a.Match("10.0.0.1") {
		t.Fatalf("valid entry must still be denied")
	}
}
