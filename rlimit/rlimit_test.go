package rlimit

import "testing"

func TestRaiseBelowCurrentIsNoOp(t *testing.T) {
	if err := Raise(1); err != nil {
		t.Fatalf("Raise(1): %v", err)
	}
}

func TestRaiseCapsAtHardLimit(t *testing.T) {
	if err := Raise(1 << 30); err != nil {
		t.Fatalf("Raise(huge): %v", err)
	}
}
