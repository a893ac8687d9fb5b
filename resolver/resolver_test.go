package resolver

import (
	"context"
	"testing"
)

func TestDefaultResolveShortCircuitsIPLiteral(t *testing.T) {
	d := NewDefault()
	addrs, err := d.Resolve(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "127.0.0.1" {
		t.Fatalf("got %v, want [127.0.0.1]", addrs)
	}
}

func TestDefaultResolveShortCircuitsIPv6Literal(t *testing.T) {
	d := NewDefault()
	addrs, err := d.Resolve(context.Background(), "::1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "::1" {
		t.Fatalf("got %v, want [::1]", addrs)
	}
}
