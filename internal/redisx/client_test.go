package redisx

import (
	"context"
	"testing"
)

func TestNewClientDisabled(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), Config{})
	if err != nil || client != nil {
		t.Fatalf("expected nil client without endpoint, got %v err=%v", client, err)
	}
}

func TestOptionsFromURL(t *testing.T) {
	t.Parallel()

	opts, err := Config{URL: "redis://user:pw@cache:6380/2", Addr: "ignored:6379"}.options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Username != "user" || opts.Password != "pw" {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := (Config{URL: "http://nope"}).options(); err == nil {
		t.Fatalf("expected error for non-redis scheme")
	}
}

func TestOptionsTLS(t *testing.T) {
	t.Parallel()

	opts, err := Config{Addr: "cache:6379", TLSEnabled: true}.options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected TLS config")
	}
}
