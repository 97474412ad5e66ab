package sturdyc

import (
	"context"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvictionPercentage = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRoundTripAndGetMulti(t *testing.T) {
	ctx := context.Background()
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _ = p.Set(ctx, "a", []byte("1"), 1, 0)
	_, _ = p.Set(ctx, "b", []byte("2"), 1, 0)

	b, ok, err := p.Get(ctx, "a")
	if err != nil || !ok || string(b) != "1" {
		t.Fatalf("Get b=%q ok=%v err=%v", b, ok, err)
	}
	got, err := p.GetMulti(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || string(got["b"]) != "2" {
		t.Fatalf("GetMulti = %q", got)
	}
	_ = p.Del(ctx, "a")
	if _, ok, _ := p.Get(ctx, "a"); ok {
		t.Fatalf("a should be deleted")
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d", p.Len())
	}
}
