package rcache

import (
	"bytes"
	"testing"
	"time"

	"github.com/haukened/rr-proxy/internal/dns/common/clock"
)

func TestSetGet(t *testing.T) {
	clk := &clock.MockClock{}
	c, err := New(8, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	wire := []byte{0x01, 0x02, 0x03}
	c.Set("example.com|A", wire, 60*time.Second)

	got, ok := c.Get("example.com|A")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if !bytes.Equal(got, wire) {
		t.Errorf("expected %v, got %v", wire, got)
	}
}

func TestGet_Expiry(t *testing.T) {
	clk := &clock.MockClock{}
	c, err := New(8, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Set("example.com|A", []byte{0x01}, 60*time.Second)

	clk.Advance(59 * time.Second)
	if _, ok := c.Get("example.com|A"); !ok {
		t.Error("entry expired too early")
	}

	clk.Advance(1 * time.Second)
	if _, ok := c.Get("example.com|A"); ok {
		t.Error("entry should have expired at exactly its ttl")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry must be removed on access, Len = %d", c.Len())
	}
}

func TestSet_ZeroTTLNotCached(t *testing.T) {
	clk := &clock.MockClock{}
	c, err := New(8, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Set("a|A", []byte{0x01}, 0)
	c.Set("b|A", []byte{0x01}, -5*time.Second)
	if c.Len() != 0 {
		t.Errorf("zero and negative ttl entries must not be stored, Len = %d", c.Len())
	}
}

func TestSet_CopiesWire(t *testing.T) {
	clk := &clock.MockClock{}
	c, err := New(8, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	wire := []byte{0xaa, 0xbb}
	c.Set("k|A", wire, time.Minute)
	wire[0] = 0x00

	got, ok := c.Get("k|A")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got[0] != 0xaa {
		t.Error("stored bytes must not alias the caller's buffer")
	}
}

func TestDelete(t *testing.T) {
	clk := &clock.MockClock{}
	c, err := New(8, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Set("k|A", []byte{0x01}, time.Minute)
	c.Delete("k|A")
	if _, ok := c.Get("k|A"); ok {
		t.Error("deleted entry must not be returned")
	}
}

func TestEviction(t *testing.T) {
	clk := &clock.MockClock{}
	c, err := New(2, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Set("a|A", []byte{0x01}, time.Minute)
	c.Set("b|A", []byte{0x02}, time.Minute)
	c.Set("c|A", []byte{0x03}, time.Minute)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Get("a|A"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	keys := c.Keys()
	if len(keys) != 2 || keys[0] != "b|A" || keys[1] != "c|A" {
		t.Errorf("unexpected keys after eviction: %v", keys)
	}
}
