package session

import (
	"errors"
	"testing"

	"github.com/haukened/rr-proxy/internal/dns/domain"
)

func TestEnv_StringRoundTrip(t *testing.T) {
	env := New()
	env.SetString("client", "192.0.2.1:5353")
	got, err := env.GetString("client")
	if err != nil {
		t.Fatalf("GetString failed: %v", err)
	}
	if got != "192.0.2.1:5353" {
		t.Errorf("expected 192.0.2.1:5353, got %q", got)
	}
}

func TestEnv_IntRoundTrip(t *testing.T) {
	env := New()
	env.SetInt("attempts", -42)
	got, err := env.GetInt("attempts")
	if err != nil {
		t.Fatalf("GetInt failed: %v", err)
	}
	if got != -42 {
		t.Errorf("expected -42, got %d", got)
	}
}

func TestEnv_MissingKey(t *testing.T) {
	env := New()
	if _, err := env.GetString("nope"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
	if _, err := env.GetInt("nope"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestEnv_TypeMismatch(t *testing.T) {
	env := New()
	env.SetString("s", "text")
	env.SetInt("i", 7)
	if _, err := env.GetInt("s"); !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch reading a string as int, got %v", err)
	}
	if _, err := env.GetString("i"); !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch reading an int as string, got %v", err)
	}
}

func TestEnv_LastWriteWinsAcrossTypes(t *testing.T) {
	env := New()
	env.SetString("k", "first")
	env.SetInt("k", 2)
	got, err := env.GetInt("k")
	if err != nil {
		t.Fatalf("GetInt after overwrite failed: %v", err)
	}
	if got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if _, err := env.GetString("k"); !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("old string value must be gone, got %v", err)
	}
	if env.Len() != 1 {
		t.Errorf("overwrite must not grow the store, got %d keys", env.Len())
	}
}

func TestEnv_Bind(t *testing.T) {
	env := New()
	if env.ID() != "" {
		t.Errorf("fresh env must have no id, got %q", env.ID())
	}
	env.Bind("192.0.2.1:5353/17")
	if env.ID() != "192.0.2.1:5353/17" {
		t.Errorf("expected bound id, got %q", env.ID())
	}
}
