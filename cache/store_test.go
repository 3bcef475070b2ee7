package cache

import (
	"testing"
	"time"
)

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvictionPercentage = 0

	if _, err := New(cfg); err == nil {
		t.Error("New() should fail with an invalid eviction percentage")
	}
}

func TestDefaultConfig_RoundTripsThroughInternal(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if got := convertFromInternal(cfg.toInternal()); got != cfg {
		t.Errorf("config changed across conversion: %+v != %+v", got, cfg)
	}
}

func TestStore_Contract(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store, err := New(DefaultConfig(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	t1 := now.Add(-2 * time.Minute)
	t2 := now.Add(-time.Minute)

	if !store.Set(Entry{ID: "member:abc", Modified: &t2, Payload: []byte(`{"Title":"new"}`)}) {
		t.Fatal("expected the first Set to write")
	}
	if store.Set(Entry{ID: "member:abc", Modified: &t1, Payload: []byte(`{"Title":"old"}`)}) {
		t.Error("an older document must not replace a newer one")
	}

	entry, state := store.Get("member:abc")
	if state != Hit || string(entry.Payload) != `{"Title":"new"}` {
		t.Errorf("unexpected lookup: %v %s", state, entry.Payload)
	}

	store.Remove("member:abc")
	store.SetAbsent("member:missing")

	if _, state := store.Get("member:abc"); state != Miss {
		t.Errorf("expected miss after Remove, got %v", state)
	}
	if _, state := store.Get("member:missing"); state != Absent {
		t.Errorf("expected absent marker, got %v", state)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", store.Len())
	}
}
