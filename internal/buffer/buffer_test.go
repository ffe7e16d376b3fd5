package buffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeList is an in-memory ListStore recording TTL refreshes.
type fakeList struct {
	mu      sync.Mutex
	lists   map[string][]string
	ttls    map[string]time.Duration
	expires map[string]int // refresh count per key
	failAll bool
}

func newFakeList() *fakeList {
	return &fakeList{
		lists:   make(map[string][]string),
		ttls:    make(map[string]time.Duration),
		expires: make(map[string]int),
	}
}

var errStoreDown = errors.New("store unavailable")

func (f *fakeList) RPush(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.lists[key] = append(f.lists[key], value)
	return nil
}

func (f *fakeList) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	f.ttls[key] = ttl
	f.expires[key]++
	return nil
}

func (f *fakeList) LRange(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStoreDown
	}
	return append([]string(nil), f.lists[key]...), nil
}

func (f *fakeList) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStoreDown
	}
	delete(f.lists, key)
	return nil
}

func TestAppendPreservesOrder(t *testing.T) {
	list := newFakeList()
	s := New(list, "_buffer", time.Minute)
	ctx := context.Background()

	for _, msg := range []string{"Olá", "como", "vai?"} {
		if err := s.Append(ctx, "5511@s.whatsapp.net", msg); err != nil {
			t.Fatalf("Append(%q): %v", msg, err)
		}
	}

	got, err := s.Flush(ctx, "5511@s.whatsapp.net")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := []string{"Olá", "como", "vai?"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestAppendSlidesTTL(t *testing.T) {
	list := newFakeList()
	s := New(list, "_buffer", 30*time.Second)
	ctx := context.Background()

	s.Append(ctx, "k", "a")
	s.Append(ctx, "k", "b")

	list.mu.Lock()
	defer list.mu.Unlock()
	if list.expires["k_buffer"] != 2 {
		t.Errorf("expected TTL refreshed on every append, got %d refreshes", list.expires["k_buffer"])
	}
	if list.ttls["k_buffer"] != 30*time.Second {
		t.Errorf("expected 30s TTL, got %v", list.ttls["k_buffer"])
	}
}

func TestKeysAreIsolated(t *testing.T) {
	list := newFakeList()
	s := New(list, "_buffer", time.Minute)
	ctx := context.Background()

	s.Append(ctx, "a", "um")
	s.Append(ctx, "b", "dois")

	got, err := s.Flush(ctx, "a")
	if err != nil {
		t.Fatalf("Flush(a): %v", err)
	}
	if len(got) != 1 || got[0] != "um" {
		t.Errorf("key a leaked: %v", got)
	}
}

func TestClearIdempotent(t *testing.T) {
	list := newFakeList()
	s := New(list, "_buffer", time.Minute)
	ctx := context.Background()

	s.Append(ctx, "k", "msg")
	if err := s.Clear(ctx, "k"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	// Clearing an absent key must not error.
	if err := s.Clear(ctx, "k"); err != nil {
		t.Fatalf("second Clear: %v", err)
	}

	got, err := s.Flush(ctx, "k")
	if err != nil {
		t.Fatalf("Flush after Clear: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty buffer after Clear, got %v", got)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	list := newFakeList()
	list.failAll = true
	s := New(list, "_buffer", time.Minute)
	ctx := context.Background()

	if err := s.Append(ctx, "k", "msg"); !errors.Is(err, errStoreDown) {
		t.Errorf("Append: expected store error, got %v", err)
	}
	if _, err := s.Flush(ctx, "k"); !errors.Is(err, errStoreDown) {
		t.Errorf("Flush: expected store error, got %v", err)
	}
	if err := s.Clear(ctx, "k"); !errors.Is(err, errStoreDown) {
		t.Errorf("Clear: expected store error, got %v", err)
	}
}
