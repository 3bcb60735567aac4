package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFetchLoadsOnceUntilInvalidated(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	loads := 0
	loader := func(ctx context.Context) ([]byte, error) {
		loads++
		return []byte("payload"), nil
	}

	for i := 0; i < 3; i++ {
		data, err := c.Fetch(context.Background(), "k", loader)
		if err != nil {
			t.Fatalf("fetch %d: %v", i+1, err)
		}
		if string(data) != "payload" {
			t.Fatalf("got %q, want payload", data)
		}
	}
	if loads != 1 {
		t.Fatalf("loader ran %d times, want 1", loads)
	}

	c.Invalidate("k")
	if _, err := c.Fetch(context.Background(), "k", loader); err != nil {
		t.Fatalf("fetch after invalidate: %v", err)
	}
	if loads != 2 {
		t.Fatalf("loader ran %d times after invalidate, want 2", loads)
	}
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	fail := true
	loader := func(ctx context.Context) ([]byte, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return []byte("ok"), nil
	}

	if _, err := c.Fetch(context.Background(), "k", loader); err == nil {
		t.Fatalf("expected loader error to surface")
	}
	if c.Contains("k") {
		t.Fatalf("failed load must not leave a cache entry")
	}

	fail = false
	data, err := c.Fetch(context.Background(), "k", loader)
	if err != nil || string(data) != "ok" {
		t.Fatalf("recovery fetch: %q, %v", data, err)
	}
}

func TestExpiredEntryCountsAsMiss(t *testing.T) {
	t.Parallel()
	c := New(10 * time.Millisecond)

	loads := 0
	loader := func(ctx context.Context) ([]byte, error) {
		loads++
		return []byte("v"), nil
	}

	if _, err := c.Fetch(context.Background(), "k", loader); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if c.Contains("k") {
		t.Fatalf("expired entry must not count as fresh")
	}
	if _, err := c.Fetch(context.Background(), "k", loader); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if loads != 2 {
		t.Fatalf("loader ran %d times, want reload after expiry", loads)
	}
}

func TestPurgeRemovesExpiredEntries(t *testing.T) {
	t.Parallel()
	c := New(10 * time.Millisecond)

	loader := func(ctx context.Context) ([]byte, error) { return []byte("v"), nil }
	if _, err := c.Fetch(context.Background(), "old", loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	c.Purge()

	c.mu.RLock()
	_, exists := c.entries["old"]
	c.mu.RUnlock()
	if exists {
		t.Fatalf("purge must drop expired entries")
	}
}
