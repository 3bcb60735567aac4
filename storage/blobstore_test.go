package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "html/gamewiki/sword/abc.html", []byte("data")); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := store.Get(ctx, "html/gamewiki/sword/abc.html")
	if err != nil || string(data) != "data" {
		t.Fatalf("get: %q, %v", data, err)
	}

	if err := store.Delete(ctx, "html/gamewiki/sword/abc.html"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "html/gamewiki/sword/abc.html"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("got %v, want ErrBlobNotFound after delete", err)
	}
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	store.Put(ctx, "html/gamewiki/a", []byte("1"))
	store.Put(ctx, "html/mathwiki/b", []byte("2"))
	store.Put(ctx, "raw/gamewiki/a", []byte("3"))

	keys, err := store.List(ctx, "html/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys under html/, want 2", len(keys))
	}
}

func TestMemoryStoreInjectedFailure(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	store.FailPuts = 1
	if err := store.Put(ctx, "k", []byte("v")); err == nil {
		t.Fatalf("first put should fail")
	}
	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("second put should succeed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("got %d objects, want 1", store.Len())
	}
}
