package wikiapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crosswiki/providers"
	"crosswiki/sources"

	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T, handler http.Handler) *Fetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f := NewFetcher(sources.GameWiki, zap.NewNop(), 5*time.Second)
	f.BaseURL = server.URL
	return f
}

func TestListPages(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("from"); got != "axe" {
			t.Errorf("from = %q, want axe", got)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q, want 2", got)
		}
		w.Write([]byte(`{"pages":[{"slug":"bow","title":"Bow"},{"slug":"club","title":"Club"},{"slug":"","title":"broken"}]}`))
	}))

	refs, err := f.ListPages(context.Background(), "axe", 2)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	// Einträge ohne Slug werden verworfen.
	if len(refs) != 2 || refs[0].Slug != "bow" || refs[1].Slug != "club" {
		t.Fatalf("unexpected refs: %+v", refs)
	}
}

func TestListPagesMalformedJSON(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pages": [`))
	}))

	_, err := f.ListPages(context.Background(), "", 10)
	if !errors.Is(err, providers.ErrEncoding) {
		t.Fatalf("got %v, want ErrEncoding", err)
	}
}

func TestListPagesServerError(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := f.ListPages(context.Background(), "", 10)
	if err == nil {
		t.Fatalf("expected error on 500")
	}
	if errors.Is(err, providers.ErrEncoding) {
		t.Fatalf("transport failure must not be classified as encoding error")
	}
}

func TestFetchPage(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pages/iron-sword" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"slug":"iron-sword","title":"Iron Sword","html":"<h1>Iron Sword</h1>"}`))
	}))

	page, err := f.FetchPage(context.Background(), "iron-sword")
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if page.Title != "Iron Sword" || page.HTML != "<h1>Iron Sword</h1>" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFetchPageEmptyHTMLIsEncodingError(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"slug":"x","title":"X","html":""}`))
	}))

	_, err := f.FetchPage(context.Background(), "x")
	if !errors.Is(err, providers.ErrEncoding) {
		t.Fatalf("got %v, want ErrEncoding for empty html", err)
	}
}

func TestFetchPageNotFound(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := f.FetchPage(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error for missing page")
	}
}
