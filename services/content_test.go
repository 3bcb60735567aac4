package services

import (
	"context"
	"errors"
	"testing"

	"crosswiki/models"
	"crosswiki/sources"

	"gorm.io/gorm"
)

func TestDuplicateSourceSlugRejected(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	seedArticle(t, content, sources.GameWiki, "sword", "Sword", "<p>a blade</p>")

	dup := models.Article{Source: string(sources.GameWiki), Slug: "sword", Title: "Sword again"}
	if err := content.DB.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique index violation for duplicate (source, slug)")
	}

	// Gleicher Slug unter anderer Quelle ist erlaubt.
	other := models.Article{Source: string(sources.MathWiki), Slug: "sword", Title: "Sword (geometry)"}
	if err := content.DB.Create(&other).Error; err != nil {
		t.Fatalf("same slug under different source should be allowed: %v", err)
	}
}

func TestGetArticleFollowsRedirect(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	article := seedArticle(t, content, sources.GameWiki, "long-sword", "Long Sword", "<p>reach advantage</p>")
	if _, err := content.CreateRedirect(sources.GameWiki, "longsword", "long-sword"); err != nil {
		t.Fatalf("creating redirect: %v", err)
	}

	direct, directHTML, err := content.GetArticle(context.Background(), sources.GameWiki, "long-sword")
	if err != nil {
		t.Fatalf("direct read: %v", err)
	}
	viaRedirect, redirectHTML, err := content.GetArticle(context.Background(), sources.GameWiki, "longsword")
	if err != nil {
		t.Fatalf("read via redirect: %v", err)
	}

	if direct.ID != article.ID || viaRedirect.ID != article.ID {
		t.Fatalf("redirect resolved to article %d, want %d", viaRedirect.ID, article.ID)
	}
	if string(directHTML) != string(redirectHTML) {
		t.Fatalf("redirect read returned different content")
	}
}

func TestResolveSlugSelfReference(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	redirect := models.Redirect{Source: string(sources.GameWiki), FromSlug: "loop", ToSlug: "loop"}
	if err := content.DB.Create(&redirect).Error; err != nil {
		t.Fatalf("creating redirect row: %v", err)
	}

	if got := content.ResolveSlug(sources.GameWiki, "loop"); got != "loop" {
		t.Fatalf("self-referencing redirect resolved to %q, want unresolved slug", got)
	}
}

func TestCreateRedirectRejectsSelfTarget(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	if _, err := content.CreateRedirect(sources.GameWiki, "a", "a"); err == nil {
		t.Fatalf("expected error for redirect pointing to itself")
	}
}

func TestRevisionsAppendOnly(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	article := seedArticle(t, content, sources.MathWiki, "group", "Group", "<p>v1</p>")

	change := ContentChange{
		HTML:          []byte("<p>v2</p>"),
		ExtractedText: "v2",
		Editor:        "editor@example.org",
		Comment:       "second version",
	}
	if err := content.ApplyContentChange(context.Background(), article, change); err != nil {
		t.Fatalf("applying second change: %v", err)
	}

	revisions, err := content.Revisions(article.ID)
	if err != nil {
		t.Fatalf("listing revisions: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("got %d revisions, want 2", len(revisions))
	}
	// Neueste zuerst.
	if revisions[0].Comment != "second version" || revisions[1].Comment != "seed" {
		t.Fatalf("unexpected revision order: %q, %q", revisions[0].Comment, revisions[1].Comment)
	}
	if revisions[0].ContentHash == revisions[1].ContentHash {
		t.Fatalf("distinct contents must produce distinct hashes")
	}
}

func TestApplyContentChangeCompensatesBlobOnFailure(t *testing.T) {
	t.Parallel()
	content, blobs := newTestContent(t)

	article := seedArticle(t, content, sources.ArtWiki, "fresco", "Fresco", "<p>wall painting</p>")
	before := blobs.Len()

	change := ContentChange{
		HTML:   []byte("<p>updated</p>"),
		Editor: "test",
		Extra: func(tx *gorm.DB) error {
			return errors.New("injected tx failure")
		},
	}
	if err := content.ApplyContentChange(context.Background(), article, change); err == nil {
		t.Fatalf("expected failure from Extra step")
	}

	if blobs.Len() != before {
		t.Fatalf("got %d blobs after rollback, want %d (compensating delete missing)", blobs.Len(), before)
	}

	// Artikel zeigt weiter auf den alten Inhalt.
	_, html, err := content.GetArticle(context.Background(), sources.ArtWiki, "fresco")
	if err != nil {
		t.Fatalf("reading article after rollback: %v", err)
	}
	if string(html) != "<p>wall painting</p>" {
		t.Fatalf("article content changed despite rollback: %q", html)
	}
}

func TestFailedChangeWithIdenticalContentKeepsLiveBlob(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	article := seedArticle(t, content, sources.ArtWiki, "fresco-2", "Fresco", "<p>wall painting</p>")

	// Identischer Inhalt adressiert denselben Blob-Schlüssel wie der
	// Live-Stand; der Rollback darf ihn nicht miträumen.
	change := ContentChange{
		HTML:   []byte("<p>wall painting</p>"),
		Editor: "test",
		Extra: func(tx *gorm.DB) error {
			return errors.New("injected tx failure")
		},
	}
	if err := content.ApplyContentChange(context.Background(), article, change); err == nil {
		t.Fatalf("expected failure from Extra step")
	}

	_, html, err := content.GetArticle(context.Background(), sources.ArtWiki, "fresco-2")
	if err != nil {
		t.Fatalf("reading after rollback: %v", err)
	}
	if string(html) != "<p>wall painting</p>" {
		t.Fatalf("live content lost after rolled-back identical change: %q", html)
	}
}

func TestApplyContentChangeInvalidatesCache(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	article := seedArticle(t, content, sources.Machinery, "lathe", "Lathe", "<p>v1</p>")

	// Lesen füllt den Cache.
	if _, _, err := content.GetArticle(context.Background(), sources.Machinery, "lathe"); err != nil {
		t.Fatalf("warming cache: %v", err)
	}
	key := CacheKey(sources.Machinery, "lathe")
	if !content.Cache.Contains(key) {
		t.Fatalf("expected cache entry after read")
	}

	change := ContentChange{HTML: []byte("<p>v2</p>"), ExtractedText: "v2", Editor: "test"}
	if err := content.ApplyContentChange(context.Background(), article, change); err != nil {
		t.Fatalf("applying change: %v", err)
	}

	if content.Cache.Contains(key) {
		t.Fatalf("cache entry must be invalidated synchronously after a change")
	}
	_, html, err := content.GetArticle(context.Background(), sources.Machinery, "lathe")
	if err != nil {
		t.Fatalf("reading after change: %v", err)
	}
	if string(html) != "<p>v2</p>" {
		t.Fatalf("read after change returned %q, want new content", html)
	}
}

func TestListArticlesFilters(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	seedArticle(t, content, sources.GameWiki, "axe", "Axe", "<p>chop</p>")
	seedArticle(t, content, sources.GameWiki, "bow", "Bow", "<p>ranged</p>")
	seedArticle(t, content, sources.MathWiki, "algebra", "Algebra", "<p>structures</p>")

	byTitle, err := content.ListArticles(sources.GameWiki, ListOptions{SortBy: "title"})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(byTitle) != 2 || byTitle[0].Slug != "axe" || byTitle[1].Slug != "bow" {
		t.Fatalf("unexpected title ordering: %+v", byTitle)
	}

	byLetter, err := content.ListArticles(sources.GameWiki, ListOptions{Letter: "b"})
	if err != nil {
		t.Fatalf("listing by letter: %v", err)
	}
	if len(byLetter) != 1 || byLetter[0].Slug != "bow" {
		t.Fatalf("letter filter returned %+v, want only bow", byLetter)
	}

	count, err := content.CountArticles(sources.MathWiki, ListOptions{})
	if err != nil {
		t.Fatalf("counting: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d mathwiki articles, want 1", count)
	}
}

func TestGetArticleNotFound(t *testing.T) {
	t.Parallel()
	content, _ := newTestContent(t)

	_, _, err := content.GetArticle(context.Background(), sources.GameWiki, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
