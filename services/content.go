package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"crosswiki/cache"
	"crosswiki/models"
	"crosswiki/sources"
	"crosswiki/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ContentService besitzt exklusiv den Schreibzugriff auf Artikel,
// Redirects, Revisionen, Pending-Edits und Cross-Links. Sync-Engine und
// Moderation mutieren Inhalte ausschließlich über ApplyContentChange,
// damit Eindeutigkeits- und Transaktions-Invarianten an einer Stelle
// durchgesetzt werden.
type ContentService struct {
	DB     *gorm.DB
	Blobs  storage.BlobStore
	Cache  *cache.Cache
	Logger *zap.Logger
}

// NewContentService erstellt eine neue Instanz des ContentService.
func NewContentService(db *gorm.DB, blobs storage.BlobStore, c *cache.Cache, logger *zap.Logger) *ContentService {
	return &ContentService{DB: db, Blobs: blobs, Cache: c, Logger: logger}
}

// HashContent berechnet den Content-Fingerprint (sha256, hex).
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CacheKey ist die Artikel-Identität als Cache-Schlüssel.
func CacheKey(source sources.Source, slug string) string {
	return string(source) + "/" + slug
}

// htmlBlobKey adressiert gerenderte Inhalte über den Content-Hash. Alte
// Schlüssel bleiben dadurch bei einem Rollback gültig.
func htmlBlobKey(source, slug, hash string) string {
	return fmt.Sprintf("html/%s/%s/%s.html", source, slug, hash[:12])
}

// rawBlobKey adressiert den unbearbeiteten Upstream-Inhalt.
func rawBlobKey(source, slug, hash string) string {
	return fmt.Sprintf("raw/%s/%s/%s.html", source, slug, hash[:12])
}

// ResolveSlug löst höchstens einen Redirect-Hop auf. Selbstbezüge werden
// als unaufgelöst behandelt, damit ein eingeschleuster Zyklus nie zu
// einer Schleife führt.
func (s *ContentService) ResolveSlug(source sources.Source, slug string) string {
	var redirect models.Redirect
	err := s.DB.Where("source = ? AND from_slug = ?", source, slug).First(&redirect).Error
	if err != nil {
		return slug
	}
	if redirect.ToSlug == "" || redirect.ToSlug == slug {
		return slug
	}
	return redirect.ToSlug
}

// GetArticle lädt einen Artikel (nach Redirect-Auflösung) samt gerendertem
// HTML durch den Cache.
func (s *ContentService) GetArticle(ctx context.Context, source sources.Source, slug string) (*models.Article, []byte, error) {
	resolved := s.ResolveSlug(source, slug)

	var article models.Article
	err := s.DB.Where("source = ? AND slug = ?", source, resolved).First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	if article.RenderedHTMLKey == "" {
		return &article, nil, nil
	}

	html, err := s.Cache.Fetch(ctx, CacheKey(source, resolved), func(ctx context.Context) ([]byte, error) {
		return s.Blobs.Get(ctx, article.RenderedHTMLKey)
	})
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &article, html, nil
}

// ListOptions steuert Listen-Abfragen über Artikel.
type ListOptions struct {
	SortBy string // "recent" (default) oder "title"
	Letter string // optionaler Anfangsbuchstaben-Filter
	Status string
	Limit  int
	Offset int
}

func (s *ContentService) articleQuery(source sources.Source, opts ListOptions) *gorm.DB {
	query := s.DB.Model(&models.Article{}).Where("source = ?", source)
	if opts.Letter != "" {
		query = query.Where("lower(title) LIKE ?", string([]rune(opts.Letter)[0:1])+"%")
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	return query
}

// ListArticles listet Artikel einer Quelle, sortiert nach Aktualität oder
// Titel, optional gefiltert nach Anfangsbuchstabe und Status.
func (s *ContentService) ListArticles(source sources.Source, opts ListOptions) ([]models.Article, error) {
	query := s.articleQuery(source, opts)
	if opts.SortBy == "title" {
		query = query.Order("title asc")
	} else {
		query = query.Order("updated_at desc")
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var articles []models.Article
	if err := query.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// CountArticles zählt Artikel einer Quelle unter denselben Filtern.
func (s *ContentService) CountArticles(source sources.Source, opts ListOptions) (int64, error) {
	var count int64
	err := s.articleQuery(source, opts).Count(&count).Error
	return count, err
}

// CreateRedirect legt einen Redirect an.
func (s *ContentService) CreateRedirect(source sources.Source, fromSlug, toSlug string) (*models.Redirect, error) {
	if fromSlug == toSlug {
		return nil, fmt.Errorf("redirect must not point to itself")
	}
	redirect := models.Redirect{Source: string(source), FromSlug: fromSlug, ToSlug: toSlug}
	if err := s.DB.Create(&redirect).Error; err != nil {
		return nil, err
	}
	return &redirect, nil
}

// ListRedirects listet alle Redirects einer Quelle.
func (s *ContentService) ListRedirects(source sources.Source) ([]models.Redirect, error) {
	var redirects []models.Redirect
	err := s.DB.Where("source = ?", source).Order("from_slug asc").Find(&redirects).Error
	return redirects, err
}

// DeleteRedirect entfernt einen Redirect.
func (s *ContentService) DeleteRedirect(source sources.Source, fromSlug string) error {
	res := s.DB.Where("source = ? AND from_slug = ?", source, fromSlug).Delete(&models.Redirect{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ContentChange beschreibt eine Änderung des gerenderten Inhalts. Extra
// läuft innerhalb derselben Transaktion (z.B. Status-Update des
// zugehörigen Pending-Edits).
type ContentChange struct {
	HTML          []byte
	RawContent    []byte // optional: unbearbeiteter Upstream-Inhalt
	Title         string
	ExtractedText string
	Status        string
	Editor        string
	Comment       string
	UpstreamHash  string
	MarkSynced    bool
	Embedding     []float32
	Extra         func(tx *gorm.DB) error
}

// ApplyContentChange ist der einzige Pfad, der gerenderten Inhalt ändert.
// Innerhalb einer Transaktion: Blob schreiben, Revision anhängen,
// Artikel-Zeile aktualisieren; schlägt ein Schritt fehl, wird alles
// zurückgerollt und der neu geschriebene Blob als Kompensation entfernt.
// Die Cache-Invalidierung läuft synchron, bevor der Aufruf zurückkehrt.
func (s *ContentService) ApplyContentChange(ctx context.Context, article *models.Article, change ContentChange) error {
	hash := HashContent(change.HTML)
	htmlKey := htmlBlobKey(article.Source, article.Slug, hash)

	var writtenKeys []string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Blobs.Put(ctx, htmlKey, change.HTML); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		writtenKeys = append(writtenKeys, htmlKey)

		updates := map[string]interface{}{
			"rendered_html_key": htmlKey,
		}

		if len(change.RawContent) > 0 {
			rawKey := rawBlobKey(article.Source, article.Slug, hash)
			if err := s.Blobs.Put(ctx, rawKey, change.RawContent); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
			writtenKeys = append(writtenKeys, rawKey)
			updates["raw_content_key"] = rawKey
		}

		revision := models.Revision{
			ArticleID:   article.ID,
			ContentHash: hash,
			Editor:      change.Editor,
			Comment:     change.Comment,
		}
		if err := tx.Create(&revision).Error; err != nil {
			return err
		}

		if change.Status != "" {
			updates["status"] = change.Status
		}
		if change.Title != "" {
			updates["title"] = change.Title
		}
		if change.ExtractedText != "" {
			updates["extracted_text"] = change.ExtractedText
		}
		if change.UpstreamHash != "" {
			updates["upstream_hash"] = change.UpstreamHash
		}
		now := time.Now()
		if change.MarkSynced {
			updates["synced_at"] = now
		}
		if change.Embedding != nil {
			if err := article.SetEmbeddingVector(change.Embedding, now); err != nil {
				return err
			}
			updates["embedding"] = article.Embedding
			updates["embedded_at"] = now
		}

		if err := tx.Model(&models.Article{}).Where("id = ?", article.ID).Updates(updates).Error; err != nil {
			return err
		}

		if change.Extra != nil {
			if err := change.Extra(tx); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		// Kompensation: in der abgebrochenen Transaktion geschriebene
		// Blobs wieder entfernen. Content-adressierte Schlüssel können
		// mit denen des Live-Inhalts zusammenfallen (identischer Inhalt);
		// die referenziert die Artikel-Zeile weiterhin und sie bleiben.
		for _, key := range writtenKeys {
			if key == article.RenderedHTMLKey || key == article.RawContentKey {
				continue
			}
			if delErr := s.Blobs.Delete(ctx, key); delErr != nil {
				s.Logger.Warn("Kompensations-Delete fehlgeschlagen",
					zap.String("key", key), zap.Error(delErr))
			}
		}
		return err
	}

	s.Cache.Invalidate(CacheKey(sources.Source(article.Source), article.Slug))
	return nil
}

// GetArticleByID lädt eine Artikel-Zeile ohne Inhalt.
func (s *ContentService) GetArticleByID(id uint) (*models.Article, error) {
	var article models.Article
	if err := s.DB.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &article, nil
}

// Revisions listet das Revisions-Log eines Artikels, neueste zuerst.
func (s *ContentService) Revisions(articleID uint) ([]models.Revision, error) {
	var revisions []models.Revision
	err := s.DB.Where("article_id = ?", articleID).Order("id desc").Find(&revisions).Error
	return revisions, err
}

// CrossLinks liefert alle von einem Artikel ausgehenden Cross-Links.
func (s *ContentService) CrossLinks(articleID uint) ([]models.CrossLink, error) {
	var links []models.CrossLink
	err := s.DB.Where("source_article_id = ?", articleID).Order("confidence desc").Find(&links).Error
	return links, err
}

// CreateCuratedLink legt einen kuratierten Cross-Link an bzw. ersetzt
// einen automatisch erkannten für dasselbe Paar.
func (s *ContentService) CreateCuratedLink(sourceID, targetID uint, relationship string) (*models.CrossLink, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("cross link must connect two different articles")
	}
	link := models.CrossLink{
		SourceArticleID: sourceID,
		TargetArticleID: targetID,
		Relationship:    relationship,
		Confidence:      1.0,
		AutoDetected:    false,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		tx.Where("source_article_id = ? AND target_article_id = ?", sourceID, targetID).Delete(&models.CrossLink{})
		return tx.Create(&link).Error
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}
