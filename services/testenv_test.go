package services

import (
	"context"
	"testing"
	"time"

	"crosswiki/cache"
	"crosswiki/config"
	"crosswiki/models"
	"crosswiki/sources"
	"crosswiki/storage"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testConfig liefert eine Konfiguration mit kurzen Fenstern und kleinen
// Limits, damit die Grenzfälle ohne Wartezeit erreichbar sind.
func testConfig() *config.Config {
	return &config.Config{
		EmbeddingDims:        4,
		SyncRequestDelay:     time.Millisecond,
		SyncPageTimeout:      5 * time.Second,
		SyncBatchSize:        3,
		CacheTTL:             time.Minute,
		MaxOpenEditsPerIP:    2,
		MaxEditsPerWindow:    3,
		EditSubmissionWindow: time.Hour,
		SearchRateLimit:      100,
		SearchRateWindow:     time.Minute,
		CrossRefThreshold:    0.55,
		CrossRefMaxAge:       time.Hour,
		CrossRefBatchSize:    50,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.Article{}, &models.Redirect{}, &models.Revision{},
		&models.PendingEdit{}, &models.CrossLink{}, &models.SyncState{},
	)
	if err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func newTestContent(t *testing.T) (*ContentService, *storage.MemoryStore) {
	t.Helper()
	blobs := storage.NewMemoryStore()
	content := NewContentService(newTestDB(t), blobs, cache.New(time.Minute), zap.NewNop())
	return content, blobs
}

// seedArticle legt einen Artikel an und schreibt seinen Inhalt über den
// regulären Änderungspfad.
func seedArticle(t *testing.T, content *ContentService, src sources.Source, slug, title, html string) *models.Article {
	t.Helper()
	article := models.Article{
		Source: string(src),
		Slug:   slug,
		Title:  title,
		Status: models.StatusSynced,
	}
	if err := content.DB.Create(&article).Error; err != nil {
		t.Fatalf("creating article %s/%s: %v", src, slug, err)
	}

	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("extracting text: %v", err)
	}
	change := ContentChange{
		HTML:          []byte(html),
		Title:         title,
		ExtractedText: text,
		Status:        models.StatusSynced,
		Editor:        "test",
		Comment:       "seed",
		UpstreamHash:  HashContent([]byte(html)),
		MarkSynced:    true,
	}
	if err := content.ApplyContentChange(context.Background(), &article, change); err != nil {
		t.Fatalf("applying seed content: %v", err)
	}

	var out models.Article
	if err := content.DB.First(&out, article.ID).Error; err != nil {
		t.Fatalf("reloading article: %v", err)
	}
	return &out
}
