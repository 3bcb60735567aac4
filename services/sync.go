package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crosswiki/config"
	"crosswiki/embedding"
	"crosswiki/models"
	"crosswiki/providers"
	"crosswiki/sources"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SyncOptions steuert einen einzelnen Sync-Lauf.
type SyncOptions struct {
	// FullSync ignoriert den gespeicherten Checkpoint und startet vorn.
	FullSync bool
	// ResumeFrom überschreibt den Checkpoint mit einem expliziten Slug.
	ResumeFrom string
	// Limit begrenzt die Anzahl verarbeiteter Seiten (0 = unbegrenzt).
	Limit int
}

// SyncResult fasst einen abgeschlossenen Lauf zusammen.
type SyncResult struct {
	PagesSeen    int    `json:"pages_seen"`
	PagesChanged int    `json:"pages_changed"`
	PagesFailed  int    `json:"pages_failed"`
	LastSlug     string `json:"last_slug"`
	Completed    bool   `json:"completed"`
}

// SyncService zieht Seiten aus den Upstream-Wikis in den Content Store.
// Pro Quelle läuft höchstens ein Lauf gleichzeitig; jeder Lauf drosselt
// sich selbst und persistiert nach jeder Seite seinen Checkpoint.
type SyncService struct {
	Config    *config.Config
	Content   *ContentService
	Providers map[sources.Source]providers.Provider
	Embedder  *embedding.Client
	Logger    *zap.Logger

	mu      sync.Mutex
	running map[sources.Source]bool
}

// NewSyncService erstellt eine neue Instanz des SyncService.
func NewSyncService(cfg *config.Config, content *ContentService, provs map[sources.Source]providers.Provider, embedder *embedding.Client, logger *zap.Logger) *SyncService {
	return &SyncService{
		Config:    cfg,
		Content:   content,
		Providers: provs,
		Embedder:  embedder,
		Logger:    logger,
		running:   map[sources.Source]bool{},
	}
}

func (s *SyncService) acquire(src sources.Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[src] {
		return false
	}
	s.running[src] = true
	return true
}

func (s *SyncService) release(src sources.Source) {
	s.mu.Lock()
	delete(s.running, src)
	s.mu.Unlock()
}

// State lädt den Checkpoint einer Quelle (legt ihn bei Bedarf an).
func (s *SyncService) State(src sources.Source) (*models.SyncState, error) {
	var state models.SyncState
	err := s.Content.DB.Where("source = ?", src).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.SyncState{Source: string(src)}
		if err := s.Content.DB.Create(&state).Error; err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Run führt einen Sync-Lauf für eine Quelle aus. Ein Fehler beim Listing
// bricht den Lauf ab und lässt den Checkpoint stehen; ein Fehler bei
// einer einzelnen Seite wird einmal wiederholt und dann übersprungen.
func (s *SyncService) Run(ctx context.Context, src sources.Source, opts SyncOptions) (*SyncResult, error) {
	provider, ok := s.Providers[src]
	if !ok {
		return nil, fmt.Errorf("no provider configured for source %q", src)
	}
	if !s.acquire(src) {
		return nil, ErrSyncRunning
	}
	defer s.release(src)

	log := s.Logger.With(zap.String("source", string(src)))

	state, err := s.State(src)
	if err != nil {
		return nil, err
	}

	cursor := state.LastSlug
	if opts.ResumeFrom != "" {
		cursor = opts.ResumeFrom
	}
	if opts.FullSync && opts.ResumeFrom == "" {
		cursor = ""
		state.Offset = 0
	}

	now := time.Now()
	state.StartedAt = &now
	state.FinishedAt = nil
	state.LastError = ""
	if err := s.Content.DB.Save(state).Error; err != nil {
		return nil, err
	}

	log.Info("Starte Sync-Lauf",
		zap.Bool("full_sync", opts.FullSync),
		zap.String("resume_from", cursor),
		zap.Int("limit", opts.Limit))

	// Selbst-Drosselung: fixe Wartezeit zwischen allen Upstream-Requests.
	limiter := rate.NewLimiter(rate.Every(s.Config.SyncRequestDelay), 1)
	result := &SyncResult{}

	batch := s.Config.SyncBatchSize
	if batch <= 0 {
		batch = 50
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		remaining := batch
		if opts.Limit > 0 && opts.Limit-result.PagesSeen < remaining {
			remaining = opts.Limit - result.PagesSeen
		}
		if remaining <= 0 {
			break
		}

		refs, err := provider.ListPages(ctx, cursor, remaining)
		if err != nil {
			state.LastError = err.Error()
			s.Content.DB.Save(state)
			log.Error("Seiten-Listing fehlgeschlagen, Lauf wird abgebrochen", zap.Error(err))
			return result, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
		}
		if len(refs) == 0 {
			result.Completed = true
			break
		}

		for _, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				return result, err
			}

			changed, err := s.syncPage(ctx, provider, src, ref, log)
			if err != nil {
				result.PagesFailed++
				state.PagesFailed++
				log.Warn("Seite übersprungen", zap.String("slug", ref.Slug), zap.Error(err))
			} else if changed {
				result.PagesChanged++
				state.PagesChanged++
			}

			cursor = ref.Slug
			result.PagesSeen++
			result.LastSlug = ref.Slug

			// Checkpoint nach jeder Seite, damit ein Abbruch ohne
			// Doppelverarbeitung fortgesetzt werden kann.
			state.LastSlug = ref.Slug
			state.Offset++
			state.PagesSeen++
			if err := s.Content.DB.Save(state).Error; err != nil {
				return result, err
			}
		}

		if len(refs) < remaining {
			result.Completed = true
			break
		}
	}

	done := time.Now()
	state.FinishedAt = &done
	if result.Completed {
		// Vollständiger Durchlauf: nächster inkrementeller Lauf beginnt
		// wieder vorn, um neu angelegte Seiten zu sehen.
		state.LastSlug = ""
	}
	if err := s.Content.DB.Save(state).Error; err != nil {
		return result, err
	}

	log.Info("Sync-Lauf abgeschlossen",
		zap.Int("pages_seen", result.PagesSeen),
		zap.Int("pages_changed", result.PagesChanged),
		zap.Int("pages_failed", result.PagesFailed))
	return result, nil
}

// syncPage verarbeitet eine Seite: laden (mit einem Retry), Hash
// vergleichen und nur bei Abweichung schreiben.
func (s *SyncService) syncPage(ctx context.Context, provider providers.Provider, src sources.Source, ref providers.PageRef, log *zap.Logger) (bool, error) {
	page, err := s.fetchWithRetry(ctx, provider, ref.Slug)
	if err != nil {
		return false, err
	}

	hash := HashContent([]byte(page.HTML))

	var article models.Article
	err = s.Content.DB.Where("source = ? AND slug = ?", src, ref.Slug).First(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		info := sources.Get(src)
		article = models.Article{
			Source:      string(src),
			Slug:        ref.Slug,
			Title:       ref.Title,
			UpstreamURL: sources.UpstreamURL(src, ref.Slug),
			License:     info.License,
			Status:      models.StatusSynced,
		}
		if err := s.Content.DB.Create(&article).Error; err != nil {
			return false, err
		}
	} else if err != nil {
		return false, err
	}

	if article.UpstreamHash == hash {
		// Unverändert: nur den Sync-Zeitstempel auffrischen.
		return false, s.Content.DB.Model(&article).Update("synced_at", time.Now()).Error
	}

	// Lokal editierte Artikel werden vom Sync nie überschrieben, sondern
	// nur als divergiert markiert; das gilt auch für jede weitere
	// Upstream-Änderung nach der ersten.
	if article.Status == models.StatusLocalOnly || article.Status == models.StatusDiverged {
		log.Info("Upstream-Änderung auf lokal editiertem Artikel",
			zap.String("slug", ref.Slug))
		return false, s.Content.DB.Model(&article).Updates(map[string]interface{}{
			"upstream_hash": hash,
			"status":        models.StatusDiverged,
		}).Error
	}

	text, err := ExtractText(page.HTML)
	if err != nil {
		return false, fmt.Errorf("%w: %v", providers.ErrEncoding, err)
	}

	title := ref.Title
	if title == "" {
		title = page.Title
	}
	if title == "" {
		title = ExtractTitle(page.HTML)
	}

	change := ContentChange{
		HTML:          []byte(page.HTML),
		RawContent:    []byte(page.HTML),
		Title:         title,
		ExtractedText: text,
		Status:        models.StatusSynced,
		Editor:        "sync:" + string(src),
		Comment:       "upstream sync",
		UpstreamHash:  hash,
		MarkSynced:    true,
	}

	if s.Config.EmbedDuringSync && s.Embedder.Enabled() {
		vec, err := s.Embedder.Embed(ctx, title+"\n"+text)
		if err != nil {
			// Embedding ist optional: der Artikel bleibt ohne Vektor
			// suchbar, nur die semantische Suche kennt ihn nicht.
			log.Warn("Embedding fehlgeschlagen", zap.String("slug", ref.Slug), zap.Error(err))
		} else {
			change.Embedding = vec
		}
	}

	if err := s.Content.ApplyContentChange(ctx, &article, change); err != nil {
		return false, err
	}
	return true, nil
}

// fetchWithRetry lädt eine Seite und wiederholt transiente Fehler genau
// einmal. Encoding-Fehler werden nicht wiederholt.
func (s *SyncService) fetchWithRetry(ctx context.Context, provider providers.Provider, slug string) (*providers.PageContent, error) {
	page, err := provider.FetchPage(ctx, slug)
	if err == nil {
		return page, nil
	}
	if errors.Is(err, providers.ErrEncoding) {
		return nil, err
	}

	s.Logger.Debug("Seiten-Fetch fehlgeschlagen, wiederhole einmal",
		zap.String("slug", slug), zap.Error(err))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.Config.SyncRequestDelay):
	}
	return provider.FetchPage(ctx, slug)
}
