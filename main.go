package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"crosswiki/cache"
	"crosswiki/config"
	"crosswiki/embedding"
	"crosswiki/models"
	"crosswiki/providers"
	"crosswiki/providers/wikiapi"
	"crosswiki/services"
	"crosswiki/sources"
	"crosswiki/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	articlesSyncedCounter  prometheus.Counter
	editsSubmittedCounter  prometheus.Counter
	editsApprovedCounter   prometheus.Counter
	editsRejectedCounter   prometheus.Counter
	searchesCounter        prometheus.Counter
	searchThrottledCounter prometheus.Counter
	editsThrottledCounter  prometheus.Counter
	crossLinksCounter      prometheus.Counter
)

func init() {
	articlesSyncedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "articles_synced_total",
		Help: "Total number of articles created or updated by sync runs.",
	})
	editsSubmittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_edits_submitted_total",
		Help: "Total number of accepted pending edit submissions.",
	})
	editsApprovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_edits_approved_total",
		Help: "Total number of approved pending edits.",
	})
	editsRejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_edits_rejected_total",
		Help: "Total number of rejected pending edits.",
	})
	searchesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "searches_total",
		Help: "Total number of served search requests.",
	})
	searchThrottledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "searches_throttled_total",
		Help: "Total number of rate-limited search requests.",
	})
	editsThrottledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_edits_throttled_total",
		Help: "Total number of rate-limited edit submissions.",
	})
	crossLinksCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cross_links_detected_total",
		Help: "Total number of auto-detected cross links written.",
	})
	prometheus.MustRegister(
		articlesSyncedCounter, editsSubmittedCounter, editsApprovedCounter,
		editsRejectedCounter, searchesCounter, searchThrottledCounter,
		editsThrottledCounter, crossLinksCounter,
	)
}

// moderatorAuthMiddleware schützt Review- und Sync-Endpoints. Ohne
// konfigurierten Schlüssel ist alles offen (lokale Entwicklung).
func moderatorAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.ModeratorAPIKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.ModeratorAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to content database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(
		&models.Article{}, &models.Redirect{}, &models.Revision{},
		&models.PendingEdit{}, &models.CrossLink{}, &models.SyncState{},
	); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	blobs, err := storage.NewS3Store(cfg)
	if err != nil {
		logging.Fatal("Blob store creation failed", zap.Error(err))
	}

	htmlCache := cache.New(cfg.CacheTTL)
	embedder := embedding.NewClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDims, cfg.EmbeddingTimeout)
	if !embedder.Enabled() {
		logging.Warn("Embedding service not configured, semantic search disabled")
	}

	contentService := services.NewContentService(db, blobs, htmlCache, logging)

	provs := map[sources.Source]providers.Provider{}
	for _, src := range sources.All() {
		provs[src] = wikiapi.NewFetcher(src, logging, cfg.SyncPageTimeout)
	}
	syncService := services.NewSyncService(cfg, contentService, provs, embedder, logging)
	searchService := services.NewSearchService(cfg, db, embedder, logging)
	moderationService := services.NewModerationService(cfg, contentService, logging)
	moderationService.OnNewEdit = func(edit *models.PendingEdit) {
		editsSubmittedCounter.Inc()
	}
	crossRefService := services.NewCrossRefService(cfg, db, logging)

	router := gin.Default()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupArticleRoutes(router, cfg, contentService, logging)
	setupSearchRoutes(router, searchService, logging)
	setupModerationRoutes(router, cfg, moderationService, logging)
	setupSyncRoutes(router, cfg, syncService, logging)
	setupRedirectRoutes(router, cfg, contentService, logging)
	setupStatusRoutes(router, contentService, syncService, moderationService)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled incremental sync...")
		for _, src := range sources.All() {
			result, err := syncService.Run(context.Background(), src, services.SyncOptions{})
			if err != nil {
				logging.Error("Scheduled sync failed", zap.String("source", string(src)), zap.Error(err))
				continue
			}
			articlesSyncedCounter.Add(float64(result.PagesChanged))
		}
	})
	cronScheduler.AddFunc("30 * * * *", func() {
		count, err := crossRefService.Run(context.Background())
		if err != nil {
			logging.Error("Cross-reference pass failed", zap.Error(err))
			return
		}
		crossLinksCounter.Add(float64(count))
	})
	cronScheduler.AddFunc("*/10 * * * *", func() {
		searchService.Limiter().Cleanup()
		moderationService.SubmissionLimiter().Cleanup()
		htmlCache.Purge()
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// publicError kollabiert interne Fehler auf generische Antworten; nur
// not_found und rate_limited sind nach außen unterscheidbar.
func publicError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please slow down"})
	default:
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	}
}

func setupArticleRoutes(router *gin.Engine, cfg *config.Config, content *services.ContentService, log *zap.Logger) {
	rg := router.Group("/articles")

	rg.GET("/:source", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		opts := services.ListOptions{
			SortBy: c.DefaultQuery("sort", "recent"),
			Letter: c.Query("letter"),
			Status: c.Query("status"),
			Limit:  limit,
			Offset: offset,
		}

		articles, err := content.ListArticles(src, opts)
		if err != nil {
			publicError(c, log, err)
			return
		}
		total, err := content.CountArticles(src, opts)
		if err != nil {
			publicError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"articles": articles, "total_count": total})
	})

	rg.GET("/:source/:slug", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		article, html, err := content.GetArticle(c.Request.Context(), src, c.Param("slug"))
		if err != nil {
			publicError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"article": article, "html": string(html)})
	})

	rg.GET("/:source/:slug/revisions", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		article, _, err := content.GetArticle(c.Request.Context(), src, c.Param("slug"))
		if err != nil {
			publicError(c, log, err)
			return
		}
		revisions, err := content.Revisions(article.ID)
		if err != nil {
			publicError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, revisions)
	})

	rg.GET("/:source/:slug/links", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		article, _, err := content.GetArticle(c.Request.Context(), src, c.Param("slug"))
		if err != nil {
			publicError(c, log, err)
			return
		}
		links, err := content.CrossLinks(article.ID)
		if err != nil {
			publicError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, links)
	})

	// Kuratierte Links legen Moderatoren an; sie überleben Detektor-Läufe.
	rg.POST("/:source/:slug/links", moderatorAuthMiddleware(cfg), func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		var req struct {
			TargetArticleID uint   `json:"target_article_id" binding:"required"`
			Relationship    string `json:"relationship"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.Relationship == "" {
			req.Relationship = models.RelRelated
		}

		article, _, err := content.GetArticle(c.Request.Context(), src, c.Param("slug"))
		if err != nil {
			publicError(c, log, err)
			return
		}
		if _, err := content.GetArticleByID(req.TargetArticleID); err != nil {
			publicError(c, log, err)
			return
		}
		link, err := content.CreateCuratedLink(article.ID, req.TargetArticleID, req.Relationship)
		if err != nil {
			log.Error("Failed to create curated link", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create link"})
			return
		}
		c.JSON(http.StatusCreated, link)
	})
}

func setupSearchRoutes(router *gin.Engine, search *services.SearchService, log *zap.Logger) {
	router.POST("/search", func(c *gin.Context) {
		var req services.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'query' field is required."})
			return
		}
		if req.Source != "" {
			if _, err := sources.Parse(req.Source); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
				return
			}
		}
		req.ClientIP = c.ClientIP()

		resp, err := search.Search(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, services.ErrRateLimited) {
				searchThrottledCounter.Inc()
			}
			publicError(c, log, err)
			return
		}
		searchesCounter.Inc()
		c.JSON(http.StatusOK, resp)
	})
}

func setupModerationRoutes(router *gin.Engine, cfg *config.Config, moderation *services.ModerationService, log *zap.Logger) {
	rg := router.Group("/pending-edits")

	// Submission ist öffentlich (Community), Review nur für Moderatoren.
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			ArticleID        uint   `json:"article_id" binding:"required"`
			SuggestedContent string `json:"suggested_content" binding:"required"`
			Reason           string `json:"reason"`
			SubmitterEmail   string `json:"submitter_email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		edit, err := moderation.CreatePendingEdit(services.CreateEditInput{
			ArticleID:        req.ArticleID,
			SuggestedContent: req.SuggestedContent,
			Reason:           req.Reason,
			SubmitterEmail:   req.SubmitterEmail,
			SubmitterIP:      c.ClientIP(),
		})
		if err != nil {
			if errors.Is(err, services.ErrRateLimited) {
				editsThrottledCounter.Inc()
			}
			publicError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, edit)
	})

	reviewer := rg.Group("", moderatorAuthMiddleware(cfg))

	reviewer.GET("/", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		edits, err := moderation.ListPendingEdits(c.DefaultQuery("status", models.EditStatusPending), limit)
		if err != nil {
			log.Error("Listing pending edits failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, edits)
	})

	reviewer.GET("/:id/diff", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		spans, err := moderation.Diff(c.Request.Context(), uint(id))
		if err != nil {
			moderationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"spans": spans})
	})

	reviewer.POST("/:id/approve", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req struct {
			Note string `json:"note"`
		}
		_ = c.ShouldBindJSON(&req)

		edit, err := moderation.ApprovePendingEdit(c.Request.Context(), uint(id), req.Note)
		if err != nil {
			moderationError(c, err)
			return
		}
		editsApprovedCounter.Inc()
		c.JSON(http.StatusOK, edit)
	})

	reviewer.POST("/:id/reject", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req struct {
			Note string `json:"note"`
		}
		_ = c.ShouldBindJSON(&req)

		edit, err := moderation.RejectPendingEdit(uint(id), req.Note)
		if err != nil {
			moderationError(c, err)
			return
		}
		editsRejectedCounter.Inc()
		c.JSON(http.StatusOK, edit)
	})
}

// moderationError zeigt Moderatoren konkrete Gründe; das Publikum sieht
// diese Endpoints nicht.
func moderationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "pending edit or article not found"})
	case errors.Is(err, services.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": "edit has already been reviewed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func setupSyncRoutes(router *gin.Engine, cfg *config.Config, sync *services.SyncService, log *zap.Logger) {
	rg := router.Group("/sync", moderatorAuthMiddleware(cfg))

	rg.POST("/:source", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		var req struct {
			FullSync   bool   `json:"full_sync"`
			ResumeFrom string `json:"resume_from"`
			Limit      int    `json:"limit"`
		}
		_ = c.ShouldBindJSON(&req)

		opts := services.SyncOptions{FullSync: req.FullSync, ResumeFrom: req.ResumeFrom, Limit: req.Limit}
		go func() {
			result, err := sync.Run(context.Background(), src, opts)
			if err != nil {
				log.Error("Async sync failed", zap.String("source", string(src)), zap.Error(err))
				return
			}
			articlesSyncedCounter.Add(float64(result.PagesChanged))
			log.Info("Async sync completed",
				zap.String("source", string(src)),
				zap.Int("pages_seen", result.PagesSeen),
				zap.Int("pages_changed", result.PagesChanged))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Sync for source " + string(src) + " triggered."})
	})

	rg.GET("/:source", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		state, err := sync.State(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	})
}

func setupRedirectRoutes(router *gin.Engine, cfg *config.Config, content *services.ContentService, log *zap.Logger) {
	rg := router.Group("/redirects", moderatorAuthMiddleware(cfg))

	rg.POST("/:source", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		var req struct {
			FromSlug string `json:"from_slug" binding:"required"`
			ToSlug   string `json:"to_slug" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		redirect, err := content.CreateRedirect(src, req.FromSlug, req.ToSlug)
		if err != nil {
			log.Error("Failed to create redirect", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create redirect"})
			return
		}
		c.JSON(http.StatusCreated, redirect)
	})

	rg.GET("/:source", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		redirects, err := content.ListRedirects(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, redirects)
	})

	rg.DELETE("/:source/:from_slug", func(c *gin.Context) {
		src, err := sources.Parse(c.Param("source"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		if err := content.DeleteRedirect(src, c.Param("from_slug")); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "redirect not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

func setupStatusRoutes(router *gin.Engine, content *services.ContentService, sync *services.SyncService, moderation *services.ModerationService) {
	router.GET("/status", func(c *gin.Context) {
		type sourceStatus struct {
			Source       string     `json:"source"`
			Label        string     `json:"label"`
			ArticleCount int64      `json:"article_count"`
			LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
		}

		var out []sourceStatus
		for _, src := range sources.All() {
			count, err := content.CountArticles(src, services.ListOptions{})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			status := sourceStatus{
				Source:       string(src),
				Label:        sources.Get(src).Label,
				ArticleCount: count,
			}
			if state, err := sync.State(src); err == nil {
				status.LastSyncedAt = state.FinishedAt
			}
			out = append(out, status)
		}

		editCounts, err := moderation.CountEditsByStatus()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sources":       out,
			"pending_edits": editCounts,
		})
	})
}
