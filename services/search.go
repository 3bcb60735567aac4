package services

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"crosswiki/config"
	"crosswiki/embedding"
	"crosswiki/models"
	"crosswiki/ratelimit"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Such-Modi.
const (
	ModeKeyword  = "keyword"
	ModeSemantic = "semantic"
	ModeHybrid   = "hybrid"
)

const (
	defaultSearchLimit = 20
	candidateLimit     = 200
	snippetRadius      = 90
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// SearchRequest ist die Suchanfrage eines Clients.
type SearchRequest struct {
	Query    string `json:"query" binding:"required"`
	Mode     string `json:"mode"`
	Source   string `json:"source"`
	Limit    int    `json:"limit"`
	ClientIP string `json:"-"`
}

// SearchResult ist ein Treffer mit Highlight-Snippet.
type SearchResult struct {
	Source  string  `json:"source"`
	Slug    string  `json:"slug"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchResponse bündelt Treffer und Gesamtzahl.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
}

// SearchService kombiniert Keyword-Ranking über Titel+Klartext mit
// semantischem Ranking über die gespeicherten Embedding-Vektoren. Jede
// Anfrage passiert zuerst das per-Client-Limit; darüber hinausgehende
// Anfragen werden abgelehnt, nie eingereiht.
type SearchService struct {
	Config   *config.Config
	DB       *gorm.DB
	Embedder *embedding.Client
	Logger   *zap.Logger

	limiter *ratelimit.Limiter
}

// NewSearchService erstellt eine neue Instanz des SearchService.
func NewSearchService(cfg *config.Config, db *gorm.DB, embedder *embedding.Client, logger *zap.Logger) *SearchService {
	return &SearchService{
		Config:   cfg,
		DB:       db,
		Embedder: embedder,
		Logger:   logger,
		limiter:  ratelimit.New(cfg.SearchRateLimit, cfg.SearchRateWindow),
	}
}

// Limiter gibt den Such-Limiter zurück (für den Cleanup-Cron).
func (s *SearchService) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// scored sammelt beide Signale pro Artikel vor dem Merge.
type scored struct {
	article  models.Article
	keyword  float64
	semantic float64
}

// Search führt eine Suche im angeforderten Modus aus (default hybrid).
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.ClientIP != "" && !s.limiter.Allow(req.ClientIP) {
		s.Logger.Info("Suche gedrosselt", zap.String("ip", req.ClientIP))
		return nil, ErrRateLimited
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	terms := Tokenize(req.Query)
	if len(terms) == 0 {
		return &SearchResponse{Results: []SearchResult{}}, nil
	}

	merged := map[uint]*scored{}

	if mode == ModeKeyword || mode == ModeHybrid {
		candidates, err := s.keywordCandidates(terms, req.Source)
		if err != nil {
			return nil, err
		}
		for _, a := range candidates {
			score := keywordScore(&a, terms)
			if score <= 0 {
				continue
			}
			merged[a.ID] = &scored{article: a, keyword: score}
		}
	}

	if mode == ModeSemantic || mode == ModeHybrid {
		for id, entry := range s.semanticCandidates(ctx, req.Query, req.Source) {
			if existing, ok := merged[id]; ok {
				existing.semantic = entry.semantic
			} else {
				merged[id] = entry
			}
		}
	}

	results := rank(merged, mode, terms, limit)
	return &SearchResponse{Results: results, TotalCount: len(merged)}, nil
}

// Tokenize zerlegt die Query in AND-verknüpfte Kleinbuchstaben-Terme;
// Nicht-Wort-Zeichen werden entfernt.
func Tokenize(query string) []string {
	raw := nonWord.Split(strings.ToLower(query), -1)
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// keywordCandidates holt Artikel, die alle Terme in Titel oder Klartext
// enthalten. Das Scoring passiert danach in Go, damit Postgres und das
// sqlite der Tests identisch ranken.
func (s *SearchService) keywordCandidates(terms []string, source string) ([]models.Article, error) {
	query := s.DB.Model(&models.Article{})
	if source != "" {
		query = query.Where("source = ?", source)
	}
	for _, term := range terms {
		like := "%" + term + "%"
		query = query.Where("(lower(title) LIKE ? OR lower(extracted_text) LIKE ?)", like, like)
	}

	var articles []models.Article
	if err := query.Limit(candidateLimit).Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// keywordScore gewichtet Titel-Treffer deutlich stärker als Body-Treffer.
func keywordScore(a *models.Article, terms []string) float64 {
	title := strings.ToLower(a.Title)
	body := strings.ToLower(a.ExtractedText)

	var score float64
	for _, term := range terms {
		score += 5 * float64(strings.Count(title, term))
		score += float64(strings.Count(body, term))
	}
	if len(terms) > 0 && title == strings.Join(terms, " ") {
		score += 25 // exakter Titel-Treffer
	}
	return score
}

// semanticCandidates liefert Cosine-Scores gegen alle Artikel mit
// berechnetem Embedding. Ist der Embedding-Service nicht erreichbar,
// liefert die semantische Seite schlicht keine Kandidaten.
func (s *SearchService) semanticCandidates(ctx context.Context, query, source string) map[uint]*scored {
	out := map[uint]*scored{}
	if !s.Embedder.Enabled() {
		return out
	}

	queryVec, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		s.Logger.Warn("Query-Embedding fehlgeschlagen, semantisches Signal entfällt", zap.Error(err))
		return out
	}

	dbq := s.DB.Model(&models.Article{}).Where("embedding IS NOT NULL")
	if source != "" {
		dbq = dbq.Where("source = ?", source)
	}
	var articles []models.Article
	if err := dbq.Find(&articles).Error; err != nil {
		s.Logger.Error("Laden der Embedding-Kandidaten fehlgeschlagen", zap.Error(err))
		return out
	}

	for _, a := range articles {
		vec := a.EmbeddingVector()
		if vec == nil {
			continue
		}
		sim := cosine(queryVec, vec)
		if sim <= 0 {
			continue
		}
		out[a.ID] = &scored{article: a, semantic: sim}
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank merged beide Signale, sortiert und schneidet auf limit zu.
// Keyword-Scores werden auf [0,1] normiert, damit sie mit den
// Cosine-Scores vergleichbar sind; Gleichstände entscheidet erst der
// Keyword-Score, dann die Aktualität.
func rank(merged map[uint]*scored, mode string, terms []string, limit int) []SearchResult {
	entries := make([]*scored, 0, len(merged))
	var maxKeyword float64
	for _, e := range merged {
		entries = append(entries, e)
		if e.keyword > maxKeyword {
			maxKeyword = e.keyword
		}
	}

	combined := func(e *scored) float64 {
		kw := e.keyword
		if maxKeyword > 0 {
			kw = e.keyword / maxKeyword
		}
		switch mode {
		case ModeKeyword:
			return kw
		case ModeSemantic:
			return e.semantic
		default:
			return kw + e.semantic
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		si, sj := combined(entries[i]), combined(entries[j])
		if si != sj {
			return si > sj
		}
		if entries[i].keyword != entries[j].keyword {
			return entries[i].keyword > entries[j].keyword
		}
		return entries[i].article.UpdatedAt.After(entries[j].article.UpdatedAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, SearchResult{
			Source:  e.article.Source,
			Slug:    e.article.Slug,
			Title:   e.article.Title,
			Snippet: snippet(&e.article, terms, mode),
			Score:   combined(e),
		})
	}
	return results
}

// snippet schneidet ein Fenster um den ersten Keyword-Treffer aus; im
// rein semantischen Modus (oder ohne Treffer im Text) den Textanfang.
func snippet(a *models.Article, terms []string, mode string) string {
	text := a.ExtractedText
	if text == "" {
		return ""
	}

	if mode != ModeSemantic {
		lower := strings.ToLower(text)
		for _, term := range terms {
			idx := strings.Index(lower, term)
			if idx < 0 {
				continue
			}
			start := runeFloor(text, idx-snippetRadius)
			end := runeCeil(text, idx+len(term)+snippetRadius)
			out := text[start:end]
			if start > 0 {
				out = "…" + out
			}
			if end < len(text) {
				out += "…"
			}
			return out
		}
	}

	if len(text) > 2*snippetRadius {
		return text[:runeCeil(text, 2*snippetRadius)] + "…"
	}
	return text
}

// runeFloor schiebt einen Byte-Offset zurück auf die nächste
// Runen-Grenze, damit Schnitte nie mitten in einem UTF-8-Zeichen landen.
func runeFloor(s string, i int) int {
	if i < 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil schiebt einen Byte-Offset vor auf die nächste Runen-Grenze.
func runeCeil(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
