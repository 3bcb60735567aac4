package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"crosswiki/config"
	"crosswiki/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CrossRefService findet Artikel verschiedener Quellen zum selben Thema
// über Trigramm-Ähnlichkeit der Titel und legt sie als automatisch
// erkannte Cross-Links ab. Kuratierte Links für dasselbe Paar werden
// nie überschrieben.
type CrossRefService struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewCrossRefService erstellt eine neue Instanz des CrossRefService.
func NewCrossRefService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *CrossRefService {
	return &CrossRefService{Config: cfg, DB: db, Logger: logger}
}

// titleRef ist die schlanke Projektion für den Kandidaten-Vergleich.
type titleRef struct {
	ID     uint
	Source string
	Title  string
}

// Run verarbeitet einen Batch von Artikeln ohne frischen Detektor-Lauf
// und gibt die Anzahl neu geschriebener Links zurück.
func (c *CrossRefService) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-c.Config.CrossRefMaxAge)

	var pending []titleRef
	err := c.DB.Model(&models.Article{}).
		Select("id", "source", "title").
		Where("cross_ref_at IS NULL OR cross_ref_at < ?", cutoff).
		Order("id asc").
		Limit(c.Config.CrossRefBatchSize).
		Scan(&pending).Error
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var all []titleRef
	if err := c.DB.Model(&models.Article{}).Select("id", "source", "title").Scan(&all).Error; err != nil {
		return 0, err
	}

	written := 0
	for _, article := range pending {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		grams := trigrams(article.Title)
		for _, candidate := range all {
			// Nur Quellen-übergreifende Paare sind Cross-Links.
			if candidate.Source == article.Source {
				continue
			}
			similarity := jaccard(grams, trigrams(candidate.Title))
			if similarity < c.Config.CrossRefThreshold {
				continue
			}

			ok, err := c.upsertAutoLink(article.ID, candidate.ID, similarity)
			if err != nil {
				return written, err
			}
			if ok {
				written++
			}
		}

		if err := c.DB.Model(&models.Article{}).Where("id = ?", article.ID).
			Update("cross_ref_at", time.Now()).Error; err != nil {
			return written, err
		}
	}

	c.Logger.Info("Cross-Referenz-Lauf abgeschlossen",
		zap.Int("articles_checked", len(pending)),
		zap.Int("links_written", written))
	return written, nil
}

// upsertAutoLink schreibt einen auto-erkannten Link, sofern für das Paar
// kein kuratierter existiert.
func (c *CrossRefService) upsertAutoLink(sourceID, targetID uint, confidence float64) (bool, error) {
	var existing models.CrossLink
	err := c.DB.Where("source_article_id = ? AND target_article_id = ?", sourceID, targetID).
		First(&existing).Error
	if err == nil && !existing.AutoDetected {
		return false, nil // kuratiert, bleibt unangetastet
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	link := models.CrossLink{
		SourceArticleID: sourceID,
		TargetArticleID: targetID,
		Relationship:    models.RelSameTopic,
		Confidence:      confidence,
		AutoDetected:    true,
	}
	err = c.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_article_id"}, {Name: "target_article_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"relationship":  models.RelSameTopic,
			"confidence":    confidence,
			"auto_detected": true,
			"updated_at":    time.Now(),
		}),
	}).Create(&link).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// trigrams bildet die Trigramm-Menge eines normalisierten Titels.
func trigrams(title string) map[string]struct{} {
	normalized := strings.Join(Tokenize(title), " ")
	out := map[string]struct{}{}
	if normalized == "" {
		return out
	}

	runes := []rune("  " + normalized + " ")
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = struct{}{}
	}
	return out
}

// jaccard berechnet |A∩B| / |A∪B| über zwei Trigramm-Mengen.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for g := range a {
		if _, ok := b[g]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
