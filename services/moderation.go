package services

import (
	"context"
	"errors"
	"time"

	"crosswiki/config"
	"crosswiki/models"
	"crosswiki/ratelimit"
	"crosswiki/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModerationService verwaltet die Pending-Edit-Queue: Submission mit
// Rate-Limits pro IP, Review-Diff und die transaktionale Anwendung
// genehmigter Edits über den ContentService.
type ModerationService struct {
	Config  *config.Config
	Content *ContentService
	Logger  *zap.Logger

	// Gleitendes Fenster über alle Submissions einer IP.
	submissions *ratelimit.Limiter

	// OnNewEdit wird nach erfolgreicher Submission aufgerufen
	// (Notification-Event, z.B. Prometheus-Zähler).
	OnNewEdit func(edit *models.PendingEdit)
}

// NewModerationService erstellt eine neue Instanz des ModerationService.
func NewModerationService(cfg *config.Config, content *ContentService, logger *zap.Logger) *ModerationService {
	return &ModerationService{
		Config:      cfg,
		Content:     content,
		Logger:      logger,
		submissions: ratelimit.New(cfg.MaxEditsPerWindow, cfg.EditSubmissionWindow),
	}
}

// SubmissionLimiter gibt den Fenster-Limiter zurück (für den Cleanup-Cron).
func (m *ModerationService) SubmissionLimiter() *ratelimit.Limiter {
	return m.submissions
}

// CreateEditInput sind die Attribute einer Edit-Submission.
type CreateEditInput struct {
	ArticleID        uint
	SuggestedContent string
	Reason           string
	SubmitterEmail   string
	SubmitterIP      string
}

// CreatePendingEdit validiert und speichert eine Submission. Abgelehnt
// wird, wenn die IP zu viele offene Edits hat oder das Fenster-Limit
// überschreitet; abgelehnte Submissions werden nicht gezählt.
func (m *ModerationService) CreatePendingEdit(input CreateEditInput) (*models.PendingEdit, error) {
	if _, err := m.Content.GetArticleByID(input.ArticleID); err != nil {
		return nil, err
	}

	var open int64
	err := m.Content.DB.Model(&models.PendingEdit{}).
		Where("submitter_ip = ? AND status = ?", input.SubmitterIP, models.EditStatusPending).
		Count(&open).Error
	if err != nil {
		return nil, err
	}
	if open >= int64(m.Config.MaxOpenEditsPerIP) {
		m.Logger.Info("Edit-Submission gedrosselt: zu viele offene Edits",
			zap.String("ip", input.SubmitterIP), zap.Int64("open", open))
		return nil, ErrRateLimited
	}

	if !m.submissions.Allow(input.SubmitterIP) {
		m.Logger.Info("Edit-Submission gedrosselt: Fenster-Limit erreicht",
			zap.String("ip", input.SubmitterIP))
		return nil, ErrRateLimited
	}

	edit := models.PendingEdit{
		ArticleID:        input.ArticleID,
		SuggestedContent: input.SuggestedContent,
		Reason:           input.Reason,
		SubmitterEmail:   input.SubmitterEmail,
		SubmitterIP:      input.SubmitterIP,
		Status:           models.EditStatusPending,
	}
	if err := m.Content.DB.Create(&edit).Error; err != nil {
		return nil, err
	}

	m.Logger.Info("Neuer Pending-Edit eingereicht",
		zap.Uint("edit_id", edit.ID),
		zap.Uint("article_id", edit.ArticleID))
	if m.OnNewEdit != nil {
		m.OnNewEdit(&edit)
	}
	return &edit, nil
}

// GetPendingEdit lädt einen Edit.
func (m *ModerationService) GetPendingEdit(id uint) (*models.PendingEdit, error) {
	var edit models.PendingEdit
	if err := m.Content.DB.First(&edit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &edit, nil
}

// ListPendingEdits listet Edits, optional nach Status gefiltert.
func (m *ModerationService) ListPendingEdits(status string, limit int) ([]models.PendingEdit, error) {
	query := m.Content.DB.Model(&models.PendingEdit{}).Order("created_at asc")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var edits []models.PendingEdit
	err := query.Find(&edits).Error
	return edits, err
}

// CountEditsByStatus liefert die Edit-Zähler für die Status-Übersicht.
func (m *ModerationService) CountEditsByStatus() (map[string]int64, error) {
	counts := map[string]int64{}
	for _, status := range []string{models.EditStatusPending, models.EditStatusApproved, models.EditStatusRejected} {
		var n int64
		if err := m.Content.DB.Model(&models.PendingEdit{}).Where("status = ?", status).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

// ApprovePendingEdit wendet einen Edit transaktional an: Blob schreiben,
// Cache invalidieren, Revision anhängen, Artikel auf local_only setzen
// und den Edit als approved markieren. Schlägt irgendein Schritt fehl,
// bleibt der Edit pending.
func (m *ModerationService) ApprovePendingEdit(ctx context.Context, id uint, note string) (*models.PendingEdit, error) {
	edit, err := m.GetPendingEdit(id)
	if err != nil {
		return nil, err
	}
	if edit.Status != models.EditStatusPending {
		return nil, ErrAlreadyReviewed
	}

	article, err := m.Content.GetArticleByID(edit.ArticleID)
	if err != nil {
		return nil, err
	}

	text, err := ExtractText(edit.SuggestedContent)
	if err != nil {
		m.Logger.Warn("Textextraktion des Vorschlags fehlgeschlagen",
			zap.Uint("edit_id", edit.ID), zap.Error(err))
		text = ""
	}

	now := time.Now()
	change := ContentChange{
		HTML:          []byte(edit.SuggestedContent),
		ExtractedText: text,
		Status:        models.StatusLocalOnly,
		Editor:        edit.EditorName(),
		Comment:       editComment(edit),
		Extra: func(tx *gorm.DB) error {
			return tx.Model(&models.PendingEdit{}).
				Where("id = ? AND status = ?", edit.ID, models.EditStatusPending).
				Updates(map[string]interface{}{
					"status":        models.EditStatusApproved,
					"reviewer_note": note,
					"reviewed_at":   now,
				}).Error
		},
	}

	if err := m.Content.ApplyContentChange(ctx, article, change); err != nil {
		m.Logger.Error("Approval fehlgeschlagen, Edit bleibt pending",
			zap.Uint("edit_id", edit.ID), zap.Error(err))
		return nil, err
	}

	edit.Status = models.EditStatusApproved
	edit.ReviewerNote = note
	edit.ReviewedAt = &now

	m.Logger.Info("Pending-Edit genehmigt",
		zap.Uint("edit_id", edit.ID),
		zap.Uint("article_id", edit.ArticleID),
		zap.String("editor", edit.EditorName()))
	return edit, nil
}

// RejectPendingEdit markiert einen Edit als rejected; keine Auswirkung
// auf Inhalte.
func (m *ModerationService) RejectPendingEdit(id uint, note string) (*models.PendingEdit, error) {
	edit, err := m.GetPendingEdit(id)
	if err != nil {
		return nil, err
	}
	if edit.Status != models.EditStatusPending {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now()
	err = m.Content.DB.Model(edit).Updates(map[string]interface{}{
		"status":        models.EditStatusRejected,
		"reviewer_note": note,
		"reviewed_at":   now,
	}).Error
	if err != nil {
		return nil, err
	}

	edit.Status = models.EditStatusRejected
	edit.ReviewerNote = note
	edit.ReviewedAt = &now
	return edit, nil
}

// Diff berechnet den Review-Diff zwischen aktuellem Inhalt und Vorschlag.
func (m *ModerationService) Diff(ctx context.Context, id uint) ([]DiffSpan, error) {
	edit, err := m.GetPendingEdit(id)
	if err != nil {
		return nil, err
	}
	article, err := m.Content.GetArticleByID(edit.ArticleID)
	if err != nil {
		return nil, err
	}

	var current []byte
	if article.RenderedHTMLKey != "" {
		current, err = m.Content.Blobs.Get(ctx, article.RenderedHTMLKey)
		if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			return nil, err
		}
	}
	return DiffSpans(string(current), edit.SuggestedContent), nil
}

func editComment(edit *models.PendingEdit) string {
	if edit.Reason != "" {
		return "community edit: " + edit.Reason
	}
	return "community edit"
}
