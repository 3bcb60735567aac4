package models

import "time"

// Mögliche Werte für PendingEdit.Status. pending ist der einzige
// nicht-terminale Zustand.
const (
	EditStatusPending  = "pending"
	EditStatusApproved = "approved"
	EditStatusRejected = "rejected"
)

// PendingEdit ist ein Community-Änderungsvorschlag in der Review-Queue.
// SuggestedContent ersetzt beim Approve den kompletten gerenderten
// Inhalt des Artikels.
type PendingEdit struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ArticleID        uint   `json:"article_id" gorm:"index;not null"`
	SuggestedContent string `json:"suggested_content" gorm:"type:text;not null"`
	Reason           string `json:"reason" gorm:"type:text"`

	SubmitterEmail string `json:"submitter_email,omitempty"`
	SubmitterIP    string `json:"submitter_ip" gorm:"index;size:64"`

	Status       string     `json:"status" gorm:"index;default:'pending'"`
	ReviewerNote string     `json:"reviewer_note,omitempty" gorm:"type:text"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (PendingEdit) TableName() string {
	return "pending_edits"
}

// EditorName liefert den Editor-String für die Revision beim Approve.
func (e *PendingEdit) EditorName() string {
	if e.SubmitterEmail != "" {
		return e.SubmitterEmail
	}
	return "anonymous"
}
