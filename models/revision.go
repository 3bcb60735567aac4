package models

import "time"

// Revision ist ein append-only Log-Eintrag pro Artikel. Einträge werden
// nie mutiert oder gelöscht; jede Inhaltsänderung (Sync oder genehmigter
// Edit) erzeugt genau einen neuen Eintrag.
type Revision struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ArticleID   uint   `json:"article_id" gorm:"index;not null"`
	ContentHash string `json:"content_hash" gorm:"size:64;not null"`
	Editor      string `json:"editor"`
	Comment     string `json:"comment" gorm:"type:text"`
}

// TableName gibt explizit den Tabellennamen an.
func (Revision) TableName() string {
	return "revisions"
}
