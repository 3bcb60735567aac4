package models

import "time"

// Redirect bildet (source, from_slug) auf to_slug ab. Es wird genau ein
// Hop aufgelöst; Zyklen werden erkannt und als unaufgelöst behandelt.
type Redirect struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Source   string `json:"source" gorm:"uniqueIndex:idx_redirects_source_from;size:32;not null"`
	FromSlug string `json:"from_slug" gorm:"uniqueIndex:idx_redirects_source_from;size:512;not null"`
	ToSlug   string `json:"to_slug" gorm:"size:512;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (Redirect) TableName() string {
	return "redirects"
}
