package models

import "time"

// SyncState persistiert den Checkpoint eines Sync-Laufs pro Quelle, damit
// ein Abbruch oder Crash ohne Doppelverarbeitung fortgesetzt werden kann.
type SyncState struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Source string `json:"source" gorm:"uniqueIndex;size:32;not null"`

	// Zuletzt verarbeiteter Slug bzw. numerischer Offset im Upstream-Listing.
	LastSlug string `json:"last_slug"`
	Offset   int    `json:"offset"`

	PagesSeen    int        `json:"pages_seen"`
	PagesChanged int        `json:"pages_changed"`
	PagesFailed  int        `json:"pages_failed"`
	LastError    string     `json:"last_error,omitempty" gorm:"type:text"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (SyncState) TableName() string {
	return "sync_states"
}
