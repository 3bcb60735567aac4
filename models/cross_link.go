package models

import "time"

// Mögliche Werte für CrossLink.Relationship.
const (
	RelSameTopic = "same_topic"
	RelRelated   = "related"
	RelSeeAlso   = "see_also"
)

// CrossLink modelliert eine gerichtete Kante zwischen Artikeln
// verschiedener Quellen zum selben Thema. Pro geordnetem Paar existiert
// höchstens eine Kante; automatisch erkannte Links dürfen von frischen
// Detektor-Läufen ersetzt werden, kuratierte nie.
type CrossLink struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SourceArticleID uint `json:"source_article_id" gorm:"uniqueIndex:idx_cross_links_pair;not null"`
	TargetArticleID uint `json:"target_article_id" gorm:"uniqueIndex:idx_cross_links_pair;not null"`

	Relationship string  `json:"relationship" gorm:"size:32;default:'same_topic'"`
	Confidence   float64 `json:"confidence"`
	AutoDetected bool    `json:"auto_detected" gorm:"default:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (CrossLink) TableName() string {
	return "cross_links"
}
