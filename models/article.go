package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Mögliche Werte für Article.Status.
const (
	StatusSynced    = "synced"     // entspricht dem letzten bekannten Upstream-Stand
	StatusDiverged  = "diverged"   // Upstream hat sich geändert, noch nicht resynct
	StatusLocalOnly = "local_only" // lokal editiert, weicht bewusst vom Upstream ab
)

// Article repräsentiert eine Wiki-Seite einer Upstream-Quelle.
// (source, slug) ist global eindeutig; Artikel werden nie hart gelöscht,
// überholte Inhalte bleiben als Revisionen erhalten.
type Article struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Source string `json:"source" gorm:"uniqueIndex:idx_articles_source_slug;size:32;not null"`
	Slug   string `json:"slug" gorm:"uniqueIndex:idx_articles_source_slug;size:512;not null"`
	Title  string `json:"title" gorm:"index"`

	// Klartext-Extrakt für den Keyword-Index.
	ExtractedText string `json:"extracted_text,omitempty" gorm:"type:text"`

	// Blob-Referenzen (Schlüssel im Blob-Store, nicht der Inhalt selbst).
	RenderedHTMLKey string `json:"rendered_html_key,omitempty"`
	RawContentKey   string `json:"raw_content_key,omitempty"`

	UpstreamURL  string `json:"upstream_url,omitempty"`
	UpstreamHash string `json:"upstream_hash,omitempty" gorm:"index"`

	Status  string `json:"status" gorm:"index;default:'synced'"`
	License string `json:"license,omitempty"`

	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`

	// Embedding-Vektor (JSON-kodiertes []float32), null bis berechnet.
	Embedding  datatypes.JSON `json:"-" gorm:"type:jsonb"`
	SyncedAt   *time.Time     `json:"synced_at,omitempty"`
	EmbeddedAt *time.Time     `json:"embedded_at,omitempty"`

	// Zeitpunkt des letzten Cross-Referenz-Detektor-Laufs.
	CrossRefAt *time.Time `json:"cross_ref_at,omitempty" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Article) TableName() string {
	return "articles"
}

// EmbeddingVector dekodiert den gespeicherten Vektor. Gibt nil zurück,
// solange noch kein Embedding berechnet wurde.
func (a *Article) EmbeddingVector() []float32 {
	if len(a.Embedding) == 0 {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(a.Embedding, &vec); err != nil {
		return nil
	}
	return vec
}

// SetEmbeddingVector kodiert und speichert den Vektor samt Zeitstempel.
func (a *Article) SetEmbeddingVector(vec []float32, at time.Time) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	a.Embedding = raw
	a.EmbeddedAt = &at
	return nil
}
