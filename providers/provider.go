package providers

import (
	"context"
	"errors"
)

// ErrEncoding markiert kaputte/unerwartete Upstream-Inhalte. Die
// betroffene Seite wird übersprungen, der Lauf geht weiter.
var ErrEncoding = errors.New("malformed upstream content")

// PageRef ist ein Eintrag aus dem Seiten-Listing eines Upstreams.
type PageRef struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// PageContent ist der volle Inhalt einer Upstream-Seite.
type PageContent struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// Provider ist das Interface, das jeder Upstream-Anschluss implementieren
// muss: Seiten ab einem Resume-Punkt auflisten und einzelne Seiten laden.
type Provider interface {
	// Name gibt den eindeutigen Quellen-Namen zurück (z.B. "mathwiki").
	Name() string

	// ListPages listet bis zu limit Seiten, alphabetisch ab dem Slug
	// from (exklusiv). Ein leeres from startet am Anfang.
	ListPages(ctx context.Context, from string, limit int) ([]PageRef, error)

	// FetchPage lädt den gerenderten Inhalt einer Seite.
	FetchPage(ctx context.Context, slug string) (*PageContent, error)
}
