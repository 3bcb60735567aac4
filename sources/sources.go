package sources

import "fmt"

// Source identifiziert ein Upstream-Wiki. Die Menge ist geschlossen:
// neue Quellen erfordern einen Eintrag in der Registry unten.
type Source string

const (
	GameWiki     Source = "gamewiki"
	MathWiki     Source = "mathwiki"
	Encyclopedia Source = "encyclopedia"
	Machinery    Source = "machinery"
	ArtWiki      Source = "artwiki"
)

// Info bündelt das per-Source-Verhalten: Label, Upstream-Basis-URL,
// Pfad-Template für Artikel-Links und die Standard-Lizenz der Inhalte.
type Info struct {
	Label        string
	BaseURL      string
	PathTemplate string // fmt-Template, erwartet den Slug
	License      string
}

var registry = map[Source]Info{
	GameWiki: {
		Label:        "Game Wiki",
		BaseURL:      "https://wiki.gamepedia.example",
		PathTemplate: "/wiki/%s",
		License:      "CC BY-SA 3.0",
	},
	MathWiki: {
		Label:        "Mathematics Wiki",
		BaseURL:      "https://math.wikia.example",
		PathTemplate: "/wiki/%s",
		License:      "CC BY-SA 4.0",
	},
	Encyclopedia: {
		Label:        "Free Encyclopedia",
		BaseURL:      "https://encyclopedia.example",
		PathTemplate: "/articles/%s",
		License:      "CC BY-SA 4.0",
	},
	Machinery: {
		Label:        "Machinery Archive",
		BaseURL:      "https://machines.archive.example",
		PathTemplate: "/entry/%s",
		License:      "Public Domain",
	},
	ArtWiki: {
		Label:        "Art Encyclopedia",
		BaseURL:      "https://art.wikia.example",
		PathTemplate: "/wiki/%s",
		License:      "CC BY-NC 4.0",
	},
}

// All gibt alle bekannten Quellen in stabiler Reihenfolge zurück.
func All() []Source {
	return []Source{GameWiki, MathWiki, Encyclopedia, Machinery, ArtWiki}
}

// Parse validiert einen Quellen-Namen aus einer Anfrage.
func Parse(s string) (Source, error) {
	src := Source(s)
	if _, ok := registry[src]; !ok {
		return "", fmt.Errorf("unknown source %q", s)
	}
	return src, nil
}

// Valid meldet, ob src in der Registry enthalten ist.
func Valid(src Source) bool {
	_, ok := registry[src]
	return ok
}

// Get liefert die Registry-Daten einer Quelle. Panict bei unbekannter
// Quelle, da alle Aufrufer vorher über Parse gehen.
func Get(src Source) Info {
	info, ok := registry[src]
	if !ok {
		panic(fmt.Sprintf("sources: unknown source %q", src))
	}
	return info
}

// UpstreamURL baut die kanonische Upstream-URL eines Artikels.
func UpstreamURL(src Source, slug string) string {
	info := Get(src)
	return info.BaseURL + fmt.Sprintf(info.PathTemplate, slug)
}
