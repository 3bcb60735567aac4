package services

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText reduziert gerendertes Upstream-HTML auf den Klartext für
// den Keyword-Index. Skripte, Styles und Navigations-Reste fliegen raus,
// Whitespace wird kollabiert.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, noscript").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return collapseWhitespace(root.Text()), nil
}

// ExtractTitle holt den Seitentitel aus dem HTML (h1 vor <title>), als
// Fallback, wenn das Upstream-Listing keinen Titel mitliefert.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if h1 := collapseWhitespace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return collapseWhitespace(doc.Find("title").First().Text())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
