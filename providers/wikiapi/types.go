package wikiapi

// listResponse ist die Antwort des Seiten-Listings.
type listResponse struct {
	Pages []pageEntry `json:"pages"`
}

type pageEntry struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// pageResponse ist die Antwort des Einzelseiten-Endpoints.
type pageResponse struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}
