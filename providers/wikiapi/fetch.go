package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"crosswiki/providers"
	"crosswiki/sources"

	"go.uber.org/zap"
)

// Fetcher implementiert das Provider-Interface über die JSON-Listing-API,
// die alle fünf Upstream-Wikis in gleicher Form anbieten. Die per-Source
// Unterschiede (Basis-URL, Label) kommen aus der Source-Registry.
type Fetcher struct {
	Source  sources.Source
	BaseURL string
	Logger  *zap.Logger
	HTTP    *http.Client
}

// NewFetcher erstellt einen Fetcher für eine Quelle. Die Basis-URL kommt
// aus der Registry und ist nur für Tests überschreibbar.
func NewFetcher(src sources.Source, logger *zap.Logger, timeout time.Duration) *Fetcher {
	return &Fetcher{
		Source:  src,
		BaseURL: sources.Get(src).BaseURL,
		Logger:  logger,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Name gibt den Namen der Quelle zurück.
func (f *Fetcher) Name() string {
	return string(f.Source)
}

// ListPages listet bis zu limit Seiten alphabetisch ab from (exklusiv).
func (f *Fetcher) ListPages(ctx context.Context, from string, limit int) ([]providers.PageRef, error) {
	listURL := fmt.Sprintf("%s/api/pages?from=%s&limit=%d", f.BaseURL, url.QueryEscape(from), limit)
	f.Logger.Debug("Rufe Seiten-Listing ab", zap.String("source", f.Name()), zap.String("url", listURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing failed: status %d", resp.StatusCode)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEncoding, err)
	}

	refs := make([]providers.PageRef, 0, len(list.Pages))
	for _, p := range list.Pages {
		if p.Slug == "" {
			continue
		}
		refs = append(refs, providers.PageRef{Slug: p.Slug, Title: p.Title})
	}
	return refs, nil
}

// FetchPage lädt den gerenderten Inhalt einer Seite.
func (f *Fetcher) FetchPage(ctx context.Context, slug string) (*providers.PageContent, error) {
	pageURL := fmt.Sprintf("%s/api/pages/%s", f.BaseURL, url.PathEscape(slug))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("page %q not found upstream", slug)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrEncoding, err)
	}
	if page.HTML == "" {
		return nil, fmt.Errorf("%w: empty html for %q", providers.ErrEncoding, slug)
	}

	return &providers.PageContent{Slug: slug, Title: page.Title, HTML: page.HTML}, nil
}
