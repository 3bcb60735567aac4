package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client spricht den externen Embedding-Service an. Der Dienst liefert
// für einen Text einen Vektor fester Länge; Aufrufer müssen einen
// Ausfall tolerieren (semantische Suche liefert dann keine Kandidaten).
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Dims    int
	HTTP    *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewClient erstellt einen Client mit begrenztem Timeout.
func NewClient(baseURL, apiKey, model string, dims int, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Dims:    dims,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled meldet, ob der Service konfiguriert ist.
func (c *Client) Enabled() bool {
	return c != nil && c.BaseURL != "" && c.Model != ""
}

// Embed liefert den Vektor für einen Text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.Enabled() {
		return nil, errors.New("embedding service not configured")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty input")
	}
	// Der Service akzeptiert nur begrenzte Eingaben; wir kappen hart.
	if len(text) > 8000 {
		text = text[:8000]
	}

	payload, err := json.Marshal(embedRequest{Model: c.Model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("embedding service error: %s", strings.TrimSpace(string(body)))
	}

	var res embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, errors.New("embedding service returned no vector")
	}
	vec := res.Data[0].Embedding
	if c.Dims > 0 && len(vec) != c.Dims {
		return nil, fmt.Errorf("unexpected vector length %d, want %d", len(vec), c.Dims)
	}
	return vec, nil
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if strings.HasSuffix(base, "/embeddings") {
		return base
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/embeddings"
	}
	return base + "/v1/embeddings"
}
