package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEnabled(t *testing.T) {
	t.Parallel()
	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatalf("nil client must not be enabled")
	}
	if NewClient("", "", "model", 4, time.Second).Enabled() {
		t.Fatalf("client without base URL must not be enabled")
	}
	if !NewClient("http://localhost:1", "", "model", 4, time.Second).Enabled() {
		t.Fatalf("configured client must be enabled")
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "test-model" || req.Input != "hello" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{0.1, 0.2, 0.3, 0.4}}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", "test-model", 4, time.Second)
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embedding: %v", err)
	}
	if len(vec) != 4 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{0.1, 0.2}}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "test-model", 4, time.Second)
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestEmbedServerError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "test-model", 4, time.Second)
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	t.Parallel()
	c := NewClient("http://localhost:1", "", "test-model", 4, time.Second)
	if _, err := c.Embed(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
