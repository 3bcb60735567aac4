package services

import "testing"

func TestExtractTextStripsChrome(t *testing.T) {
	t.Parallel()
	html := `<html><head><title>Page</title><style>body{}</style></head>
	<body>
	<nav>Main menu</nav>
	<h1>Steam Engine</h1>
	<p>A   steam engine converts
	heat into work.</p>
	<script>alert("x")</script>
	<footer>All rights reserved</footer>
	</body></html>`

	text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	want := "Steam Engine A steam engine converts heat into work."
	if text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestExtractTextFragment(t *testing.T) {
	t.Parallel()
	text, err := ExtractText("<p>just a fragment</p>")
	if err != nil {
		t.Fatalf("extracting: %v", err)
	}
	if text != "just a fragment" {
		t.Fatalf("got %q", text)
	}
}

func TestExtractTitle(t *testing.T) {
	t.Parallel()
	if got := ExtractTitle("<html><head><title>Fallback</title></head><body><h1> Primary </h1></body></html>"); got != "Primary" {
		t.Fatalf("got %q, want h1 to win", got)
	}
	if got := ExtractTitle("<html><head><title>Fallback</title></head><body></body></html>"); got != "Fallback" {
		t.Fatalf("got %q, want title fallback", got)
	}
	if got := ExtractTitle("<p>nothing</p>"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
