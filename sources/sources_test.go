package sources

import "testing"

func TestParseKnownSources(t *testing.T) {
	t.Parallel()
	for _, src := range All() {
		parsed, err := Parse(string(src))
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if parsed != src {
			t.Fatalf("Parse(%q) = %q", src, parsed)
		}
		if !Valid(src) {
			t.Fatalf("Valid(%q) = false", src)
		}
	}
}

func TestParseUnknownSource(t *testing.T) {
	t.Parallel()
	if _, err := Parse("wikipedia"); err == nil {
		t.Fatalf("unknown source must not parse")
	}
	if Valid(Source("wikipedia")) {
		t.Fatalf("unknown source must not be valid")
	}
}

func TestRegistryComplete(t *testing.T) {
	t.Parallel()
	if len(All()) != 5 {
		t.Fatalf("got %d sources, want 5", len(All()))
	}
	for _, src := range All() {
		info := Get(src)
		if info.Label == "" || info.BaseURL == "" || info.PathTemplate == "" || info.License == "" {
			t.Fatalf("incomplete registry entry for %q: %+v", src, info)
		}
	}
}

func TestUpstreamURL(t *testing.T) {
	t.Parallel()
	got := UpstreamURL(Machinery, "steam-engine")
	want := "https://machines.archive.example/entry/steam-engine"
	if got != want {
		t.Fatalf("UpstreamURL = %q, want %q", got, want)
	}
}

func TestGetPanicsOnUnknownSource(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatalf("Get with unknown source must panic")
		}
	}()
	Get(Source("nope"))
}
