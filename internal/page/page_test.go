package page

import (
	"strings"
	"testing"
	"time"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Guide</title>
  <meta property="article:modified_time" content="2026-01-15T10:00:00Z">
  <style>body { color: red; }</style>
</head>
<body>
  <script>console.log("tracking");</script>
  <article>
    <h1>Welcome</h1>
    <p>First paragraph.</p>
  </article>
  <div id="sidebar">Links</div>
</body>
</html>`

func parseSample(t *testing.T) *Document {
	t.Helper()
	d, err := Parse([]byte(sampleHTML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

func TestText_StripsScriptAndStyle(t *testing.T) {
	text := parseSample(t).Text()
	if strings.Contains(text, "console.log") {
		t.Error("script content leaked into extracted text")
	}
	if strings.Contains(text, "color: red") {
		t.Error("style content leaked into extracted text")
	}
	for _, want := range []string{"Welcome", "First paragraph.", "Links"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q", want)
		}
	}
}

func TestMatches(t *testing.T) {
	d := parseSample(t)

	for sel, want := range map[string]bool{
		"article":      true,
		"div#sidebar":  true,
		"article > h1": true,
		"main":         false,
		"div.body":     false,
	} {
		got, err := d.Matches(sel)
		if err != nil {
			t.Fatalf("Matches(%q): %v", sel, err)
		}
		if got != want {
			t.Errorf("Matches(%q) = %v, want %v", sel, got, want)
		}
	}
}

func TestMatches_InvalidSelector(t *testing.T) {
	d := parseSample(t)
	if _, err := d.Matches("div[[["); err == nil {
		t.Error("expected error for unparseable selector, got nil")
	}
}

func TestLastModified_MetaProperty(t *testing.T) {
	d := parseSample(t)
	got, ok := d.LastModified()
	if !ok {
		t.Fatal("LastModified: no signal found, want one")
	}
	want := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("LastModified = %v, want %v", got, want)
	}
}

func TestLastModified_NameFallback(t *testing.T) {
	d, err := Parse([]byte(`<html><head><meta name="last-modified" content="2025-06-01"></head></html>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, ok := d.LastModified()
	if !ok {
		t.Fatal("LastModified: meta name fallback not found")
	}
	if got.Year() != 2025 || got.Month() != time.June {
		t.Errorf("LastModified = %v, want June 2025", got)
	}
}

func TestLastModified_AbsentOrUnparseable(t *testing.T) {
	for _, markup := range []string{
		`<html><body><p>no metadata</p></body></html>`,
		`<html><head><meta name="last-modified" content="sometime recently"></head></html>`,
	} {
		d, err := Parse([]byte(markup))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if _, ok := d.LastModified(); ok {
			t.Errorf("LastModified: got a signal from %q, want none", markup)
		}
	}
}
