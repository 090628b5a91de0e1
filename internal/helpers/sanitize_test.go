package helpers

import (
	"testing"

	"github.com/mohammad-safakhou/simplexity/models"
)

func TestPlainText_RemovesTagsAndScripts(t *testing.T) {
	input := `<p>Hello <strong>world</strong><script>alert('x')</script></p>`
	if got, want := PlainText(input), "Hello world"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPlainText_DecodesEntities(t *testing.T) {
	input := "Go &amp; Rust:   <b>what&#39;s</b>\n new"
	if got, want := PlainText(input), "Go & Rust: what's new"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCleanResult_FallsBackToLink(t *testing.T) {
	got := CleanResult(models.SearchResult{Title: "<b></b>", Link: "https://go.dev", Snippet: "<em>fast</em> builds", Position: 2})
	want := models.SearchResult{Title: "https://go.dev", Link: "https://go.dev", Snippet: "fast builds", Position: 2}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
