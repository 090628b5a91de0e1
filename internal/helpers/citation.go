package helpers

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/simplexity/models"
)

// DefaultMaxQuestions caps the number of follow-up questions kept from a model reply.
const DefaultMaxQuestions = 5

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCitations finds every [N] marker in text and returns one citation per
// distinct N in order of first appearance. Markers are compared by value, so
// [01] and [1] are the same N. A marker whose N-1 is not a valid
// index into sources points at source 0; its literal text is kept either way.
func ExtractCitations(text string, sources []models.SearchResult) []models.Citation {
	matches := citationMarker.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []models.Citation{}
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]models.Citation, 0, len(matches))
	for _, m := range matches {
		key := strings.TrimLeft(m[1], "0")
		if key == "" {
			key = "0"
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		n, err := strconv.Atoi(key)
		if err != nil {
			// too many digits for int; saturate, it can never be in range
			n = math.MaxInt
		}
		idx := n - 1
		if idx < 0 || idx >= len(sources) {
			idx = 0
		}
		out = append(out, models.Citation{Number: n, SourceIndex: idx, Text: m[0]})
	}
	return out
}

// FormatSource renders one numbered source block for a prompt:
//
//	[n] Title
//	Snippet
//	Source: link
func FormatSource(index int, s models.SearchResult) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strconv.Itoa(index + 1))
	b.WriteString("] ")
	b.WriteString(strings.TrimSpace(s.Title))
	b.WriteString("\n")
	b.WriteString(collapseWhitespace(s.Snippet))
	b.WriteString("\nSource: ")
	b.WriteString(strings.TrimSpace(s.Link))
	return b.String()
}

// FormatSources renders all sources separated by blank lines.
func FormatSources(sources []models.SearchResult) string {
	if len(sources) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sources))
	for i, s := range sources {
		parts = append(parts, FormatSource(i, s))
	}
	return strings.Join(parts, "\n\n")
}

// FilterQuestions keeps trimmed, non-empty lines ending in '?' up to max entries.
// max <= 0 falls back to DefaultMaxQuestions.
func FilterQuestions(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxQuestions
	}
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(line)
		if q == "" || !strings.HasSuffix(q, "?") {
			continue
		}
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
