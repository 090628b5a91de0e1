package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mohammad-safakhou/simplexity/models"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText reduces provider markup (highlight tags, entities, stray scripts)
// to display text with runs of whitespace collapsed to one space.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = html.UnescapeString(StrictHTMLPolicy().Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// CleanResult returns r with title and snippet reduced to plain text.
// Results without a usable title fall back to the link.
func CleanResult(r models.SearchResult) models.SearchResult {
	r.Title = PlainText(r.Title)
	r.Snippet = PlainText(r.Snippet)
	if r.Title == "" {
		r.Title = strings.TrimSpace(r.Link)
	}
	return r
}
