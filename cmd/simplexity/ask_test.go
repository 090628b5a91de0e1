package main

import (
	"bytes"
	"testing"

	"github.com/mohammad-safakhou/simplexity/models"
	"github.com/stretchr/testify/assert"
)

func TestPrinterStreamsTextThenSummary(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}

	p.OnSources("c1", []models.SearchResult{{Title: "Go", Link: "https://go.dev"}})
	p.OnText("c1", "Go is ")
	p.OnText("c1", "fast [1].")
	p.OnSuggestions("c1", []string{"Why is Go fast?"})
	p.summary(models.Message{Citations: []models.Citation{{Number: 1, SourceIndex: 0, Text: "[1]"}}})

	out := buf.String()
	assert.Contains(t, out, "Go is fast [1].\n")
	assert.Contains(t, out, "[1] Go (go.dev)\n      https://go.dev")
	assert.Contains(t, out, "[1] -> source 1")
	assert.Contains(t, out, "- Why is Go fast?")
}

func TestPrinterOmitsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}
	p.summary(models.Message{})
	assert.Equal(t, "\n", buf.String())
}
