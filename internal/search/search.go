// Package search looks up knowledge-base snippets that enrich LLM prompts.
package search

import (
	"context"
	"fmt"
	"strings"

	"triage/internal/utils"
)

const (
	// MaxQueryLength bounds the search query, in characters
	MaxQueryLength = 200
	// MaxContextHits is how many hits are rendered into a prompt
	MaxContextHits = 5
	// MaxHitLength bounds each rendered hit, in characters
	MaxHitLength = 1000
)

// Chunk is one text fragment of a hit
type Chunk struct {
	Text string `json:"text"`
}

// Hit is one ranked document
type Hit struct {
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
	FileID   string  `json:"file_id"`
	Content  []Chunk `json:"content"`
}

// Text joins the hit's chunks
func (h Hit) Text() string {
	parts := make([]string, 0, len(h.Content))
	for _, c := range h.Content {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Result is a search response. Data may be empty.
type Result struct {
	Data []Hit `json:"data"`
}

// Searcher performs a similarity lookup in a named index
type Searcher interface {
	Search(ctx context.Context, indexID, query string, topK int) (*Result, error)
}

// BuildQuery joins the non-empty parts and truncates to MaxQueryLength characters
func BuildQuery(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return utils.Truncate(strings.Join(kept, " "), MaxQueryLength)
}

// FormatContext renders up to MaxContextHits hits for a prompt. Each hit shows
// its file name, content truncated to MaxHitLength characters and score.
func FormatContext(r *Result) string {
	if r == nil || len(r.Data) == 0 {
		return ""
	}

	var b strings.Builder
	for i, hit := range r.Data {
		if i == MaxContextHits {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := hit.Filename
		if name == "" {
			name = hit.FileID
		}
		fmt.Fprintf(&b, "Документ %d: %s\n", i+1, name)
		fmt.Fprintf(&b, "Содержание: %s\n", utils.Truncate(hit.Text(), MaxHitLength))
		fmt.Fprintf(&b, "Релевантность: %.4f", hit.Score)
	}
	return b.String()
}

// Meta summarises a search for generation metadata
func Meta(indexID, query string, r *Result, err error) map[string]any {
	m := map[string]any{
		"index_id": indexID,
		"query":    query,
	}
	if err != nil {
		m["error"] = err.Error()
		m["results_count"] = 0
		return m
	}
	count := 0
	files := []string{}
	if r != nil {
		count = len(r.Data)
		for i, h := range r.Data {
			if i == MaxContextHits {
				break
			}
			files = append(files, h.Filename)
		}
	}
	m["results_count"] = count
	m["files"] = files
	return m
}
