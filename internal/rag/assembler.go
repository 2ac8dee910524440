package rag

import (
	"fmt"
	"strings"

	"bioexplorer/internal/models"
)

// Assemble renders ranked results into the numbered context block and the
// deduplicated citation list.
//
// Blocks are numbered by rank. Sources are keyed by url and numbered in order
// of first appearance, so "[Source 3]" in the context can map to "Source 2"
// in the citation list when an earlier url repeats.
func Assemble(results []models.RetrievalResult) (string, []models.Source) {
	var b strings.Builder
	sources := make([]models.Source, 0, len(results))
	seen := make(map[string]struct{}, len(results))

	for i, r := range results {
		title := orDefault(r.Chunk.Metadata.Title, models.UnknownTitle)
		url := orDefault(r.Chunk.Metadata.URL, models.NoURL)

		fmt.Fprintf(&b, models.ContextBlockTemplate, i+1, title, url, r.Chunk.Content)

		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		sources = append(sources, models.Source{
			ID:    fmt.Sprintf(models.SourceLabelFormat, len(sources)+1),
			Title: title,
			URL:   url,
		})
	}
	return b.String(), sources
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
