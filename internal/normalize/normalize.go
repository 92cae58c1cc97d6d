// Package normalize dedupes and caps the candidates of one fetch batch.
package normalize

import (
	"regexp"
	"strings"

	"news_ingest/internal/domain"
)

const (
	maxTitleLen      = 500
	maxSummaryLen    = 4000
	maxCategories    = 12
	truncationMarker = "…"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Items cleans one source's candidates: cap title/summary, drop items with
// an empty URL or title, dedupe by lowercased canonical URL (first wins),
// then cap the batch at maxItems preserving feed order. Feeds list newest
// first, so the cap is an implicit recency cut, not a sort.
func Items(candidates []domain.CandidateArticle, maxItems int) []domain.CandidateArticle {
	out := make([]domain.CandidateArticle, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		c.Title = truncate(collapse(c.Title), maxTitleLen)
		c.Summary = truncate(collapse(c.Summary), maxSummaryLen)

		if c.CanonicalURL == "" || c.Title == "" {
			continue
		}

		key := strings.ToLower(c.CanonicalURL)
		if seen[key] {
			continue
		}
		seen[key] = true

		if len(c.Categories) > maxCategories {
			c.Categories = c.Categories[:maxCategories]
		}

		out = append(out, c)
	}

	if maxItems > 0 && len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + truncationMarker
}
