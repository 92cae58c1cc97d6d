// Package feed turns RSS 2.0 or Atom XML into normalized candidate articles.
package feed

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"news_ingest/internal/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Parser parses feed XML into candidate articles. Safe for concurrent use.
type Parser struct {
	inner  *gofeed.Parser
	policy *bluemonday.Policy
}

func NewParser() *Parser {
	return &Parser{
		inner:  gofeed.NewParser(),
		policy: bluemonday.StrictPolicy(),
	}
}

// Parse decodes RSS or Atom bytes. Entries missing a title or link are
// dropped; a well-formed feed with zero usable entries is not an error.
func (p *Parser) Parse(data []byte) ([]domain.CandidateArticle, error) {
	parsed, err := p.inner.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	candidates := make([]domain.CandidateArticle, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := NormalizeURL(item.Link)
		title := p.cleanText(item.Title)
		if link == "" || title == "" {
			continue
		}

		externalID := strings.TrimSpace(item.GUID)
		if externalID == "" {
			externalID = link
		}

		candidates = append(candidates, domain.CandidateArticle{
			ExternalID:   externalID,
			CanonicalURL: link,
			Title:        title,
			Summary:      p.cleanText(item.Description),
			Categories:   dedupeCategories(item.Categories),
			Author:       authorName(item),
			PublishedAt:  publishedAt(item),
		})
	}

	return candidates, nil
}

// cleanText strips HTML (script/style content is skipped entirely), decodes
// entities and collapses whitespace.
func (p *Parser) cleanText(s string) string {
	s = p.policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// dedupeCategories removes case-insensitive duplicates while preserving
// first-seen casing and order.
func dedupeCategories(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func authorName(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	if item.Author != nil && item.Author.Name != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	return ""
}

// publishedAt returns the first populated timestamp, published before
// updated. Unparsable dates were already dropped by gofeed and simply yield
// no timestamp.
func publishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := *item.PublishedParsed
		return &t
	}
	if item.UpdatedParsed != nil {
		t := *item.UpdatedParsed
		return &t
	}
	return nil
}
