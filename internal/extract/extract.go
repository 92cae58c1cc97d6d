// Package extract pulls an article's plain text out of its HTML page.
//
// Strategies are tried in priority order, each gated on a minimum accepted
// length so a weak signal falls through to the next:
//
//  1. articleBody values from ld+json structured data blocks
//  2. the first <article>, else <main>, else <body> element, tag-stripped
//  3. the whole raw page, tag-stripped
package extract

import (
	"encoding/json"
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent means no strategy produced any text. An empty body is never
// persisted as a successful extraction.
var ErrNoContent = errors.New("no extractable article text")

const (
	minStructuredLen = 20
	minContainerLen  = 180
)

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	noscriptRe   = regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`)
	brRe         = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseRe = regexp.MustCompile(`(?i)</(?:p|div|section|article|main|li|ul|ol|h[1-6]|blockquote|table|tr|pre|header|footer|figure|figcaption)\s*>`)
	anyTagRe     = regexp.MustCompile(`<[^>]*>`)
	lineSpaceRe  = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// FromHTML extracts the article's plain text from a page.
func FromHTML(pageHTML string) (string, error) {
	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))

	if docErr == nil {
		if text := fromStructuredData(doc); utf8.RuneCountInString(text) >= minStructuredLen {
			return text, nil
		}
		if text := fromContainer(doc); utf8.RuneCountInString(text) >= minContainerLen {
			return text, nil
		}
	}

	// Last resort: strip the entire raw page.
	text := htmlToText(pageHTML)
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// fromStructuredData collects every articleBody string found anywhere inside
// the page's ld+json blocks (shapes vary: array-wrapped, nested @graph) and
// returns the longest candidate.
func fromStructuredData(doc *goquery.Document) string {
	var best string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return
		}
		collectArticleBodies(parsed, &best)
	})
	return strings.TrimSpace(best)
}

func collectArticleBodies(node any, best *string) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if key == "articleBody" {
				if body, ok := child.(string); ok && len(body) > len(*best) {
					*best = body
				}
				continue
			}
			collectArticleBodies(child, best)
		}
	case []any:
		for _, child := range v {
			collectArticleBodies(child, best)
		}
	}
}

// fromContainer locates the most article-like container and strips it to
// text. Selector priority follows how pages actually mark up articles.
func fromContainer(doc *goquery.Document) string {
	for _, selector := range []string{"article", "main", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		fragment, err := goquery.OuterHtml(sel)
		if err != nil {
			continue
		}
		return htmlToText(fragment)
	}
	return ""
}

// htmlToText converts an HTML fragment to plain text: script/style/noscript
// blocks removed, block boundaries and <br> become newlines, remaining tags
// stripped, entities decoded, whitespace collapsed.
func htmlToText(fragment string) string {
	fragment = scriptRe.ReplaceAllString(fragment, " ")
	fragment = styleRe.ReplaceAllString(fragment, " ")
	fragment = noscriptRe.ReplaceAllString(fragment, " ")
	fragment = brRe.ReplaceAllString(fragment, "\n")
	fragment = blockCloseRe.ReplaceAllString(fragment, "\n")
	fragment = anyTagRe.ReplaceAllString(fragment, " ")
	fragment = html.UnescapeString(fragment)

	lines := strings.Split(fragment, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(lineSpaceRe.ReplaceAllString(line, " "))
	}
	text := strings.Join(lines, "\n")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
