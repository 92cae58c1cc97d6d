package feed

import (
	"net/url"
	"strings"
)

// Tracking query parameters stripped during canonicalization. Everything
// else in the query string is part of the article's identity.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
}

// NormalizeURL strips the fragment and UTM tracking parameters from a link.
// Normalizing twice yields the same URL, and non-tracking query parameters
// keep their original order.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		pairs := strings.Split(u.RawQuery, "&")
		kept := make([]string, 0, len(pairs))
		for _, pair := range pairs {
			if pair == "" {
				continue
			}
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if trackingParams[strings.ToLower(key)] {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}

	return u.String()
}
