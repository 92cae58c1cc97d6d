package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"news_ingest/internal/fetch"
)

// Cache memoizes successful extractions by article URL for a bounded TTL.
// Writes go through unconditionally, so a re-extraction always replaces the
// cached text. Without a cache every run re-fetches every article page.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// NewCache returns nil when ttl is zero, which disables caching.
func NewCache(size int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		return nil
	}
	if size <= 0 {
		size = 1024
	}
	return &Cache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *Cache) Get(url string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(url)
}

func (c *Cache) Put(url, text string) {
	if c == nil {
		return
	}
	c.lru.Add(url, text)
}

// Extractor fetches an article page and extracts its text.
type Extractor struct {
	client *fetch.Client
	cache  *Cache
}

func NewExtractor(client *fetch.Client, cache *Cache) *Extractor {
	return &Extractor{client: client, cache: cache}
}

// FetchFullText retrieves url and extracts the article's plain text. It
// fails when the page cannot be fetched or yields no usable text.
func (e *Extractor) FetchFullText(ctx context.Context, url string) (string, error) {
	if text, ok := e.cache.Get(url); ok {
		return text, nil
	}

	body, err := e.client.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch article page: %w", err)
	}

	text, err := FromHTML(string(body))
	if err != nil {
		return "", err
	}

	e.cache.Put(url, text)
	return text, nil
}
