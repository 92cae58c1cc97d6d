package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_ingest/internal/fetch"
)

func TestNewCache_ZeroTTLDisablesCaching(t *testing.T) {
	c := NewCache(128, 0)
	assert.Nil(t, c)

	// A nil cache is safe to use and never hits.
	c.Put("https://x.com/a", "text")
	_, ok := c.Get("https://x.com/a")
	assert.False(t, ok)
}

func TestCache_PutOverwrites(t *testing.T) {
	c := NewCache(16, time.Minute)
	require.NotNil(t, c)

	c.Put("https://x.com/a", "old")
	c.Put("https://x.com/a", "new")

	got, ok := c.Get("https://x.com/a")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestFetchFullText(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `<html><body><article><p>%s</p></article></body></html>`,
			strings.Repeat("Fetched article prose with enough length to be accepted. ", 8))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: 5 * time.Second})
	e := NewExtractor(client, NewCache(16, time.Minute))

	text, err := e.FetchFullText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Fetched article prose")

	// Second call within the TTL is served from the cache.
	_, err = e.FetchFullText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestFetchFullText_NilCacheRefetches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, `<html><body><article><p>%s</p></article></body></html>`,
			strings.Repeat("Every run re-extracts when caching is disabled. ", 8))
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: 5 * time.Second})
	e := NewExtractor(client, nil)

	_, err := e.FetchFullText(context.Background(), srv.URL)
	require.NoError(t, err)
	_, err = e.FetchFullText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestFetchFullText_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: 5 * time.Second})
	e := NewExtractor(client, nil)

	_, err := e.FetchFullText(context.Background(), srv.URL)
	require.Error(t, err)

	var statusErr *fetch.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestFetchFullText_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script>nothing();</script></body></html>`)
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Config{Timeout: 5 * time.Second})
	e := NewExtractor(client, nil)

	_, err := e.FetchFullText(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoContent)
}
