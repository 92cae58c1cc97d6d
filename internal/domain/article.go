package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceConfig describes one configured feed. The list is loaded from
// configuration and never mutated during a run.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	HomepageURL string `yaml:"homepage_url"`
	FeedURL     string `yaml:"feed_url"`
	Language    string `yaml:"language"`
	CountryCode string `yaml:"country_code"`
}

// CandidateArticle is one feed entry after parsing and normalization. It
// lives for a single sync call and is never persisted as-is.
type CandidateArticle struct {
	ExternalID    string
	CanonicalURL  string
	Title         string
	Summary       string
	Categories    []string
	Author        string
	PublishedAt   *time.Time
	FullText      string
	FullTextError string
}

// FullTextStatus values for StoredArticle.
const (
	FullTextNone  = "none"
	FullTextReady = "ready"
	FullTextError = "error"
)

// StoredArticle is the persistent document, one per distinct canonical URL.
type StoredArticle struct {
	ArticleID    string     `db:"article_id"`
	SourceID     string     `db:"source_id"`
	SourceName   string     `db:"source_name"`
	CanonicalURL string     `db:"canonical_url"`
	Title        string     `db:"title"`
	Summary      string     `db:"summary"`
	Categories   []string   `db:"-"`
	ExternalID   string     `db:"external_id"`
	Author       string     `db:"author"`
	PublishedAt  *time.Time `db:"published_at"`

	FeedFingerprint string `db:"feed_fingerprint"`

	FullTextStatus      string `db:"full_text_status"`
	FullTextFingerprint string `db:"full_text_fingerprint"`
	FullTextLength      int    `db:"full_text_length"`
	FullTextChunkCount  int    `db:"full_text_chunk_count"`
	FullTextErrorMsg    string `db:"full_text_error"`

	FirstSeenAt time.Time `db:"first_seen_at"`
	CreatedAt   time.Time `db:"created_at"`
	LastSeenAt  time.Time `db:"last_seen_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// TextChunk is one byte-bounded slice of an article's full text. The backend
// caps document size, so long texts are stored as a contiguous chunk set.
type TextChunk struct {
	ChunkID    string `db:"chunk_id"`
	ArticleID  string `db:"article_id"`
	ChunkIndex int    `db:"chunk_index"`
	Text       string `db:"text"`
}

// ArticleID derives the stable document identity from the canonical URL.
// Re-ingesting the same URL always maps to the same document.
func ArticleID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(canonicalURL)))
	return hex.EncodeToString(sum[:])
}

// ChunkID builds the chunk document id: articleId plus a zero-padded index
// so lexicographic order matches chunk order.
func ChunkID(articleID string, index int) string {
	return fmt.Sprintf("%s_%04d", articleID, index)
}

// FeedFingerprint hashes the feed-derived fields of a candidate. Equal
// fingerprints mean the feed reported nothing new for the item.
func FeedFingerprint(c CandidateArticle) string {
	var pub string
	if c.PublishedAt != nil {
		pub = strconv.FormatInt(c.PublishedAt.UnixMilli(), 10)
	}
	parts := []string{
		c.CanonicalURL,
		c.Title,
		c.Summary,
		pub,
		c.ExternalID,
		c.Author,
		strings.Join(c.Categories, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// TextFingerprint hashes an article's extracted full text.
func TextFingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
