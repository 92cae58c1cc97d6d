package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"news_ingest/internal/domain"
)

// FeedFetcher retrieves raw feed bytes. Non-2xx responses surface as
// *fetch.StatusError so the orchestrator can report the HTTP status.
type FeedFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// FeedParser turns RSS/Atom bytes into candidate articles. A parseable feed
// with zero usable entries returns an empty slice and no error.
type FeedParser interface {
	Parse(data []byte) ([]domain.CandidateArticle, error)
}

// TextExtractor fetches an article page and extracts its plain text.
type TextExtractor interface {
	FetchFullText(ctx context.Context, url string) (string, error)
}

// ArticleStore is the persistence contract: fingerprinted upserts plus the
// per-source and per-run audit records.
type ArticleStore interface {
	UpsertArticles(ctx context.Context, source domain.SourceConfig, items []domain.CandidateArticle) (domain.UpsertResult, error)
	RecordSourceSyncState(ctx context.Context, state domain.SourceSyncState) error
	RecordSyncRun(ctx context.Context, rec domain.SyncRunRecord) error
}

// Publisher emits per-article change events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, change domain.ArticleChange, isNew bool) error
	Close() error
}
