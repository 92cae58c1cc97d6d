package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"news_ingest/internal/domain"
	"news_ingest/internal/fetch"
	"news_ingest/internal/normalize"
	"news_ingest/internal/pool"
)

// deadlineMargin is the minimum wall-clock budget a source needs before any
// of its network I/O starts. A source with less than this is skipped whole
// rather than cancelled mid-flight.
const deadlineMargin = 1500 * time.Millisecond

// Options controls one sync run. The scheduler supplies Deadline as
// "now + remaining time budget of the hosting runtime".
type Options struct {
	SourceConcurrency    int
	ArticleConcurrency   int
	FeedTimeout          time.Duration
	ArticleTimeout       time.Duration
	MaxArticlesPerSource int
	// MaxSourcesPerRun caps the run by static list order. No rotation or
	// priority: under sustained source growth the tail can starve.
	MaxSourcesPerRun int
	FetchFullText    bool
	Deadline         time.Time
	Schedule         string
}

func (o Options) withDefaults() Options {
	if o.SourceConcurrency == 0 {
		o.SourceConcurrency = 4
	}
	if o.ArticleConcurrency == 0 {
		o.ArticleConcurrency = 2
	}
	if o.FeedTimeout == 0 {
		o.FeedTimeout = 20 * time.Second
	}
	if o.ArticleTimeout == 0 {
		o.ArticleTimeout = 15 * time.Second
	}
	if o.MaxArticlesPerSource == 0 {
		o.MaxArticlesPerSource = 50
	}
	if o.MaxSourcesPerRun == 0 {
		o.MaxSourcesPerRun = 25
	}
	return o
}

// Service composes fetcher, parser, extractor and store into one
// multi-source sync operation.
type Service struct {
	sources   []domain.SourceConfig
	fetcher   FeedFetcher
	parser    FeedParser
	extractor TextExtractor
	store     ArticleStore
	publisher Publisher
	logger    *slog.Logger
}

func New(
	sources []domain.SourceConfig,
	fetcher FeedFetcher,
	parser FeedParser,
	extractor TextExtractor,
	store ArticleStore,
	publisher Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		sources:   sources,
		fetcher:   fetcher,
		parser:    parser,
		extractor: extractor,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// SyncAllSources runs one full sync across the configured sources and
// returns the run's audit record. Per-source failures are folded into the
// record; only a failure to persist the run record itself is returned as an
// error, since by then all recoverable work is done.
func (s *Service) SyncAllSources(ctx context.Context, opts Options) (domain.SyncRunRecord, error) {
	opts = opts.withDefaults()

	startedAt := time.Now().UTC()
	runID := newRunID(startedAt)

	sources := s.sources
	if len(sources) > opts.MaxSourcesPerRun {
		sources = sources[:opts.MaxSourcesPerRun]
	}

	s.logger.Info("starting sync run",
		"run_id", runID,
		"schedule", opts.Schedule,
		"sources", len(sources),
		"source_concurrency", opts.SourceConcurrency,
		"fetch_full_text", opts.FetchFullText,
	)

	results := pool.Map(ctx, opts.SourceConcurrency, sources, func(ctx context.Context, src domain.SourceConfig) domain.SourceSyncResult {
		return s.syncSource(ctx, src, opts)
	})

	rec := domain.SyncRunRecord{
		RunID:         runID,
		Schedule:      opts.Schedule,
		StartedAt:     startedAt,
		CompletedAt:   time.Now().UTC(),
		SourceCount:   len(sources),
		SourceResults: results,
	}
	for _, res := range results {
		switch res.Status {
		case domain.StatusSuccess:
			rec.SuccessCount++
		case domain.StatusError:
			rec.ErrorCount++
		case domain.StatusSkipped:
			rec.SkippedCount++
		}
		rec.FetchedCount += res.FetchedCount
		rec.InsertedCount += res.InsertedCount
		rec.UpdatedCount += res.UpdatedCount
		rec.UnchangedCount += res.UnchangedCount
	}

	now := time.Now().UTC()
	for _, res := range results {
		if err := s.store.RecordSourceSyncState(ctx, syncStateFrom(res, runID, now)); err != nil {
			s.logger.Warn("failed to record source sync state", "source", res.SourceID, "error", err)
		}
	}

	if err := s.store.RecordSyncRun(ctx, rec); err != nil {
		return rec, fmt.Errorf("record sync run: %w", err)
	}

	s.logger.Info("sync run completed",
		"run_id", runID,
		"success", rec.SuccessCount,
		"errors", rec.ErrorCount,
		"skipped", rec.SkippedCount,
		"fetched", rec.FetchedCount,
		"inserted", rec.InsertedCount,
		"updated", rec.UpdatedCount,
		"unchanged", rec.UnchangedCount,
		"duration", rec.CompletedAt.Sub(rec.StartedAt),
	)

	return rec, nil
}

// syncSource runs one source attempt: deadline guard, fetch, parse,
// normalize, optional hydration, upsert. Failures never escape; they become
// an error-status result so the rest of the run is unaffected.
func (s *Service) syncSource(ctx context.Context, src domain.SourceConfig, opts Options) domain.SourceSyncResult {
	start := time.Now()
	res := domain.SourceSyncResult{
		SourceID:   src.ID,
		SourceName: src.Name,
	}
	logger := s.logger.With("source", src.ID)

	// Budget check before any network I/O: a source we cannot finish
	// safely is not started at all.
	if !opts.Deadline.IsZero() && time.Until(opts.Deadline) <= deadlineMargin {
		res.Status = domain.StatusSkipped
		res.Duration = time.Since(start)
		logger.Info("skipping source, deadline too close", "deadline", opts.Deadline)
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, opts.FeedTimeout)
	body, err := s.fetcher.Get(fetchCtx, src.FeedURL)
	cancel()
	if err != nil {
		return s.sourceError(logger, res, start, "fetch feed", err)
	}

	candidates, err := s.parser.Parse(body)
	if err != nil {
		return s.sourceError(logger, res, start, "parse feed", err)
	}

	items := normalize.Items(candidates, opts.MaxArticlesPerSource)

	if opts.FetchFullText {
		var textErrors int
		items, textErrors = s.hydrate(ctx, items, opts, logger)
		res.FullTextErrors = textErrors
	}

	up, err := s.store.UpsertArticles(ctx, src, items)
	if err != nil {
		return s.sourceError(logger, res, start, "upsert articles", err)
	}

	s.publishChanges(ctx, up.Changes, logger)

	res.Status = domain.StatusSuccess
	res.FetchedCount = up.FetchedCount
	res.InsertedCount = up.InsertedCount
	res.UpdatedCount = up.UpdatedCount
	res.UnchangedCount = up.UnchangedCount
	res.Duration = time.Since(start)

	logger.Info("source synced",
		"fetched", res.FetchedCount,
		"inserted", res.InsertedCount,
		"updated", res.UpdatedCount,
		"unchanged", res.UnchangedCount,
		"full_text_errors", res.FullTextErrors,
		"duration", res.Duration,
	)
	return res
}

// hydrate fetches full text for each item with its own, smaller worker
// pool: page fetches are the most expensive step and the most likely to be
// rate limited by the origin. A per-article failure becomes a field on that
// item; it never fails the source.
func (s *Service) hydrate(ctx context.Context, items []domain.CandidateArticle, opts Options, logger *slog.Logger) ([]domain.CandidateArticle, int) {
	hydrated := pool.Map(ctx, opts.ArticleConcurrency, items, func(ctx context.Context, item domain.CandidateArticle) domain.CandidateArticle {
		articleCtx, cancel := context.WithTimeout(ctx, opts.ArticleTimeout)
		defer cancel()

		text, err := s.extractor.FetchFullText(articleCtx, item.CanonicalURL)
		if err != nil {
			item.FullTextError = err.Error()
			logger.Debug("full text extraction failed", "url", item.CanonicalURL, "error", err)
			return item
		}
		item.FullText = text
		return item
	})

	var textErrors int
	for _, item := range hydrated {
		if item.FullTextError != "" {
			textErrors++
		}
	}
	return hydrated, textErrors
}

func (s *Service) publishChanges(ctx context.Context, changes []domain.ArticleChange, logger *slog.Logger) {
	if s.publisher == nil {
		return
	}
	for _, ch := range changes {
		if ch.Kind == domain.ChangeUnchanged {
			continue
		}
		if err := s.publisher.Publish(ctx, ch, ch.Kind == domain.ChangeInserted); err != nil {
			logger.Warn("failed to publish article change", "article_id", ch.ArticleID, "error", err)
		}
	}
}

func (s *Service) sourceError(logger *slog.Logger, res domain.SourceSyncResult, start time.Time, op string, err error) domain.SourceSyncResult {
	res.Status = domain.StatusError
	res.Error = fmt.Sprintf("%s: %v", op, err)
	res.Duration = time.Since(start)

	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		res.HTTPStatus = statusErr.Status
	}
	res.TimedOut = fetch.IsTimeout(err)

	logger.Error("source sync failed", "op", op, "http_status", res.HTTPStatus, "timed_out", res.TimedOut, "error", err)
	return res
}

// syncStateFrom maps a source result to its persistent state record.
// LastSuccessAt is only set on success; the store preserves the prior value
// otherwise. A skipped attempt also preserves the prior error.
func syncStateFrom(res domain.SourceSyncResult, runID string, now time.Time) domain.SourceSyncState {
	state := domain.SourceSyncState{
		SourceID:       res.SourceID,
		LastStatus:     res.Status,
		LastRunID:      runID,
		FetchedCount:   res.FetchedCount,
		InsertedCount:  res.InsertedCount,
		UpdatedCount:   res.UpdatedCount,
		UnchangedCount: res.UnchangedCount,
		UpdatedAt:      now,
	}
	switch res.Status {
	case domain.StatusSuccess:
		t := now
		state.LastSuccessAt = &t
	case domain.StatusError:
		state.LastError = res.Error
	}
	return state
}

// newRunID is time-prefixed so run ids sort chronologically in the audit
// log, with a uuid suffix for uniqueness under concurrent triggers.
func newRunID(t time.Time) string {
	return t.Format("20060102T150405Z") + "-" + strings.Split(uuid.NewString(), "-")[0]
}
