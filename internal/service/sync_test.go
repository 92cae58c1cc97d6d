package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"news_ingest/internal/domain"
	"news_ingest/internal/fetch"
	"news_ingest/internal/service/mocks"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	fetcher   *mocks.MockFeedFetcher
	parser    *mocks.MockFeedParser
	extractor *mocks.MockTextExtractor
	store     *mocks.MockArticleStore
	publisher *mocks.MockPublisher

	sources []domain.SourceConfig
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.fetcher = mocks.NewMockFeedFetcher(s.ctrl)
	s.parser = mocks.NewMockFeedParser(s.ctrl)
	s.extractor = mocks.NewMockTextExtractor(s.ctrl)
	s.store = mocks.NewMockArticleStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.sources = []domain.SourceConfig{
		{ID: "alpha", Name: "Alpha News", FeedURL: "https://alpha.example.com/rss"},
		{ID: "beta", Name: "Beta Daily", FeedURL: "https://beta.example.com/rss"},
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) newService() *Service {
	return New(s.sources, s.fetcher, s.parser, s.extractor, s.store, s.publisher, s.logger)
}

func (s *SyncServiceTestSuite) candidates(urls ...string) []domain.CandidateArticle {
	out := make([]domain.CandidateArticle, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.CandidateArticle{ExternalID: u, CanonicalURL: u, Title: "title for " + u})
	}
	return out
}

func (s *SyncServiceTestSuite) TestSyncAllSources_Success() {
	ctx := context.Background()

	for _, src := range s.sources {
		s.fetcher.EXPECT().Get(gomock.Any(), src.FeedURL).Return([]byte("<rss/>"), nil)
	}
	s.parser.EXPECT().Parse([]byte("<rss/>")).
		Return(s.candidates("https://x.com/a", "https://x.com/b"), nil).
		Times(2)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{FetchedCount: 2, InsertedCount: 2}, nil).
		Times(2)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(2, rec.SourceCount)
	s.Equal(2, rec.SuccessCount)
	s.Equal(0, rec.ErrorCount)
	s.Equal(0, rec.SkippedCount)
	s.Equal(4, rec.FetchedCount)
	s.Equal(4, rec.InsertedCount)
	s.NotEmpty(rec.RunID)
	s.Len(rec.SourceResults, 2)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_FailingSourceDoesNotBlockOthers() {
	ctx := context.Background()

	s.fetcher.EXPECT().Get(gomock.Any(), "https://alpha.example.com/rss").
		Return(nil, &fetch.StatusError{Status: 503, URL: "https://alpha.example.com/rss"})
	s.fetcher.EXPECT().Get(gomock.Any(), "https://beta.example.com/rss").
		Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(s.candidates("https://x.com/a"), nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{FetchedCount: 1, UnchangedCount: 1}, nil)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(1, rec.ErrorCount)
	s.Equal(1, rec.SuccessCount)

	// Results land at their input index, so alpha is first.
	alpha := rec.SourceResults[0]
	s.Equal("alpha", alpha.SourceID)
	s.Equal(domain.StatusError, alpha.Status)
	s.Equal(503, alpha.HTTPStatus)
	s.False(alpha.TimedOut)
	s.Contains(alpha.Error, "fetch feed")
}

func (s *SyncServiceTestSuite) TestSyncAllSources_FetchTimeoutClassified() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("execute request: %w", context.DeadlineExceeded))
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(1, rec.ErrorCount)

	res := rec.SourceResults[0]
	s.Equal(domain.StatusError, res.Status)
	s.True(res.TimedOut, "a deadline failure is reported as a timeout, not a generic error")
	s.Zero(res.HTTPStatus)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_ParseFailure() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("garbage"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(nil, errors.New("feed type not detected"))
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(1, rec.ErrorCount)
	s.Contains(rec.SourceResults[0].Error, "parse feed")
	s.Zero(rec.SourceResults[0].HTTPStatus)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_DeadlineSkipsEverything() {
	ctx := context.Background()

	// No fetcher, parser or upsert expectations: a source with less than
	// the safety margin left must not start any network I/O.
	var states []domain.SourceSyncState
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, state domain.SourceSyncState) error {
			states = append(states, state)
			return nil
		}).Times(2)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{Deadline: time.Now().Add(time.Second)})

	s.NoError(err)
	s.Equal(2, rec.SkippedCount)
	s.Equal(0, rec.SuccessCount)
	s.Equal(0, rec.ErrorCount)
	for _, state := range states {
		s.Equal(domain.StatusSkipped, state.LastStatus)
		s.Nil(state.LastSuccessAt)
	}
}

func (s *SyncServiceTestSuite) TestSyncAllSources_DistantDeadlineRuns() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(nil, nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{}, nil)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{Deadline: time.Now().Add(time.Minute)})

	s.NoError(err)
	s.Equal(1, rec.SuccessCount)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_FullTextHydration() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).
		Return(s.candidates("https://x.com/good", "https://x.com/bad"), nil)

	s.extractor.EXPECT().FetchFullText(gomock.Any(), "https://x.com/good").
		Return("extracted text", nil)
	s.extractor.EXPECT().FetchFullText(gomock.Any(), "https://x.com/bad").
		Return("", errors.New("no extractable article text"))

	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.SourceConfig, items []domain.CandidateArticle) (domain.UpsertResult, error) {
			s.Require().Len(items, 2)
			s.Equal("extracted text", items[0].FullText)
			s.Empty(items[0].FullTextError)
			s.Empty(items[1].FullText)
			s.Equal("no extractable article text", items[1].FullTextError)
			return domain.UpsertResult{FetchedCount: 2, InsertedCount: 2}, nil
		})
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{FetchFullText: true})

	s.NoError(err)
	s.Equal(1, rec.SourceResults[0].FullTextErrors)
	s.Equal(domain.StatusSuccess, rec.SourceResults[0].Status)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_PublishesOnlyRealChanges() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	changes := []domain.ArticleChange{
		{ArticleID: "id-1", Kind: domain.ChangeInserted},
		{ArticleID: "id-2", Kind: domain.ChangeUpdated},
		{ArticleID: "id-3", Kind: domain.ChangeUnchanged},
	}

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(s.candidates("https://x.com/a"), nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{FetchedCount: 3, InsertedCount: 1, UpdatedCount: 1, UnchangedCount: 1, Changes: changes}, nil)

	s.publisher.EXPECT().Publish(gomock.Any(), changes[0], true).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), changes[1], false).Return(nil)

	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.newService().SyncAllSources(ctx, Options{})
	s.NoError(err)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_PublishFailureIsNotFatal() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	changes := []domain.ArticleChange{{ArticleID: "id-1", Kind: domain.ChangeInserted}}

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(s.candidates("https://x.com/a"), nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{FetchedCount: 1, InsertedCount: 1, Changes: changes}, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), changes[0], true).Return(errors.New("broker unavailable"))
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(1, rec.SuccessCount)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_NilPublisher() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(s.candidates("https://x.com/a"), nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{
			FetchedCount: 1, InsertedCount: 1,
			Changes: []domain.ArticleChange{{ArticleID: "id-1", Kind: domain.ChangeInserted}},
		}, nil)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	svc := New(s.sources, s.fetcher, s.parser, s.extractor, s.store, nil, s.logger)
	rec, err := svc.SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(1, rec.SuccessCount)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_MaxSourcesPerRun() {
	ctx := context.Background()
	s.sources = append(s.sources, domain.SourceConfig{
		ID: "gamma", Name: "Gamma Wire", FeedURL: "https://gamma.example.com/rss",
	})

	// Only the first source in list order is attempted.
	s.fetcher.EXPECT().Get(gomock.Any(), "https://alpha.example.com/rss").Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(nil, nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{}, nil)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{MaxSourcesPerRun: 1})

	s.NoError(err)
	s.Equal(1, rec.SourceCount)
	s.Len(rec.SourceResults, 1)
	s.Equal("alpha", rec.SourceResults[0].SourceID)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_UpsertFailure() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(s.candidates("https://x.com/a"), nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{}, errors.New("connection refused"))
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(1, rec.ErrorCount)
	s.Contains(rec.SourceResults[0].Error, "upsert articles")
}

func (s *SyncServiceTestSuite) TestSyncAllSources_SyncStateWriteFailureIsNotFatal() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(nil, nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{}, nil)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused"))
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.newService().SyncAllSources(ctx, Options{})
	s.NoError(err)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_RunRecordFailureIsFatal() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(nil, nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{}, nil)
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused"))

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.Error(err)
	s.Contains(err.Error(), "record sync run")
	// The record is still returned for logging even when persisting failed.
	s.Equal(1, rec.SourceCount)
}

func (s *SyncServiceTestSuite) TestSyncAllSources_SuccessStateCarriesTimestamp() {
	ctx := context.Background()
	s.sources = s.sources[:1]

	s.fetcher.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("<rss/>"), nil)
	s.parser.EXPECT().Parse(gomock.Any()).Return(s.candidates("https://x.com/a"), nil)
	s.store.EXPECT().UpsertArticles(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.UpsertResult{FetchedCount: 1, InsertedCount: 1}, nil)

	var state domain.SourceSyncState
	s.store.EXPECT().RecordSourceSyncState(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, st domain.SourceSyncState) error {
			state = st
			return nil
		})
	s.store.EXPECT().RecordSyncRun(gomock.Any(), gomock.Any()).Return(nil)

	rec, err := s.newService().SyncAllSources(ctx, Options{})

	s.NoError(err)
	s.Equal(domain.StatusSuccess, state.LastStatus)
	s.Equal(rec.RunID, state.LastRunID)
	s.NotNil(state.LastSuccessAt)
	s.Equal(1, state.FetchedCount)
	s.Equal(1, state.InsertedCount)
}
