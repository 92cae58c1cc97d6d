// Package memory is the in-memory store used by tests. It mirrors the
// production backend through the shared storage.Apply semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"news_ingest/internal/domain"
	"news_ingest/internal/storage"
)

type Store struct {
	mu sync.Mutex

	targetChunkBytes int
	now              func() time.Time

	articles map[string]domain.StoredArticle
	chunks   map[string]map[int]domain.TextChunk
	states   map[string]domain.SourceSyncState
	runs     []domain.SyncRunRecord
}

func NewStore(targetChunkBytes int) *Store {
	return &Store{
		targetChunkBytes: targetChunkBytes,
		now:              func() time.Time { return time.Now().UTC() },
		articles:         make(map[string]domain.StoredArticle),
		chunks:           make(map[string]map[int]domain.TextChunk),
		states:           make(map[string]domain.SourceSyncState),
	}
}

// SetClock overrides the store's clock, for tests asserting on timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) UpsertArticles(_ context.Context, source domain.SourceConfig, items []domain.CandidateArticle) (domain.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := domain.UpsertResult{FetchedCount: len(items)}
	now := s.now()

	for _, item := range items {
		articleID := domain.ArticleID(item.CanonicalURL)

		var existing *domain.StoredArticle
		if doc, ok := s.articles[articleID]; ok {
			existing = &doc
		}

		doc, plan, kind := storage.Apply(existing, source, item, s.targetChunkBytes, now)
		s.articles[articleID] = doc

		if plan.Rewrite {
			byIndex := s.chunks[articleID]
			if byIndex == nil {
				byIndex = make(map[int]domain.TextChunk)
				s.chunks[articleID] = byIndex
			}
			for i, text := range plan.Chunks {
				byIndex[i] = domain.TextChunk{
					ChunkID:    domain.ChunkID(articleID, i),
					ArticleID:  articleID,
					ChunkIndex: i,
					Text:       text,
				}
			}
			for i := range byIndex {
				if i >= len(plan.Chunks) {
					delete(byIndex, i)
				}
			}
		}

		switch kind {
		case domain.ChangeInserted:
			res.InsertedCount++
		case domain.ChangeUpdated:
			res.UpdatedCount++
		default:
			res.UnchangedCount++
		}
		res.Changes = append(res.Changes, domain.ArticleChange{
			ArticleID:    articleID,
			CanonicalURL: doc.CanonicalURL,
			Title:        doc.Title,
			Kind:         kind,
		})
	}

	return res, nil
}

func (s *Store) RecordSourceSyncState(_ context.Context, state domain.SourceSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.states[state.SourceID]
	if state.LastSuccessAt == nil && existed {
		state.LastSuccessAt = prev.LastSuccessAt
	}
	if state.LastStatus == domain.StatusSkipped && existed {
		state.LastError = prev.LastError
	}
	s.states[state.SourceID] = state
	return nil
}

func (s *Store) RecordSyncRun(_ context.Context, rec domain.SyncRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return nil
}

// Article returns the stored document, if any.
func (s *Store) Article(articleID string) (domain.StoredArticle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.articles[articleID]
	return doc, ok
}

// Chunks returns the article's chunks in index order.
func (s *Store) Chunks(articleID string) []domain.TextChunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	byIndex := s.chunks[articleID]
	out := make([]domain.TextChunk, 0, len(byIndex))
	for _, c := range byIndex {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

// FullText reassembles the article's chunk set.
func (s *Store) FullText(articleID string) string {
	var text string
	for _, c := range s.Chunks(articleID) {
		text += c.Text
	}
	return text
}

func (s *Store) SyncState(sourceID string) (domain.SourceSyncState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sourceID]
	return state, ok
}

func (s *Store) Runs() []domain.SyncRunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncRunRecord(nil), s.runs...)
}
