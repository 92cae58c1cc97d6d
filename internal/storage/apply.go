// Package storage holds the upsert decision shared by every store backend:
// identity, fingerprint comparison and chunk reconciliation planning.
package storage

import (
	"time"

	"news_ingest/internal/chunk"
	"news_ingest/internal/domain"
)

// ChunkPlan says what to do with an article's chunk set after an upsert.
// When Rewrite is set, chunks [0, len(Chunks)) replace whatever is stored
// and every stored index >= len(Chunks) must be deleted.
type ChunkPlan struct {
	Rewrite bool
	Chunks  []string
}

// Apply merges one candidate into the existing document (nil when absent)
// and returns the next document state, the chunk plan, and the change kind.
// The caller persists; Apply never touches a backend.
//
// lastSeenAt is bumped on every sighting; updatedAt only moves on a real
// feed-field or full-text change. A full-text change alone still counts the
// article as updated.
func Apply(existing *domain.StoredArticle, source domain.SourceConfig, c domain.CandidateArticle, targetChunkBytes int, now time.Time) (domain.StoredArticle, ChunkPlan, string) {
	feedFp := domain.FeedFingerprint(c)

	if existing == nil {
		doc := domain.StoredArticle{
			ArticleID:       domain.ArticleID(c.CanonicalURL),
			FeedFingerprint: feedFp,
			FullTextStatus:  domain.FullTextNone,
			FirstSeenAt:     now,
			CreatedAt:       now,
			LastSeenAt:      now,
			UpdatedAt:       now,
		}
		applyFeedFields(&doc, source, c)
		plan := applyFullText(&doc, c, targetChunkBytes)
		return doc, plan, domain.ChangeInserted
	}

	doc := *existing
	doc.LastSeenAt = now

	feedChanged := feedFp != existing.FeedFingerprint
	plan := applyFullText(&doc, c, targetChunkBytes)
	textChanged := doc.FullTextStatus != existing.FullTextStatus ||
		doc.FullTextFingerprint != existing.FullTextFingerprint ||
		doc.FullTextChunkCount != existing.FullTextChunkCount ||
		doc.FullTextErrorMsg != existing.FullTextErrorMsg

	if !feedChanged && !textChanged {
		return doc, ChunkPlan{}, domain.ChangeUnchanged
	}

	if feedChanged {
		doc.FeedFingerprint = feedFp
		applyFeedFields(&doc, source, c)
	}
	doc.UpdatedAt = now
	return doc, plan, domain.ChangeUpdated
}

func applyFeedFields(doc *domain.StoredArticle, source domain.SourceConfig, c domain.CandidateArticle) {
	doc.SourceID = source.ID
	doc.SourceName = source.Name
	doc.CanonicalURL = c.CanonicalURL
	doc.Title = c.Title
	doc.Summary = c.Summary
	doc.Categories = append([]string(nil), c.Categories...)
	doc.ExternalID = c.ExternalID
	doc.Author = c.Author
	doc.PublishedAt = c.PublishedAt
}

// applyFullText evaluates the full-text patch against doc (which starts as a
// copy of the stored state) and returns the chunk plan. A candidate without
// text or an extraction error leaves the stored full text untouched.
func applyFullText(doc *domain.StoredArticle, c domain.CandidateArticle, targetChunkBytes int) ChunkPlan {
	if c.FullText != "" {
		fp := domain.TextFingerprint(c.FullText)
		chunks := chunk.Split(c.FullText, targetChunkBytes)
		if doc.FullTextStatus == domain.FullTextReady &&
			doc.FullTextFingerprint == fp &&
			doc.FullTextChunkCount == len(chunks) {
			return ChunkPlan{}
		}
		doc.FullTextStatus = domain.FullTextReady
		doc.FullTextFingerprint = fp
		doc.FullTextLength = len(c.FullText)
		doc.FullTextChunkCount = len(chunks)
		doc.FullTextErrorMsg = ""
		return ChunkPlan{Rewrite: true, Chunks: chunks}
	}

	if c.FullTextError != "" {
		if doc.FullTextStatus == domain.FullTextError && doc.FullTextErrorMsg == c.FullTextError {
			return ChunkPlan{}
		}
		doc.FullTextStatus = domain.FullTextError
		doc.FullTextErrorMsg = c.FullTextError
		return ChunkPlan{}
	}

	return ChunkPlan{}
}
