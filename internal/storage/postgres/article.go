// Package postgres is the production store: fingerprinted article upserts,
// byte-bounded text chunks, per-source sync state and run records.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_ingest/internal/domain"
	"news_ingest/internal/storage"
)

type Store struct {
	db               *sqlx.DB
	tm               *TransactionManager
	targetChunkBytes int
}

func NewStore(db *sqlx.DB, targetChunkBytes int) *Store {
	return &Store{
		db:               db,
		tm:               NewTransactionManager(db),
		targetChunkBytes: targetChunkBytes,
	}
}

type articleRow struct {
	domain.StoredArticle
	Cats pq.StringArray `db:"categories"`
}

// UpsertArticles merges one source's candidates into the store. The whole
// batch commits in a single transaction.
func (s *Store) UpsertArticles(ctx context.Context, source domain.SourceConfig, items []domain.CandidateArticle) (domain.UpsertResult, error) {
	res := domain.UpsertResult{FetchedCount: len(items)}

	err := s.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()
		for _, item := range items {
			articleID := domain.ArticleID(item.CanonicalURL)

			existing, err := s.getArticle(txCtx, articleID)
			if err != nil {
				return fmt.Errorf("load article %s: %w", articleID, err)
			}

			doc, plan, kind := storage.Apply(existing, source, item, s.targetChunkBytes, now)

			if err := s.saveArticle(txCtx, doc); err != nil {
				return fmt.Errorf("save article %s: %w", articleID, err)
			}
			if plan.Rewrite {
				if err := s.writeChunks(txCtx, articleID, plan.Chunks); err != nil {
					return fmt.Errorf("write chunks for %s: %w", articleID, err)
				}
				if err := s.deleteChunksFrom(txCtx, articleID, len(plan.Chunks)); err != nil {
					return fmt.Errorf("reconcile chunks for %s: %w", articleID, err)
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
		return nil
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}

	return res, nil
}

func (s *Store) getArticle(ctx context.Context, articleID string) (*domain.StoredArticle, error) {
	query := `
		SELECT article_id, source_id, source_name, canonical_url, title, summary,
			categories, external_id, author, published_at, feed_fingerprint,
			full_text_status, full_text_fingerprint, full_text_length,
			full_text_chunk_count, full_text_error,
			first_seen_at, created_at, last_seen_at, updated_at
		FROM articles
		WHERE article_id = $1`

	var row articleRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc := row.StoredArticle
	doc.Categories = []string(row.Cats)
	return &doc, nil
}

func (s *Store) saveArticle(ctx context.Context, doc domain.StoredArticle) error {
	query := `
		INSERT INTO articles (
			article_id, source_id, source_name, canonical_url, title, summary,
			categories, external_id, author, published_at, feed_fingerprint,
			full_text_status, full_text_fingerprint, full_text_length,
			full_text_chunk_count, full_text_error,
			first_seen_at, created_at, last_seen_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (article_id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			source_name = EXCLUDED.source_name,
			canonical_url = EXCLUDED.canonical_url,
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			categories = EXCLUDED.categories,
			external_id = EXCLUDED.external_id,
			author = EXCLUDED.author,
			published_at = EXCLUDED.published_at,
			feed_fingerprint = EXCLUDED.feed_fingerprint,
			full_text_status = EXCLUDED.full_text_status,
			full_text_fingerprint = EXCLUDED.full_text_fingerprint,
			full_text_length = EXCLUDED.full_text_length,
			full_text_chunk_count = EXCLUDED.full_text_chunk_count,
			full_text_error = EXCLUDED.full_text_error,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at`

	// A nil slice would serialize as NULL; the column is NOT NULL.
	cats := doc.Categories
	if cats == nil {
		cats = []string{}
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		doc.ArticleID,
		doc.SourceID,
		doc.SourceName,
		doc.CanonicalURL,
		doc.Title,
		doc.Summary,
		pq.Array(cats),
		doc.ExternalID,
		doc.Author,
		doc.PublishedAt,
		doc.FeedFingerprint,
		doc.FullTextStatus,
		doc.FullTextFingerprint,
		doc.FullTextLength,
		doc.FullTextChunkCount,
		doc.FullTextErrorMsg,
		doc.FirstSeenAt,
		doc.CreatedAt,
		doc.LastSeenAt,
		doc.UpdatedAt,
	)
	return err
}

func (s *Store) writeChunks(ctx context.Context, articleID string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO article_chunks (chunk_id, article_id, chunk_index, text) VALUES ")
	args := make([]interface{}, 0, len(chunks)*4)

	for i, text := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		sb.WriteString("($" + strconv.Itoa(base+1) +
			", $" + strconv.Itoa(base+2) +
			", $" + strconv.Itoa(base+3) +
			", $" + strconv.Itoa(base+4) + ")")
		args = append(args, domain.ChunkID(articleID, i), articleID, i, text)
	}
	sb.WriteString(" ON CONFLICT (chunk_id) DO UPDATE SET text = EXCLUDED.text")

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return err
}

// deleteChunksFrom removes every chunk at index >= count so the stored set
// is always exactly [0, count).
func (s *Store) deleteChunksFrom(ctx context.Context, articleID string, count int) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM article_chunks WHERE article_id = $1 AND chunk_index >= $2",
		articleID, count,
	)
	return err
}

// GetChunks returns an article's chunks in index order.
func (s *Store) GetChunks(ctx context.Context, articleID string) ([]domain.TextChunk, error) {
	query := `
		SELECT chunk_id, article_id, chunk_index, text
		FROM article_chunks
		WHERE article_id = $1
		ORDER BY chunk_index`

	var chunks []domain.TextChunk
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &chunks, query, articleID)
	return chunks, err
}

// CountArticlesBySource supports read-side reporting.
func (s *Store) CountArticlesBySource(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		"SELECT COUNT(*) FROM articles WHERE source_id = $1", sourceID)
	return count, err
}
