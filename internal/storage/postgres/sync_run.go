package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"news_ingest/internal/domain"
)

// RecordSyncRun appends one run's audit record. Run records are immutable;
// this is an insert, never an upsert.
func (s *Store) RecordSyncRun(ctx context.Context, rec domain.SyncRunRecord) error {
	sourceResults, err := json.Marshal(rec.SourceResults)
	if err != nil {
		return fmt.Errorf("marshal source results: %w", err)
	}

	query := `
		INSERT INTO sync_runs (
			run_id, schedule, started_at, completed_at,
			source_count, success_count, error_count, skipped_count,
			fetched_count, inserted_count, updated_count, unchanged_count,
			source_results
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.RunID,
		rec.Schedule,
		rec.StartedAt,
		rec.CompletedAt,
		rec.SourceCount,
		rec.SuccessCount,
		rec.ErrorCount,
		rec.SkippedCount,
		rec.FetchedCount,
		rec.InsertedCount,
		rec.UpdatedCount,
		rec.UnchangedCount,
		sourceResults,
	)
	return err
}
