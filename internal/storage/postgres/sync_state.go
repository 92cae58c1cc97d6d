package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"news_ingest/internal/domain"
)

// RecordSourceSyncState upserts one source's last-run record. Success
// advances last_success_at and clears last_error; an error keeps the prior
// success timestamp; a skipped attempt also keeps the prior error.
func (s *Store) RecordSourceSyncState(ctx context.Context, state domain.SourceSyncState) error {
	query := `
		INSERT INTO source_sync_state (
			source_id, last_status, last_run_id, last_success_at, last_error,
			fetched_count, inserted_count, updated_count, unchanged_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_id) DO UPDATE SET
			last_status = EXCLUDED.last_status,
			last_run_id = EXCLUDED.last_run_id,
			last_success_at = COALESCE(EXCLUDED.last_success_at, source_sync_state.last_success_at),
			last_error = CASE
				WHEN EXCLUDED.last_status = 'skipped' THEN source_sync_state.last_error
				ELSE EXCLUDED.last_error
			END,
			fetched_count = EXCLUDED.fetched_count,
			inserted_count = EXCLUDED.inserted_count,
			updated_count = EXCLUDED.updated_count,
			unchanged_count = EXCLUDED.unchanged_count,
			updated_at = EXCLUDED.updated_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SourceID,
		state.LastStatus,
		state.LastRunID,
		state.LastSuccessAt,
		state.LastError,
		state.FetchedCount,
		state.InsertedCount,
		state.UpdatedCount,
		state.UnchangedCount,
		state.UpdatedAt,
	)
	return err
}

// GetSourceSyncState loads one source's state; a never-synced source gets an
// empty record rather than an error.
func (s *Store) GetSourceSyncState(ctx context.Context, sourceID string) (*domain.SourceSyncState, error) {
	query := `
		SELECT source_id, last_status, last_run_id, last_success_at, last_error,
			fetched_count, inserted_count, updated_count, unchanged_count, updated_at
		FROM source_sync_state
		WHERE source_id = $1`

	var state domain.SourceSyncState
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.SourceSyncState{SourceID: sourceID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
