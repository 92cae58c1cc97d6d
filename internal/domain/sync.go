package domain

import "time"

// Per-source terminal statuses for one run.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Kinds of change an upsert reports for a single article.
const (
	ChangeInserted  = "inserted"
	ChangeUpdated   = "updated"
	ChangeUnchanged = "unchanged"
)

// ArticleChange is the per-article outcome of an upsert batch, used to feed
// downstream change events.
type ArticleChange struct {
	ArticleID    string
	CanonicalURL string
	Title        string
	Kind         string
}

// UpsertResult holds the counters for one upsert batch.
type UpsertResult struct {
	FetchedCount   int
	InsertedCount  int
	UpdatedCount   int
	UnchangedCount int
	Changes        []ArticleChange
}

// SourceSyncResult is the outcome of one source attempt within a run.
type SourceSyncResult struct {
	SourceID       string        `json:"source_id"`
	SourceName     string        `json:"source_name"`
	Status         string        `json:"status"`
	FetchedCount   int           `json:"fetched_count"`
	InsertedCount  int           `json:"inserted_count"`
	UpdatedCount   int           `json:"updated_count"`
	UnchangedCount int           `json:"unchanged_count"`
	FullTextErrors int           `json:"full_text_errors,omitempty"`
	HTTPStatus     int           `json:"http_status,omitempty"`
	TimedOut       bool          `json:"timed_out,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// SourceSyncState is the persistent last-run record for one source.
// LastSuccessAt only advances on success; a skipped run leaves it untouched.
type SourceSyncState struct {
	SourceID       string     `db:"source_id"`
	LastStatus     string     `db:"last_status"`
	LastRunID      string     `db:"last_run_id"`
	LastSuccessAt  *time.Time `db:"last_success_at"`
	LastError      string     `db:"last_error"`
	FetchedCount   int        `db:"fetched_count"`
	InsertedCount  int        `db:"inserted_count"`
	UpdatedCount   int        `db:"updated_count"`
	UnchangedCount int        `db:"unchanged_count"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// SyncRunRecord is the immutable audit log entry for one orchestrator
// invocation across all attempted sources.
type SyncRunRecord struct {
	RunID          string             `json:"run_id"`
	Schedule       string             `json:"schedule,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    time.Time          `json:"completed_at"`
	SourceCount    int                `json:"source_count"`
	SuccessCount   int                `json:"success_count"`
	ErrorCount     int                `json:"error_count"`
	SkippedCount   int                `json:"skipped_count"`
	FetchedCount   int                `json:"fetched_count"`
	InsertedCount  int                `json:"inserted_count"`
	UpdatedCount   int                `json:"updated_count"`
	UnchangedCount int                `json:"unchanged_count"`
	SourceResults  []SourceSyncResult `json:"source_results"`
}
