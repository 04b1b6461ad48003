package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

const jobColumns = `id, user_id, source_repo_url, destination_repo_url, status, error_message, trigger_source, requested_at, started_at, finished_at`

// JobRepo is the SQLite implementation of the JobStore port interface.
// The partial unique index idx_sync_jobs_in_flight enforces at most one
// pending or syncing job per (user_id, source_repo_url), and every status
// change is a conditional UPDATE, so concurrent processes sharing the
// database file cannot double-claim or double-finish a job.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

// Create inserts a pending job and returns it with its assigned ID.
func (r *JobRepo) Create(ctx context.Context, job model.SyncJob) (model.SyncJob, error) {
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	if job.TriggerSource == "" {
		job.TriggerSource = model.TriggerManual
	}
	job.Status = model.JobStatusPending
	job.ErrorMessage = ""
	job.StartedAt = time.Time{}
	job.FinishedAt = time.Time{}

	const query = `
		INSERT INTO sync_jobs (user_id, source_repo_url, destination_repo_url, status, trigger_source, requested_at)
		VALUES (?, ?, ?, 'pending', ?, ?)
	`
	result, err := r.db.Writer.ExecContext(ctx, query,
		job.UserID, job.SourceRepoURL, job.DestinationRepoURL, string(job.TriggerSource), formatTime(job.RequestedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.SyncJob{}, fmt.Errorf("sync of %s already in flight: %w", job.SourceRepoURL, driven.ErrConflict)
		}
		return model.SyncJob{}, fmt.Errorf("create sync job for %s: %w", job.SourceRepoURL, err)
	}

	job.ID, err = result.LastInsertId()
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("read sync job id: %w", err)
	}

	return job, nil
}

// ClaimNext atomically moves the oldest pending job to syncing. The WHERE
// clause re-checks status so a job claimed by another process is skipped.
func (r *JobRepo) ClaimNext(ctx context.Context, now time.Time) (*model.SyncJob, error) {
	query := `
		UPDATE sync_jobs SET status = 'syncing', started_at = ?
		WHERE id = (SELECT id FROM sync_jobs WHERE status = 'pending' ORDER BY id LIMIT 1)
		  AND status = 'pending'
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.Writer.QueryRowContext(ctx, query, formatTime(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next sync job: %w", err)
	}

	return job, nil
}

// Finish writes the terminal status and the log entry in one transaction.
func (r *JobRepo) Finish(ctx context.Context, jobID int64, status model.JobStatus, errorMessage string, now time.Time) (model.SyncLogEntry, error) {
	if !status.IsTerminal() {
		return model.SyncLogEntry{}, fmt.Errorf("finish job %d with status %q: %w", jobID, status, driven.ErrInvalidInput)
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.SyncLogEntry{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const update = `
		UPDATE sync_jobs SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = 'syncing'
		RETURNING id, user_id, source_repo_url, destination_repo_url, requested_at
	`

	var requestedAt string
	entry := model.SyncLogEntry{Status: status, ErrorMessage: errorMessage, UpdatedAt: now.UTC()}
	err = tx.QueryRowContext(ctx, update, string(status), errorMessage, formatTime(now), jobID).
		Scan(&entry.ID, &entry.UserID, &entry.GitHubRepoURL, &entry.GiteeRepoURL, &requestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncLogEntry{}, fmt.Errorf("job %d is not syncing: %w", jobID, driven.ErrNotFound)
	}
	if err != nil {
		return model.SyncLogEntry{}, fmt.Errorf("finish job %d: %w", jobID, err)
	}

	entry.CreatedAt, err = parseTime(requestedAt)
	if err != nil {
		return model.SyncLogEntry{}, fmt.Errorf("parse requested_at: %w", err)
	}

	if err := insertLogEntry(ctx, tx, entry); err != nil {
		return model.SyncLogEntry{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.SyncLogEntry{}, fmt.Errorf("commit finish of job %d: %w", jobID, err)
	}

	return entry, nil
}

// FailSyncing fails every syncing job started before cutoff (all of them when
// cutoff is zero) and appends a log entry for each, in one transaction.
func (r *JobRepo) FailSyncing(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]model.SyncLogEntry, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	cutoffArg := ""
	if !cutoff.IsZero() {
		cutoffArg = formatTime(cutoff)
	}

	const update = `
		UPDATE sync_jobs SET status = 'failed', error_message = ?, finished_at = ?
		WHERE status = 'syncing' AND (? = '' OR started_at < ?)
		RETURNING id, user_id, source_repo_url, destination_repo_url, requested_at
	`
	rows, err := tx.QueryContext(ctx, update, message, formatTime(now), cutoffArg, cutoffArg)
	if err != nil {
		return nil, fmt.Errorf("fail syncing jobs: %w", err)
	}

	var entries []model.SyncLogEntry
	for rows.Next() {
		var requestedAt string
		entry := model.SyncLogEntry{Status: model.JobStatusFailed, ErrorMessage: message, UpdatedAt: now.UTC()}
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.GitHubRepoURL, &entry.GiteeRepoURL, &requestedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan failed job: %w", err)
		}
		entry.CreatedAt, err = parseTime(requestedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse requested_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate failed jobs: %w", err)
	}
	rows.Close()

	for _, entry := range entries {
		if err := insertLogEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failed jobs: %w", err)
	}

	return entries, nil
}

// Get returns a job by ID.
func (r *JobRepo) Get(ctx context.Context, jobID int64) (model.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ?`

	job, err := scanJob(r.db.Reader.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncJob{}, fmt.Errorf("job %d: %w", jobID, driven.ErrNotFound)
	}
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("get job %d: %w", jobID, err)
	}

	return *job, nil
}

// CountPending returns the number of jobs waiting for a worker.
func (r *JobRepo) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM sync_jobs WHERE status = 'pending'`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func insertLogEntry(ctx context.Context, tx *sql.Tx, entry model.SyncLogEntry) error {
	const insert = `
		INSERT INTO sync_logs (id, user_id, github_repo_url, gitee_repo_url, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, insert,
		entry.ID, entry.UserID, entry.GitHubRepoURL, entry.GiteeRepoURL,
		string(entry.Status), entry.ErrorMessage, formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("append log entry for job %d: %w", entry.ID, err)
	}
	return nil
}

func scanJob(s scanner) (*model.SyncJob, error) {
	var job model.SyncJob
	var status, source, requestedAt string
	var startedAt, finishedAt sql.NullString

	err := s.Scan(&job.ID, &job.UserID, &job.SourceRepoURL, &job.DestinationRepoURL,
		&status, &job.ErrorMessage, &source, &requestedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.TriggerSource = model.TriggerSource(source)

	if job.RequestedAt, err = parseTime(requestedAt); err != nil {
		return nil, fmt.Errorf("parse requested_at: %w", err)
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	return &job, nil
}
