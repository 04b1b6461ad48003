package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LogStore = (*LogRepo)(nil)

// LogRepo is the SQLite implementation of the LogStore port interface.
type LogRepo struct {
	db *DB
}

// NewLogRepo creates a new LogRepo backed by the given DB.
func NewLogRepo(db *DB) *LogRepo {
	return &LogRepo{db: db}
}

// Query returns terminal log entries unioned with the user's in-flight jobs,
// newest first. Both halves are read by a single statement, so a job is seen
// either as in-flight or as terminal with its entry, never both or neither.
func (r *LogRepo) Query(ctx context.Context, userID int64, filter model.StatusFilter, limit, offset int) ([]model.SyncLogEntry, error) {
	if filter == "" {
		filter = model.StatusFilterAll
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit.
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT id, user_id, github_repo_url, gitee_repo_url, status, error_message, created_at, updated_at
		FROM (
			SELECT id, user_id, github_repo_url, gitee_repo_url, status, error_message, created_at, updated_at
			FROM sync_logs
			WHERE user_id = ?
			UNION ALL
			SELECT id, user_id, source_repo_url, destination_repo_url, status, '', requested_at, COALESCE(started_at, requested_at)
			FROM sync_jobs
			WHERE user_id = ? AND status IN ('pending', 'syncing')
		)
		WHERE ? = 'all' OR status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID, userID, string(filter), string(filter), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query sync logs for user %d: %w", userID, err)
	}
	defer rows.Close()

	entries := []model.SyncLogEntry{}
	for rows.Next() {
		var entry model.SyncLogEntry
		var status, createdAt, updatedAt string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.GitHubRepoURL, &entry.GiteeRepoURL,
			&status, &entry.ErrorMessage, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		entry.Status = model.JobStatus(status)

		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for log %d: %w", entry.ID, err)
		}
		if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for log %d: %w", entry.ID, err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync logs: %w", err)
	}

	return entries, nil
}
