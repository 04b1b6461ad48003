package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
)

// JobStore defines the driven port for sync job persistence. All state
// transitions are conditional updates so that several processes may share
// one store without an in-memory lock.
type JobStore interface {
	// Create inserts a pending job. Returns ErrConflict if the user already has
	// an in-flight job for the same source repository.
	Create(ctx context.Context, job model.SyncJob) (model.SyncJob, error)

	// ClaimNext moves the oldest pending job to syncing and returns it.
	// Returns nil, nil when the queue is empty or another worker won the race.
	ClaimNext(ctx context.Context, now time.Time) (*model.SyncJob, error)

	// Finish moves a syncing job to a terminal status and appends its log
	// entry in the same transaction. Returns ErrNotFound if the job is not
	// currently syncing.
	Finish(ctx context.Context, jobID int64, status model.JobStatus, errorMessage string, now time.Time) (model.SyncLogEntry, error)

	// FailSyncing fails every job that has been syncing since before cutoff,
	// writing a log entry for each. A zero cutoff fails all syncing jobs.
	FailSyncing(ctx context.Context, cutoff time.Time, message string, now time.Time) ([]model.SyncLogEntry, error)

	// Get returns a job by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, jobID int64) (model.SyncJob, error)

	// CountPending returns the number of pending jobs across all users.
	CountPending(ctx context.Context) (int, error)
}
