package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

var jobTestTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newJob(userID int64, source string, requestedAt time.Time) model.SyncJob {
	return model.SyncJob{
		UserID:             userID,
		SourceRepoURL:      source,
		DestinationRepoURL: "https://gitee.com/mayun/" + source[len(source)-5:],
		TriggerSource:      model.TriggerManual,
		RequestedAt:        requestedAt,
	}
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.JobStatusPending, created.Status)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.SourceRepoURL, got.SourceRepoURL)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, model.TriggerManual, got.TriggerSource)
	assert.True(t, got.RequestedAt.Equal(jobTestTime))
	assert.True(t, got.StartedAt.IsZero())
}

func TestJobRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)

	_, err := repo.Get(context.Background(), 999)
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestJobRepo_DuplicateInFlightConflicts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	first, err := repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.ErrorIs(t, err, driven.ErrConflict)

	// Still a conflict once the first job is syncing.
	claimed, err := repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)

	_, err = repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.ErrorIs(t, err, driven.ErrConflict)

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSyncing, got.Status, "first job unaffected")

	// Other users and other repos are independent.
	_, err = repo.Create(ctx, newJob(2, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newJob(1, "https://github.com/a/c.git", jobTestTime))
	require.NoError(t, err)
}

func TestJobRepo_NewJobAllowedAfterTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)
	claimed, err := repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)
	_, err = repo.Finish(ctx, claimed.ID, model.JobStatusFailed, "boom", jobTestTime.Add(time.Minute))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime.Add(2*time.Minute)))
	assert.NoError(t, err)
}

func TestJobRepo_ClaimNextFIFO(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	a, err := repo.Create(ctx, newJob(1, "https://github.com/a/aaaaa", jobTestTime))
	require.NoError(t, err)
	b, err := repo.Create(ctx, newJob(1, "https://github.com/a/bbbbb", jobTestTime))
	require.NoError(t, err)

	first, err := repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, a.ID, first.ID)
	assert.Equal(t, model.JobStatusSyncing, first.Status)
	assert.True(t, first.StartedAt.Equal(jobTestTime))

	second, err := repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, b.ID, second.ID)

	none, err := repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Two handles on one file stand in for two server processes sharing the database.
func TestJobRepo_ConcurrentClaimsTakeEachJobOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mirror.db")

	var handles []*DB
	for range 2 {
		db, err := NewDB(ctx, path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		handles = append(handles, db)
	}
	require.NoError(t, RunMigrations(handles[0].Writer))

	const jobs = 20
	seed := NewJobRepo(handles[0])
	for i := range jobs {
		_, err := seed.Create(ctx, newJob(1, fmt.Sprintf("https://github.com/a/repo%02d", i), jobTestTime))
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		errs    []error
		wg      sync.WaitGroup
	)
	for _, db := range handles {
		repo := NewJobRepo(db)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := repo.ClaimNext(ctx, jobTestTime)
					if err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
						return
					}
					if job == nil {
						return
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %d claimed %d times", id, n)
	}

	n, err := seed.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobRepo_FinishWritesExactlyOneLog(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)
	_, err = repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)

	finishedAt := jobTestTime.Add(time.Minute)
	entry, err := repo.Finish(ctx, job.ID, model.JobStatusCompleted, "", finishedAt)
	require.NoError(t, err)
	assert.Equal(t, job.ID, entry.ID)
	assert.Equal(t, model.JobStatusCompleted, entry.Status)
	assert.True(t, entry.CreatedAt.Equal(jobTestTime))
	assert.True(t, entry.UpdatedAt.Equal(finishedAt))

	// A second finish is rejected and does not append another entry.
	_, err = repo.Finish(ctx, job.ID, model.JobStatusFailed, "late", finishedAt)
	require.ErrorIs(t, err, driven.ErrNotFound)

	var count int
	require.NoError(t, db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_logs WHERE id = ?`, job.ID).Scan(&count))
	assert.Equal(t, 1, count)

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.True(t, got.FinishedAt.Equal(finishedAt))
}

func TestJobRepo_FinishRequiresSyncing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)

	_, err = repo.Finish(ctx, job.ID, model.JobStatusCompleted, "", jobTestTime)
	assert.ErrorIs(t, err, driven.ErrNotFound, "pending jobs cannot skip syncing")

	_, err = repo.Finish(ctx, job.ID, model.JobStatusSyncing, "", jobTestTime)
	assert.ErrorIs(t, err, driven.ErrInvalidInput)
}

func TestJobRepo_FailSyncing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	old, err := repo.Create(ctx, newJob(1, "https://github.com/a/aaaaa", jobTestTime))
	require.NoError(t, err)
	_, err = repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)

	recent, err := repo.Create(ctx, newJob(1, "https://github.com/a/bbbbb", jobTestTime))
	require.NoError(t, err)
	_, err = repo.ClaimNext(ctx, jobTestTime.Add(30*time.Minute))
	require.NoError(t, err)

	entries, err := repo.FailSyncing(ctx, jobTestTime.Add(15*time.Minute), "timeout: stuck", jobTestTime.Add(40*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, old.ID, entries[0].ID)
	assert.Equal(t, "timeout: stuck", entries[0].ErrorMessage)

	got, err := repo.Get(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSyncing, got.Status)

	// Zero cutoff fails everything still syncing.
	entries, err = repo.FailSyncing(ctx, time.Time{}, "interrupted", jobTestTime.Add(41*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, recent.ID, entries[0].ID)
}

func TestJobRepo_TerminalStatusIsFinal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newJob(1, "https://github.com/a/b.git", jobTestTime))
	require.NoError(t, err)
	_, err = repo.ClaimNext(ctx, jobTestTime)
	require.NoError(t, err)
	_, err = repo.Finish(ctx, job.ID, model.JobStatusFailed, "x", jobTestTime)
	require.NoError(t, err)

	_, err = db.Writer.ExecContext(ctx, `UPDATE sync_jobs SET status = 'completed' WHERE id = ?`, job.ID)
	assert.Error(t, err, "trigger must reject leaving a terminal status")

	_, err = db.Writer.ExecContext(ctx, `DELETE FROM sync_logs WHERE id = ?`, job.ID)
	assert.Error(t, err, "sync_logs is append-only")
}
