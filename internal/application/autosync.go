package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// DefaultAutoSyncSchedule runs the nightly sync at 02:00. The expression
// includes a seconds field.
const DefaultAutoSyncSchedule = "0 0 2 * * *"

// AutoSyncService periodically triggers a sync of every repository owned by
// users who have linked both accounts.
type AutoSyncService struct {
	creds  driven.CredentialStore
	lister *RepoLister
	queue  *SyncQueue
	cron   *cron.Cron
}

// NewAutoSyncService creates an AutoSyncService. Call Schedule to register
// the cron expression before Start.
func NewAutoSyncService(creds driven.CredentialStore, lister *RepoLister, queue *SyncQueue) *AutoSyncService {
	return &AutoSyncService{
		creds:  creds,
		lister: lister,
		queue:  queue,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(time.Local)),
	}
}

// Schedule registers RunOnce under spec. ctx bounds every scheduled run.
func (s *AutoSyncService) Schedule(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			slog.Error("auto-sync run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: invalid auto-sync schedule %q: %w", driven.ErrInvalidInput, spec, err)
	}

	slog.Info("auto-sync scheduled", "schedule", spec)
	return nil
}

// Start runs the scheduler until ctx is canceled, then waits for a running
// job to finish.
func (s *AutoSyncService) Start(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("auto-sync scheduler stopped")
}

// RunOnce triggers every repository of every fully linked user. Users are
// processed one at a time; a failure for one user does not stop the run.
func (s *AutoSyncService) RunOnce(ctx context.Context) error {
	start := time.Now()

	users, err := s.creds.ListFullyLinkedUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing fully linked users: %w", err)
	}

	var queued, skipped, userErrors int
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		q, sk, err := s.syncUser(ctx, userID)
		queued += q
		skipped += sk
		if err != nil {
			slog.Error("auto-sync failed for user", "user_id", userID, "error", err)
			userErrors++
		}
	}

	slog.Info("auto-sync run complete",
		"users", len(users),
		"queued", queued,
		"skipped", skipped,
		"errors", userErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (s *AutoSyncService) syncUser(ctx context.Context, userID int64) (queued, skipped int, err error) {
	repos, err := s.lister.List(ctx, userID, true)
	if err != nil {
		return 0, 0, err
	}

	for _, repo := range repos {
		_, err := s.queue.Trigger(ctx, userID, repo.CloneURL, model.TriggerSchedule)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, driven.ErrConflict):
			skipped++
		case errors.Is(err, driven.ErrNotFound):
			// Unlinked while the run was in progress.
			return queued, skipped, nil
		default:
			slog.Warn("auto-sync trigger failed", "user_id", userID, "repo", repo.FullName, "error", err)
		}
	}
	return queued, skipped, nil
}
