// Package application contains the mirror use cases: account linking,
// repository listing, the sync queue and its workers, and log reporting.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// SyncQueue admits sync requests. Deduplication is enforced by the job store,
// so a trigger racing another process for the same repository still yields
// exactly one in-flight job.
type SyncQueue struct {
	creds  driven.CredentialStore
	jobs   driven.JobStore
	hosts  *HostRegistry
	events driven.EventPublisher
	wake   chan struct{}
	now    func() time.Time
}

// NewSyncQueue creates a SyncQueue. events may be nil.
func NewSyncQueue(
	creds driven.CredentialStore,
	jobs driven.JobStore,
	hosts *HostRegistry,
	events driven.EventPublisher,
) *SyncQueue {
	return &SyncQueue{
		creds:  creds,
		jobs:   jobs,
		hosts:  hosts,
		events: events,
		wake:   make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Trigger enqueues a mirror of sourceURL for the user. Returns ErrInvalidInput
// for a malformed URL, ErrNotFound when either account is unlinked and
// ErrConflict when the repository already has an in-flight job.
func (q *SyncQueue) Trigger(ctx context.Context, userID int64, sourceURL string, source model.TriggerSource) (model.SyncJob, error) {
	github, err := q.hosts.github()
	if err != nil {
		return model.SyncJob{}, err
	}
	owner, name, err := ParseRepoURL(sourceURL, github.WebHost())
	if err != nil {
		return model.SyncJob{}, err
	}
	sourceURL = normalizeSourceURL(github, owner, name)

	if _, err := q.creds.Get(ctx, userID, model.PlatformGitHub); err != nil {
		return model.SyncJob{}, fmt.Errorf("github account for user %d: %w", userID, err)
	}
	giteeCred, err := q.creds.Get(ctx, userID, model.PlatformGitee)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("gitee account for user %d: %w", userID, err)
	}

	gitee, err := q.hosts.gitee()
	if err != nil {
		return model.SyncJob{}, err
	}

	job, err := q.jobs.Create(ctx, model.SyncJob{
		UserID:             userID,
		SourceRepoURL:      sourceURL,
		DestinationRepoURL: gitee.CloneURL(giteeCred.Username, name),
		Status:             model.JobStatusPending,
		TriggerSource:      source,
		RequestedAt:        q.now().UTC(),
	})
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("enqueueing %s for user %d: %w", sourceURL, userID, err)
	}

	slog.Info("sync job queued",
		"job_id", job.ID,
		"user_id", userID,
		"source", job.SourceRepoURL,
		"destination", job.DestinationRepoURL,
		"trigger", source,
	)

	publish(q.events, job, job.RequestedAt)
	q.Notify()
	return job, nil
}

// Notify wakes one idle worker without blocking. Extra signals coalesce.
func (q *SyncQueue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wakeups is the channel workers wait on for new work.
func (q *SyncQueue) Wakeups() <-chan struct{} {
	return q.wake
}

// normalizeSourceURL rewrites a repository to the clone URL form GitHub
// reports, lowercased, so deduplication and listing decoration see one
// spelling. GitHub owner and repository names are case-insensitive.
func normalizeSourceURL(github driven.Host, owner, name string) string {
	return github.CloneURL(strings.ToLower(owner), strings.ToLower(name))
}

// publish sends a job event when a publisher is configured.
func publish(events driven.EventPublisher, job model.SyncJob, at time.Time) {
	if events == nil {
		return
	}
	events.Publish(model.JobEvent{
		JobID:         job.ID,
		UserID:        job.UserID,
		SourceRepoURL: job.SourceRepoURL,
		Status:        job.Status,
		ErrorMessage:  job.ErrorMessage,
		At:            at,
	})
}
