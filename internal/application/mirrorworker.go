package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// DefaultMirrorTimeout bounds one mirror execution end to end.
const DefaultMirrorTimeout = 10 * time.Minute

// finishTimeout bounds the terminal write, which must happen even when the
// execution context is already canceled.
const finishTimeout = 10 * time.Second

// JobExecutor runs one claimed job to a terminal status.
type JobExecutor interface {
	Execute(ctx context.Context, job model.SyncJob) model.JobStatus
}

// Compile-time interface satisfaction check.
var _ JobExecutor = (*MirrorWorker)(nil)

// MirrorWorker executes a single sync job: it makes sure the destination
// exists on Gitee, transfers every ref, then records the terminal status and
// log entry in one store call. Failures end up in the job's error message and
// are never returned.
type MirrorWorker struct {
	creds    driven.CredentialStore
	jobs     driven.JobStore
	hosts    *HostRegistry
	mirrorer driven.Mirrorer
	events   driven.EventPublisher
	timeout  time.Duration
	now      func() time.Time
}

// NewMirrorWorker creates a MirrorWorker. A non-positive timeout uses
// DefaultMirrorTimeout. events may be nil.
func NewMirrorWorker(
	creds driven.CredentialStore,
	jobs driven.JobStore,
	hosts *HostRegistry,
	mirrorer driven.Mirrorer,
	events driven.EventPublisher,
	timeout time.Duration,
) *MirrorWorker {
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}
	return &MirrorWorker{
		creds:    creds,
		jobs:     jobs,
		hosts:    hosts,
		mirrorer: mirrorer,
		events:   events,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Timeout returns the per-job execution limit.
func (w *MirrorWorker) Timeout() time.Duration {
	return w.timeout
}

// Execute mirrors a job that is already in syncing state and returns the
// terminal status that was recorded.
func (w *MirrorWorker) Execute(ctx context.Context, job model.SyncJob) model.JobStatus {
	start := w.now()

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.mirror(runCtx, job)
	deadlineHit := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	status := model.JobStatusCompleted
	var message string
	if err != nil {
		status = model.JobStatusFailed
		message = failureMessage(err, deadlineHit, ctx.Err() != nil)
	}

	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer finishCancel()

	entry, finishErr := w.jobs.Finish(finishCtx, job.ID, status, message, w.now().UTC())
	if finishErr != nil {
		// The reaper fails the job later if it is still syncing.
		slog.Error("failed to record job outcome", "job_id", job.ID, "status", status, "error", finishErr)
		return status
	}

	job.Status = status
	job.ErrorMessage = message
	publish(w.events, job, entry.UpdatedAt)

	if status == model.JobStatusCompleted {
		slog.Info("sync job completed",
			"job_id", job.ID,
			"user_id", job.UserID,
			"source", job.SourceRepoURL,
			"duration", w.now().Sub(start).Round(time.Millisecond),
		)
	} else {
		slog.Warn("sync job failed",
			"job_id", job.ID,
			"user_id", job.UserID,
			"source", job.SourceRepoURL,
			"error", message,
		)
	}
	return status
}

func (w *MirrorWorker) mirror(ctx context.Context, job model.SyncJob) error {
	ghCred, err := w.creds.Get(ctx, job.UserID, model.PlatformGitHub)
	if err != nil {
		return fmt.Errorf("loading github credential: %w", err)
	}
	giteeCred, err := w.creds.Get(ctx, job.UserID, model.PlatformGitee)
	if err != nil {
		return fmt.Errorf("loading gitee credential: %w", err)
	}

	err = w.transfer(ctx, job, ghCred.AccessToken, giteeCred.AccessToken)
	if err != nil {
		return errors.New(redactTokens(err.Error(), ghCred.AccessToken, giteeCred.AccessToken))
	}
	return nil
}

func (w *MirrorWorker) transfer(ctx context.Context, job model.SyncJob, githubToken, giteeToken string) error {
	gitee, err := w.hosts.gitee()
	if err != nil {
		return err
	}

	owner, name, err := repoPathOf(job.DestinationRepoURL)
	if err != nil {
		return fmt.Errorf("parsing destination: %w", err)
	}

	description := "Mirrored from " + job.SourceRepoURL
	if err := gitee.EnsureRepo(ctx, giteeToken, owner, name, description); err != nil {
		return fmt.Errorf("ensuring gitee repository %s/%s: %w", owner, name, err)
	}

	source := driven.Remote{URL: job.SourceRepoURL, Token: githubToken}
	destination := driven.Remote{URL: job.DestinationRepoURL, Token: giteeToken}
	if err := w.mirrorer.Mirror(ctx, source, destination); err != nil {
		return fmt.Errorf("mirroring: %w", err)
	}
	return nil
}

// failureMessage renders err for the job record. Deadline failures carry a
// "timeout:" prefix so they can be told apart from upstream errors.
func failureMessage(err error, deadlineHit, shuttingDown bool) string {
	msg := err.Error()
	switch {
	case deadlineHit:
		if !strings.HasPrefix(msg, "timeout:") {
			msg = "timeout: " + msg
		}
	case shuttingDown:
		msg = "interrupted: " + msg
	}
	return msg
}

// redactTokens removes every non-empty token from s.
func redactTokens(s string, tokens ...string) string {
	for _, t := range tokens {
		if t != "" {
			s = strings.ReplaceAll(s, t, "***")
		}
	}
	return s
}
