package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Defaults for WorkerPool.
const (
	DefaultWorkers      = 4
	DefaultPollInterval = 5 * time.Second
	reapGrace           = time.Minute
)

const (
	interruptedMessage = "interrupted: process stopped while the job was syncing"
	reapedMessage      = "timeout: job exceeded the mirror timeout and was reaped"
)

// WorkerPool runs a fixed number of workers that claim pending jobs. Workers
// wake on a queue signal and also poll, because other processes may insert
// jobs into the shared store.
type WorkerPool struct {
	jobs         driven.JobStore
	executor     JobExecutor
	events       driven.EventPublisher
	wake         <-chan struct{}
	size         int
	pollInterval time.Duration
	reapAfter    time.Duration
	now          func() time.Time
}

// NewWorkerPool creates a WorkerPool. Jobs syncing for longer than
// mirrorTimeout plus a grace period are failed by a periodic reaper.
func NewWorkerPool(
	jobs driven.JobStore,
	executor JobExecutor,
	events driven.EventPublisher,
	wake <-chan struct{},
	size int,
	pollInterval time.Duration,
	mirrorTimeout time.Duration,
) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkers
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if mirrorTimeout <= 0 {
		mirrorTimeout = DefaultMirrorTimeout
	}
	return &WorkerPool{
		jobs:         jobs,
		executor:     executor,
		events:       events,
		wake:         wake,
		size:         size,
		pollInterval: pollInterval,
		reapAfter:    mirrorTimeout + reapGrace,
		now:          time.Now,
	}
}

// Start recovers jobs orphaned by a previous process, then runs the workers
// and the reaper. It blocks until ctx is canceled and every in-progress job
// has been recorded.
func (p *WorkerPool) Start(ctx context.Context) {
	p.Recover(ctx)

	var wg sync.WaitGroup
	for i := range p.size {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, i)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reapLoop(ctx)
	}()

	slog.Info("worker pool started", "workers", p.size, "poll_interval", p.pollInterval)
	wg.Wait()
	slog.Info("worker pool stopped")
}

// Recover fails every job left syncing. Only one process may run workers
// against a store, so at startup nothing can legitimately be syncing.
func (p *WorkerPool) Recover(ctx context.Context) {
	entries, err := p.jobs.FailSyncing(ctx, time.Time{}, interruptedMessage, p.now().UTC())
	if err != nil {
		slog.Error("failed to recover interrupted jobs", "error", err)
		return
	}
	if len(entries) > 0 {
		slog.Warn("recovered interrupted jobs", "count", len(entries))
	}
	p.publishEntries(entries)
}

// Reap fails jobs syncing since before the reap deadline.
func (p *WorkerPool) Reap(ctx context.Context) {
	now := p.now().UTC()
	entries, err := p.jobs.FailSyncing(ctx, now.Add(-p.reapAfter), reapedMessage, now)
	if err != nil {
		slog.Error("failed to reap stuck jobs", "error", err)
		return
	}
	if len(entries) > 0 {
		slog.Warn("reaped stuck jobs", "count", len(entries))
	}
	p.publishEntries(entries)
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx, id)

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

// drain claims and executes jobs until the queue is empty or ctx is done.
func (p *WorkerPool) drain(ctx context.Context, id int) {
	for ctx.Err() == nil {
		job, err := p.jobs.ClaimNext(ctx, p.now().UTC())
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("failed to claim job", "worker", id, "error", err)
			}
			return
		}
		if job == nil {
			return
		}

		slog.Info("sync job claimed", "worker", id, "job_id", job.ID, "source", job.SourceRepoURL)
		publish(p.events, *job, job.StartedAt)

		p.executor.Execute(ctx, *job)
	}
}

func (p *WorkerPool) reapLoop(ctx context.Context) {
	interval := p.reapAfter / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Reap(ctx)
		}
	}
}

func (p *WorkerPool) publishEntries(entries []model.SyncLogEntry) {
	for _, e := range entries {
		publish(p.events, model.SyncJob{
			ID:            e.ID,
			UserID:        e.UserID,
			SourceRepoURL: e.GitHubRepoURL,
			Status:        e.Status,
			ErrorMessage:  e.ErrorMessage,
		}, e.UpdatedAt)
	}
}
