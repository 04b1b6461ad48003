package model

import "time"

// JobStatus is the lifecycle state of a sync job. Transitions only move
// forward: pending -> syncing -> completed | failed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSyncing   JobStatus = "syncing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsInFlight reports whether s counts against the one-in-flight-per-repo limit.
func (s JobStatus) IsInFlight() bool {
	return s == JobStatusPending || s == JobStatusSyncing
}

// TriggerSource records what created a job.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerWebhook  TriggerSource = "webhook"
	TriggerSchedule TriggerSource = "schedule"
)

// SyncJob is one request to mirror a source repository to its destination.
type SyncJob struct {
	ID                 int64
	UserID             int64
	SourceRepoURL      string
	DestinationRepoURL string
	Status             JobStatus
	ErrorMessage       string
	TriggerSource      TriggerSource
	RequestedAt        time.Time
	StartedAt          time.Time // Zero until claimed by a worker.
	FinishedAt         time.Time // Zero until terminal.
}
