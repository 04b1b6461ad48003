package model

import "time"

// SyncLogEntry is the immutable record of a sync attempt. ID equals the
// originating job's ID. Entries for in-flight jobs are provisional
// projections of the job row and are replaced by the real entry once the job
// reaches a terminal status.
type SyncLogEntry struct {
	ID            int64
	UserID        int64
	GitHubRepoURL string
	GiteeRepoURL  string
	Status        JobStatus
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusFilter narrows a log query. StatusFilterAll matches every entry.
type StatusFilter string

const StatusFilterAll StatusFilter = "all"

// ParseStatusFilter accepts "", "all", or any JobStatus value.
func ParseStatusFilter(s string) (StatusFilter, bool) {
	switch s {
	case "", string(StatusFilterAll):
		return StatusFilterAll, true
	case string(JobStatusPending), string(JobStatusSyncing), string(JobStatusCompleted), string(JobStatusFailed):
		return StatusFilter(s), true
	default:
		return "", false
	}
}

// Matches reports whether an entry with the given status passes the filter.
func (f StatusFilter) Matches(status JobStatus) bool {
	return f == StatusFilterAll || JobStatus(f) == status
}
