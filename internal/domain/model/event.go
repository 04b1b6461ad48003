package model

import "time"

// JobEvent is published whenever a sync job changes status.
type JobEvent struct {
	JobID         int64     `json:"job_id"`
	UserID        int64     `json:"user_id"`
	SourceRepoURL string    `json:"github_repo_url"`
	Status        JobStatus `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	At            time.Time `json:"at"`
}
