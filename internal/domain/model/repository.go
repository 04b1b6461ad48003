package model

import "time"

// RepoSummary describes one repository owned by a linked account.
type RepoSummary struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	CloneURL    string `json:"clone_url"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

// RepoListing is a cached snapshot of a user's repositories.
type RepoListing struct {
	UserID    int64         `json:"user_id"`
	FetchedAt time.Time     `json:"fetched_at"`
	Repos     []RepoSummary `json:"repos"`
}

// IsFresh reports whether the listing is younger than ttl at now.
func (l RepoListing) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.FetchedAt) < ttl
}
