package model

// DashboardSummary aggregates a user's sync activity. Every field is derived
// from the sync log view; nothing here is stored.
type DashboardSummary struct {
	Total   int
	Active  int
	Queued  int
	Failed  int
	Heatmap []int // One level (0-4) per day, oldest first.
}

// RepoActivity is the per-repository slice of the same view: the status of
// the most recent attempt and a short daily activity strip.
type RepoActivity struct {
	LatestStatus JobStatus
	Daily        []int // Raw counts per day, oldest first.
}
