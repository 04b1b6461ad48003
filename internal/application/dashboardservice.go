package application

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Window sizes for derived activity views.
const (
	HeatmapDays  = 120
	ActivityDays = 21
)

// DashboardService derives counters and activity views from the sync log
// view on every call. Nothing it returns is stored.
type DashboardService struct {
	logs driven.LogStore
	now  func() time.Time
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(logs driven.LogStore) *DashboardService {
	return &DashboardService{logs: logs, now: time.Now}
}

// Summarize counts the user's log view and builds the heatmap.
func (s *DashboardService) Summarize(ctx context.Context, userID int64) (model.DashboardSummary, error) {
	entries, err := s.logs.Query(ctx, userID, model.StatusFilterAll, 0, 0)
	if err != nil {
		return model.DashboardSummary{}, fmt.Errorf("loading log view for user %d: %w", userID, err)
	}

	summary := model.DashboardSummary{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case model.JobStatusSyncing:
			summary.Active++
		case model.JobStatusPending:
			summary.Queued++
		case model.JobStatusFailed:
			summary.Failed++
		}
	}

	summary.Heatmap = HeatmapLevels(DailyCounts(entries, s.now(), HeatmapDays))
	return summary, nil
}

// RepoActivity returns, per lowercased source repository URL, the latest
// status and a daily activity strip over ActivityDays.
func (s *DashboardService) RepoActivity(ctx context.Context, userID int64) (map[string]model.RepoActivity, error) {
	entries, err := s.logs.Query(ctx, userID, model.StatusFilterAll, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("loading log view for user %d: %w", userID, err)
	}

	today := utcDay(s.now())
	activity := make(map[string]model.RepoActivity)

	// Entries arrive newest first, so the first one seen per repository is its latest.
	for _, e := range entries {
		key := strings.ToLower(e.GitHubRepoURL)
		a, ok := activity[key]
		if !ok {
			a = model.RepoActivity{LatestStatus: e.Status, Daily: make([]int, ActivityDays)}
		}
		if i, in := dayIndex(today, e.CreatedAt, ActivityDays); in {
			a.Daily[i]++
		}
		activity[key] = a
	}
	return activity, nil
}

// DailyCounts buckets entries by UTC calendar day of CreatedAt over the days
// ending on now's day. Index 0 is the oldest day; the last index is today.
func DailyCounts(entries []model.SyncLogEntry, now time.Time, days int) []int {
	counts := make([]int, days)
	today := utcDay(now)
	for _, e := range entries {
		if i, ok := dayIndex(today, e.CreatedAt, days); ok {
			counts[i]++
		}
	}
	return counts
}

// HeatmapLevels maps raw daily counts to levels 0-4. Zero stays 0; a nonzero
// count gets the quartile of the nonzero distribution it falls in, computed
// as ceil(4 * rank / n) where rank is how many nonzero counts are <= it.
// Equal counts always share a level and the busiest day is always level 4.
func HeatmapLevels(counts []int) []int {
	var nonzero []int
	for _, c := range counts {
		if c > 0 {
			nonzero = append(nonzero, c)
		}
	}
	slices.Sort(nonzero)
	n := len(nonzero)

	levels := make([]int, len(counts))
	for i, c := range counts {
		if c == 0 {
			continue
		}
		rank := sort.SearchInts(nonzero, c+1)
		levels[i] = (4*rank + n - 1) / n
	}
	return levels
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayIndex places t within a window of days ending on today.
func dayIndex(today, t time.Time, days int) (int, bool) {
	ago := int(today.Sub(utcDay(t)).Hours() / 24)
	if ago < 0 || ago >= days {
		return 0, false
	}
	return days - 1 - ago, true
}
