package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Paging bounds for log queries.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// LogService validates log queries against the sync log view.
type LogService struct {
	logs driven.LogStore
}

// NewLogService creates a LogService.
func NewLogService(logs driven.LogStore) *LogService {
	return &LogService{logs: logs}
}

// Query returns the user's log entries newest first. An empty status means
// all; limit 0 means DefaultLogLimit.
func (s *LogService) Query(ctx context.Context, userID int64, status string, limit, offset int) ([]model.SyncLogEntry, error) {
	filter, ok := model.ParseStatusFilter(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status filter %q", driven.ErrInvalidInput, status)
	}
	if limit == 0 {
		limit = DefaultLogLimit
	}
	if limit < 0 || limit > MaxLogLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", driven.ErrInvalidInput, MaxLogLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", driven.ErrInvalidInput)
	}

	entries, err := s.logs.Query(ctx, userID, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying logs for user %d: %w", userID, err)
	}
	return entries, nil
}
