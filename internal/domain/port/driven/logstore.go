package driven

import (
	"context"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
)

// LogStore defines the read side of the sync log. Entries are appended only
// by JobStore.Finish and JobStore.FailSyncing.
type LogStore interface {
	// Query returns the user's log view newest first: terminal entries plus
	// provisional entries for in-flight jobs. limit <= 0 means no limit.
	Query(ctx context.Context, userID int64, filter model.StatusFilter, limit, offset int) ([]model.SyncLogEntry, error)
}
