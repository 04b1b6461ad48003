package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteemirror/internal/application"
	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

func TestLogService_Defaults(t *testing.T) {
	store := &mockLogStore{}
	svc := application.NewLogService(store)

	_, err := svc.Query(context.Background(), 1, "", 0, 0)
	require.NoError(t, err)

	require.Len(t, store.calls, 1)
	assert.Equal(t, logQuery{filter: model.StatusFilterAll, limit: 50, offset: 0}, store.calls[0])
}

func TestLogService_PassesFilter(t *testing.T) {
	store := &mockLogStore{entries: []model.SyncLogEntry{
		{ID: 2, Status: model.JobStatusFailed},
		{ID: 1, Status: model.JobStatusCompleted},
	}}
	svc := application.NewLogService(store)

	got, err := svc.Query(context.Background(), 1, "failed", 10, 5)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, logQuery{filter: model.StatusFilter("failed"), limit: 10, offset: 5}, store.calls[0])
}

func TestLogService_RejectsInvalidInput(t *testing.T) {
	svc := application.NewLogService(&mockLogStore{})

	tests := []struct {
		name   string
		status string
		limit  int
		offset int
	}{
		{name: "unknown status", status: "done"},
		{name: "negative limit", limit: -1},
		{name: "limit over max", limit: 501},
		{name: "negative offset", offset: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Query(context.Background(), 1, tt.status, tt.limit, tt.offset)
			assert.ErrorIs(t, err, driven.ErrInvalidInput)
		})
	}
}
