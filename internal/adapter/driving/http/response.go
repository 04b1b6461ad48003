package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/application"
	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps a service error kind to its HTTP status. Unclassified
// errors are logged in full and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, driven.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, driven.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, driven.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, driven.ErrAuthExpired):
		writeError(w, http.StatusUnauthorized, "linked account authorization expired; relink the account")
	case errors.Is(err, driven.ErrUpstreamUnavailable):
		logger.Warn(op+" failed upstream", "error", err)
		writeError(w, http.StatusBadGateway, "upstream service unavailable")
	case errors.Is(err, driven.ErrTimeout):
		logger.Warn(op+" timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// messageResponse carries a human readable outcome.
type messageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
	TaskID  int64  `json:"task_id,omitempty"`
}

// LinkStatusResponse is the JSON representation of a user's linked accounts.
type LinkStatusResponse struct {
	GitHubLinked   bool    `json:"github_linked"`
	GiteeLinked    bool    `json:"gitee_linked"`
	GitHubUsername *string `json:"github_username"`
	GiteeUsername  *string `json:"gitee_username"`
}

// LinkedUserResponse is returned after a manual link.
type LinkedUserResponse struct {
	ID             int64   `json:"id"`
	GitHubUsername *string `json:"github_username"`
	GiteeUsername  *string `json:"gitee_username"`
}

// LinkRequest is the JSON body for the manual link endpoint.
type LinkRequest struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	Platform    string `json:"platform" validate:"required,oneof=github gitee"`
	Username    string `json:"username" validate:"required,max=100"`
	AccessToken string `json:"access_token" validate:"required,max=1024"`
}

// TriggerRequest is the JSON body for the sync trigger endpoint.
type TriggerRequest struct {
	UserID        int64  `json:"user_id" validate:"required,gt=0"`
	GitHubRepoURL string `json:"github_repo_url" validate:"required,url,startswith=https://"`
}

// TriggerResponse acknowledges a queued sync job.
type TriggerResponse struct {
	TaskID  int64  `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RepoInfoResponse is one repository of the linked GitHub account, decorated
// with the state of its sync activity.
type RepoInfoResponse struct {
	Name            string  `json:"name"`
	FullName        string  `json:"full_name"`
	HTMLURL         string  `json:"html_url"`
	Description     *string `json:"description"`
	DescriptionHTML string  `json:"description_html"`
	Private         bool    `json:"private"`
	CloneURL        string  `json:"clone_url"`
	SyncStatus      *string `json:"sync_status"`
	ActivityData    []int   `json:"activity_data"`
}

// DashboardResponse is the JSON representation of the dashboard summary.
type DashboardResponse struct {
	Stats       DashboardStats `json:"stats"`
	HeatmapData []int          `json:"heatmapData"`
}

// DashboardStats holds the dashboard counters.
type DashboardStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Queued int `json:"queued"`
	Failed int `json:"failed"`
}

// SyncLogResponse is the JSON representation of one sync log entry.
type SyncLogResponse struct {
	ID            int64   `json:"id"`
	GitHubRepoURL string  `json:"github_repo_url"`
	GiteeRepoURL  string  `json:"gitee_repo_url"`
	Status        string  `json:"status"`
	ErrorMessage  *string `json:"error_message"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     *string `json:"updated_at"`
}

// JobEventResponse is one message on the events WebSocket.
type JobEventResponse struct {
	JobID         int64  `json:"job_id"`
	GitHubRepoURL string `json:"github_repo_url"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message,omitempty"`
	At            string `json:"at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// optional returns nil for the empty string so it encodes as JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toLinkStatusResponse converts a domain LinkStatus to its JSON representation.
func toLinkStatusResponse(s model.LinkStatus) LinkStatusResponse {
	return LinkStatusResponse{
		GitHubLinked:   s.GitHubLinked,
		GiteeLinked:    s.GiteeLinked,
		GitHubUsername: optional(s.GitHubUsername),
		GiteeUsername:  optional(s.GiteeUsername),
	}
}

// toRepoInfoResponse decorates a repository with its sync activity. A
// repository that was never synced has a null status and an all-zero strip.
func toRepoInfoResponse(repo model.RepoSummary, activity model.RepoActivity, known bool) RepoInfoResponse {
	resp := RepoInfoResponse{
		Name:            repo.Name,
		FullName:        repo.FullName,
		HTMLURL:         repo.HTMLURL,
		Description:     optional(repo.Description),
		DescriptionHTML: renderDescription(repo.Description),
		Private:         repo.Private,
		CloneURL:        repo.CloneURL,
		ActivityData:    make([]int, application.ActivityDays),
	}
	if known {
		resp.SyncStatus = optional(string(activity.LatestStatus))
		copy(resp.ActivityData, activity.Daily)
	}
	return resp
}

// toDashboardResponse converts a domain DashboardSummary to its JSON representation.
func toDashboardResponse(s model.DashboardSummary) DashboardResponse {
	heatmap := s.Heatmap
	if heatmap == nil {
		heatmap = []int{}
	}
	return DashboardResponse{
		Stats: DashboardStats{
			Total:  s.Total,
			Active: s.Active,
			Queued: s.Queued,
			Failed: s.Failed,
		},
		HeatmapData: heatmap,
	}
}

// toSyncLogResponse converts a domain SyncLogEntry to its JSON representation.
// In-flight entries have no update time yet.
func toSyncLogResponse(e model.SyncLogEntry) SyncLogResponse {
	resp := SyncLogResponse{
		ID:            e.ID,
		GitHubRepoURL: e.GitHubRepoURL,
		GiteeRepoURL:  e.GiteeRepoURL,
		Status:        string(e.Status),
		ErrorMessage:  optional(e.ErrorMessage),
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.Status.IsTerminal() && !e.UpdatedAt.IsZero() {
		updated := e.UpdatedAt.UTC().Format(time.RFC3339)
		resp.UpdatedAt = &updated
	}
	return resp
}

// toJobEventResponse converts a domain JobEvent to its JSON representation.
func toJobEventResponse(e model.JobEvent) JobEventResponse {
	return JobEventResponse{
		JobID:         e.JobID,
		GitHubRepoURL: e.SourceRepoURL,
		Status:        string(e.Status),
		ErrorMessage:  e.ErrorMessage,
		At:            e.At.UTC().Format(time.RFC3339),
	}
}
