package httphandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// ListGitHubRepos returns the repositories of the user's linked GitHub
// account, each decorated with its latest sync status and daily activity.
// refresh=true bypasses the listing cache.
func (h *Handler) ListGitHubRepos(w http.ResponseWriter, r *http.Request) {
	if h.svc.Repos == nil {
		unavailable(w, "repository listing")
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	force := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		force = v
	}

	repos, err := h.svc.Repos.List(r.Context(), userID, force)
	if err != nil {
		writeServiceError(w, h.logger, "list github repos", err)
		return
	}

	// Activity is decoration; a failed lookup degrades to undecorated repos.
	var activity map[string]model.RepoActivity
	if h.svc.Dashboard != nil {
		activity, err = h.svc.Dashboard.RepoActivity(r.Context(), userID)
		if err != nil {
			h.logger.Warn("repo activity unavailable", "user_id", userID, "error", err)
		}
	}

	resp := make([]RepoInfoResponse, 0, len(repos))
	for _, repo := range repos {
		a, known := activity[strings.ToLower(repo.CloneURL)]
		resp = append(resp, toRepoInfoResponse(repo, a, known))
	}

	writeJSON(w, http.StatusOK, resp)
}

// TriggerSync enqueues a mirror of one GitHub repository.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.svc.Queue == nil {
		unavailable(w, "sync queue")
		return
	}

	var req TriggerRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	job, err := h.svc.Queue.Trigger(r.Context(), req.UserID, req.GitHubRepoURL, model.TriggerManual)
	if err != nil {
		if errors.Is(err, driven.ErrConflict) {
			writeError(w, http.StatusConflict, "a sync for this repository is already queued or in progress")
			return
		}
		writeServiceError(w, h.logger, "trigger sync", err)
		return
	}

	writeJSON(w, http.StatusOK, TriggerResponse{
		TaskID:  job.ID,
		Status:  "queued",
		Message: "Sync task has been added to the queue",
	})
}

// Dashboard returns the user's sync counters and contribution heatmap.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.svc.Dashboard == nil {
		unavailable(w, "dashboard")
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.Dashboard.Summarize(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "dashboard", err)
		return
	}

	writeJSON(w, http.StatusOK, toDashboardResponse(summary))
}

// ListLogs returns one page of the user's sync log, newest first.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if h.svc.Logs == nil {
		unavailable(w, "sync logs")
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.svc.Logs.Query(r.Context(), userID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, "list sync logs", err)
		return
	}

	resp := make([]SyncLogResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toSyncLogResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}
