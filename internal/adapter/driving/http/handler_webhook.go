package httphandler

import (
	"errors"
	"net/http"

	"github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// GitHubWebhook queues a sync for the pushed repository. Events other than
// push are acknowledged and ignored. When a webhook secret is configured the
// X-Hub-Signature-256 header must match the payload.
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if h.svc.Queue == nil {
		unavailable(w, "sync queue")
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := github.ValidatePayload(r, h.webhookSecret)
	if err != nil {
		h.logger.Warn("webhook rejected", "user_id", userID, "error", err)
		if h.webhookSecret != nil {
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	eventType := github.WebHookType(r)
	if eventType != "push" {
		writeJSON(w, http.StatusOK, messageResponse{Message: "Event ignored: " + eventType})
		return
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid push payload")
		return
	}
	push, ok := event.(*github.PushEvent)
	if !ok || push.GetRepo().GetCloneURL() == "" {
		writeError(w, http.StatusBadRequest, "push payload has no repository clone_url")
		return
	}

	job, err := h.svc.Queue.Trigger(r.Context(), userID, push.GetRepo().GetCloneURL(), model.TriggerWebhook)
	if err != nil {
		if errors.Is(err, driven.ErrConflict) {
			writeJSON(w, http.StatusOK, messageResponse{Message: "Sync already in progress"})
			return
		}
		writeServiceError(w, h.logger, "webhook trigger", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Sync task queued from webhook",
		TaskID:  job.ID,
	})
}
