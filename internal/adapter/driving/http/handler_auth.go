package httphandler

import (
	"net/http"
	"strconv"
)

// LinkStatus reports which accounts the user has linked.
func (h *Handler) LinkStatus(w http.ResponseWriter, r *http.Request) {
	if h.svc.Credentials == nil {
		unavailable(w, "account linking")
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	status, err := h.svc.Credentials.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "link status", err)
		return
	}

	writeJSON(w, http.StatusOK, toLinkStatusResponse(status))
}

// Link stores a manually supplied access token for one platform.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	if h.svc.Credentials == nil {
		unavailable(w, "account linking")
		return
	}

	var req LinkRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if _, err := h.svc.Credentials.Link(r.Context(), req.UserID, req.Platform, req.Username, req.AccessToken); err != nil {
		writeServiceError(w, h.logger, "link account", err)
		return
	}

	status, err := h.svc.Credentials.Status(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "link status", err)
		return
	}

	writeJSON(w, http.StatusCreated, LinkedUserResponse{
		ID:             req.UserID,
		GitHubUsername: optional(status.GitHubUsername),
		GiteeUsername:  optional(status.GiteeUsername),
	})
}

// Unlink removes the user's credential for a platform. Unlinking an account
// that was never linked succeeds.
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	if h.svc.Credentials == nil {
		unavailable(w, "account linking")
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	platform := r.PathValue("platform")

	if err := h.svc.Credentials.Unlink(r.Context(), userID, platform); err != nil {
		writeServiceError(w, h.logger, "unlink account", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Status:  "success",
		Message: "Unlinked " + platform + " account",
	})
}

// OAuthLogin redirects the browser to the provider's consent page.
func (h *Handler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	if h.svc.OAuth == nil {
		unavailable(w, "oauth")
		return
	}

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be a positive integer")
		return
	}

	target, err := h.svc.OAuth.LoginURL(r.PathValue("platform"), userID)
	if err != nil {
		writeServiceError(w, h.logger, "oauth login", err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// OAuthCallback completes the authorization code flow and sends the browser
// back to the frontend.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.svc.OAuth == nil {
		unavailable(w, "oauth")
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		writeError(w, http.StatusBadRequest, "authorization was not granted: "+reason)
		return
	}

	target, err := h.svc.OAuth.Callback(r.Context(), r.PathValue("platform"), q.Get("code"), q.Get("state"))
	if err != nil {
		writeServiceError(w, h.logger, "oauth callback", err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}
