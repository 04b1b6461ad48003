package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/giteemirror/internal/application"
)

// maxBodyBytes bounds JSON request bodies and webhook payloads.
const maxBodyBytes = 1 << 20

// Services groups the application services the REST API drives. Any service
// may be nil; its routes then answer 503.
type Services struct {
	Credentials *application.CredentialService
	OAuth       *application.OAuthService
	Repos       *application.RepoLister
	Queue       *application.SyncQueue
	Dashboard   *application.DashboardService
	Logs        *application.LogService
	Events      *application.EventBroker
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	svc           Services
	webhookSecret []byte
	origins       []string
	validate      *validator.Validate
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// NewHandler creates a Handler. An empty webhookSecret disables signature
// checks on the GitHub webhook. origins lists the browser origins allowed to
// call the API and open the events socket.
func NewHandler(svc Services, webhookSecret string, origins []string, logger *slog.Logger) *Handler {
	h := &Handler{
		svc:      svc,
		origins:  origins,
		validate: newValidator(),
		logger:   logger,
	}
	if webhookSecret != "" {
		h.webhookSecret = []byte(webhookSecret)
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, CORS and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/auth/status/{user_id}", h.LinkStatus)
	mux.HandleFunc("POST /api/v1/auth/link", h.Link)
	mux.HandleFunc("DELETE /api/v1/auth/unlink/{user_id}/{platform}", h.Unlink)
	mux.HandleFunc("GET /api/v1/auth/oauth/{platform}/login", h.OAuthLogin)
	mux.HandleFunc("GET /api/v1/auth/oauth/{platform}/callback", h.OAuthCallback)

	mux.HandleFunc("GET /api/v1/sync/github/repos/{user_id}", h.ListGitHubRepos)
	mux.HandleFunc("POST /api/v1/sync/trigger", h.TriggerSync)
	mux.HandleFunc("GET /api/v1/sync/dashboard/{user_id}", h.Dashboard)
	mux.HandleFunc("GET /api/v1/sync/events/{user_id}", h.SyncEvents)

	mux.HandleFunc("GET /api/v1/logs/{user_id}", h.ListLogs)
	mux.HandleFunc("POST /api/v1/webhook/github/{user_id}", h.GitHubWebhook)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = corsMiddleware(h.origins, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || originAllowed(h.origins, origin)
}

// unavailable writes a 503 when a route's service was not wired.
func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not available")
}

// pathUserID parses the {user_id} path value. It writes a 400 and returns
// false when the value is not a positive integer.
func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("user_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter, returning def when it
// is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// decodeBody decodes a JSON request body into dst and validates it. It
// writes a 400 and returns false on any failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage reports the first failing field in JSON terms.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}

	fe := verrs[0]
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "max":
		return field + " is too long"
	case "url", "startswith":
		return field + " must be an https URL"
	default:
		return field + " is invalid"
	}
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
