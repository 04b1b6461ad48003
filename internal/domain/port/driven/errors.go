// Package driven defines the ports the mirror engine needs from storage,
// code hosts, git and event listeners.
package driven

import "errors"

// Error kinds shared by every driven port and the services above them.
// Adapters wrap these with context using fmt.Errorf("...: %w", ...); callers
// classify with errors.Is.
var (
	// ErrNotFound indicates an unknown user, credential, job or log entry.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate in-flight job or an already linked credential.
	ErrConflict = errors.New("conflict")

	// ErrUpstreamUnavailable indicates the GitHub or Gitee API could not serve the request.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrAuthExpired indicates a stored token was rejected by the upstream platform.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrInvalidInput indicates a malformed request value (platform, URL, filter).
	ErrInvalidInput = errors.New("invalid input")
)
