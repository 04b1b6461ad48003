// Package gitcli implements the Mirrorer port by driving the git binary.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Mirrorer = (*Mirrorer)(nil)

// maxOutput bounds how much git output is carried into an error message.
const maxOutput = 2048

// Mirrorer transfers repositories with `git clone --mirror` followed by
// `git push --mirror` from a throwaway working directory.
type Mirrorer struct {
	binary  string
	tempDir string
}

// NewMirrorer creates a Mirrorer using the given git binary. An empty binary
// resolves "git" from PATH. Scratch clones go under the OS temp directory.
func NewMirrorer(binary string) *Mirrorer {
	if binary == "" {
		binary = "git"
	}
	return &Mirrorer{binary: binary}
}

// Mirror copies every ref of source onto destination. The scratch clone is
// removed on every path, including cancellation.
func (m *Mirrorer) Mirror(ctx context.Context, source, destination driven.Remote) error {
	dir, err := os.MkdirTemp(m.tempDir, "giteemirror-*")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("failed to remove scratch clone", "dir", dir, "error", rmErr)
		}
	}()

	secrets := []string{source.Token, destination.Token}
	clonePath := filepath.Join(dir, "repo.git")

	start := time.Now()
	if err := m.run(ctx, dir, secrets, "clone", "--mirror", authURL(source), clonePath); err != nil {
		return fmt.Errorf("cloning source: %w", err)
	}
	slog.Debug("source cloned", "source", redact(source.URL, secrets), "elapsed", time.Since(start))

	if err := m.run(ctx, clonePath, secrets, "push", "--mirror", authURL(destination)); err != nil {
		return fmt.Errorf("pushing to destination: %w", err)
	}

	slog.Info("mirror transfer finished",
		"source", redact(source.URL, secrets),
		"destination", redact(destination.URL, secrets),
		"elapsed", time.Since(start),
	)
	return nil
}

// run executes git with args in dir. Combined output is attached to the
// returned error after every secret has been redacted.
func (m *Mirrorer) run(ctx context.Context, dir string, secrets []string, args ...string) error {
	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=",
		"SSH_ASKPASS=",
	)
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: git %s exceeded its deadline", driven.ErrTimeout, args[0])
		}
		return fmt.Errorf("git %s: %w", args[0], ctxErr)
	}

	output := strings.TrimSpace(redact(out.String(), secrets))
	if len(output) > maxOutput {
		output = output[len(output)-maxOutput:]
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("git %s exited with status %d: %s", args[0], exitErr.ExitCode(), output)
	}
	return fmt.Errorf("running git %s: %s", args[0], redact(err.Error(), secrets))
}

// authURL embeds the token as oauth2 basic credentials for http(s) remotes.
// Other remotes, such as local paths, are returned unchanged.
func authURL(r driven.Remote) string {
	if r.Token == "" {
		return r.URL
	}
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return r.URL
	}
	u.User = url.UserPassword("oauth2", r.Token)
	return u.String()
}

// redact replaces every non-empty secret in s, in raw and URL-escaped form.
func redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
		if escaped := url.QueryEscape(secret); escaped != secret {
			s = strings.ReplaceAll(s, escaped, "***")
		}
	}
	return s
}
