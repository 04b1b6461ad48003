package application

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// ParseRepoURL validates an https repository URL served from host (or its
// www. alias) and returns its owner and repository name. A trailing ".git"
// or slash is accepted.
func ParseRepoURL(raw, host string) (owner, name string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed repository url: %w", driven.ErrInvalidInput, err)
	}
	got := strings.ToLower(u.Host)
	host = strings.ToLower(host)
	if u.Scheme != "https" || (got != host && got != "www."+host) {
		return "", "", fmt.Errorf("%w: %q is not an https %s repository url", driven.ErrInvalidInput, raw, host)
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", fmt.Errorf("%w: repository url must not carry credentials, query or fragment", driven.ErrInvalidInput)
	}

	owner, name, err = splitRepoPath(u.Path)
	if err != nil {
		return "", "", err
	}
	return owner, name, nil
}

// splitRepoPath splits "/owner/name(.git)" into its two segments.
func splitRepoPath(path string) (owner, name string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: repository path %q must be /owner/name", driven.ErrInvalidInput, path)
	}

	owner = parts[0]
	name = strings.TrimSuffix(parts[1], ".git")
	if owner == "" || name == "" || name == "." || name == ".." {
		return "", "", fmt.Errorf("%w: repository path %q must be /owner/name", driven.ErrInvalidInput, path)
	}
	return owner, name, nil
}

// repoPathOf returns owner and name from any http(s) repository URL.
func repoPathOf(raw string) (owner, name string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed repository url: %w", driven.ErrInvalidInput, err)
	}
	return splitRepoPath(u.Path)
}
