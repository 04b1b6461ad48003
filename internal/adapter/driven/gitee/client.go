// Package gitee implements the Host port for Gitee using its v5 REST API.
package gitee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// DefaultBaseURL is the public Gitee v5 API root.
const DefaultBaseURL = "https://gitee.com/api/v5"

const perPage = 100

// Compile-time interface satisfaction check.
var _ driven.Host = (*Client)(nil)

// Client implements driven.Host for Gitee. The token is passed as the
// access_token query parameter, as the v5 API expects, so request URLs are
// never logged.
type Client struct {
	httpClient *http.Client
	baseURL    string
	webURL     string
}

// NewClient creates a Gitee client against the public API.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		webURL:     "https://gitee.com",
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and API base URL.
// Used for self-hosted Gitee and for injecting an httptest server in tests.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		webURL:     "https://gitee.com",
	}
}

// Platform identifies this host as Gitee.
func (c *Client) Platform() model.Platform {
	return model.PlatformGitee
}

type userJSON struct {
	Login string `json:"login"`
}

type repoJSON struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

// CurrentUser returns the login of the token owner.
func (c *Client) CurrentUser(ctx context.Context, token string) (string, error) {
	var user userJSON
	if _, err := c.getJSON(ctx, "/user", token, nil, &user); err != nil {
		return "", fmt.Errorf("fetching authenticated gitee user: %w", err)
	}
	return user.Login, nil
}

// ListRepos returns every repository visible to the token owner. Gitee has no
// Link header, so paging stops at the first short page.
func (c *Client) ListRepos(ctx context.Context, token string) ([]model.RepoSummary, error) {
	all := []model.RepoSummary{}

	for page := 1; ; page++ {
		params := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
			"sort":     {"full_name"},
		}

		var repos []repoJSON
		if _, err := c.getJSON(ctx, "/user/repos", token, params, &repos); err != nil {
			return nil, fmt.Errorf("listing gitee repositories (page %d): %w", page, err)
		}

		for _, r := range repos {
			all = append(all, c.mapRepository(r))
		}

		if len(repos) < perPage {
			break
		}
	}

	return all, nil
}

// EnsureRepo creates name as a private repository of the token owner when
// owner/name does not exist.
func (c *Client) EnsureRepo(ctx context.Context, token, owner, name, description string) error {
	status, err := c.getJSON(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name), token, nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("fetching gitee repository %s/%s: %w", owner, name, err)
	}

	slog.Info("creating gitee repository", "owner", owner, "name", name)

	form := url.Values{
		"access_token": {token},
		"name":         {name},
		"description":  {description},
		"private":      {"true"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user/repos", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building gitee create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(fmt.Errorf("creating gitee repository %s/%s: %w", owner, name, scrubURLError(err)))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return classifyStatus(resp, fmt.Sprintf("creating gitee repository %s/%s", owner, name))
	}

	return nil
}

// WebHost returns the host repositories are served from.
func (c *Client) WebHost() string {
	return strings.TrimPrefix(c.webURL, "https://")
}

// CloneURL returns the HTTPS clone URL of owner/name.
func (c *Client) CloneURL(owner, name string) string {
	return fmt.Sprintf("%s/%s/%s.git", c.webURL, owner, name)
}

// getJSON performs an authenticated GET and decodes the body into v when v
// is non-nil. It returns the HTTP status code alongside any error.
func (c *Client) getJSON(ctx context.Context, path, token string, params url.Values, v any) (int, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("building gitee request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, classifyTransport(scrubURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, classifyStatus(resp, "GET "+path)
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decoding gitee %s: %w", driven.ErrUpstreamUnavailable, path, err)
	}

	return resp.StatusCode, nil
}

func (c *Client) mapRepository(r repoJSON) model.RepoSummary {
	owner, path, _ := strings.Cut(r.FullName, "/")
	if r.Path != "" {
		path = r.Path
	}

	return model.RepoSummary{
		Name:        r.Name,
		FullName:    r.FullName,
		HTMLURL:     strings.TrimSuffix(r.HTMLURL, ".git"),
		CloneURL:    c.CloneURL(owner, path),
		Description: r.Description,
		Private:     r.Private,
	}
}

// classifyStatus maps a non-success response to a driven error kind,
// including a bounded excerpt of the body for diagnostics.
func classifyStatus(resp *http.Response, op string) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s: gitee returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(excerpt)))

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", driven.ErrAuthExpired, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", driven.ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", driven.ErrUpstreamUnavailable, err)
	}
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", driven.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", driven.ErrUpstreamUnavailable, err)
}

// scrubURLError drops the request URL (which carries access_token) from
// transport errors while keeping the underlying cause.
func scrubURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s gitee api: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
