// Package github implements the Host port for GitHub using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Host = (*Client)(nil)

const defaultWebHost = "github.com"

// Client implements driven.Host for GitHub. One Client serves every user:
// a go-github client bound to the caller's token is derived per call, while
// the underlying transport (and its ETag cache) is shared. GitHub answers
// with Vary: Authorization, so cached responses never cross tokens.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL // nil means api.github.com.
	webHost    string
}

// NewClient creates a GitHub client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with per-call token auth)
func NewClient() *Client {
	return &Client{httpClient: newTransportClient(), webHost: defaultWebHost}
}

// NewEnterpriseClient creates a Client with the same transport stack as
// NewClient against a GitHub Enterprise API base URL. Repositories are
// served from the API host, so https://ghe.example.com/api/v3/ yields clone
// URLs under https://ghe.example.com.
func NewEnterpriseClient(baseURL string) (*Client, error) {
	c, err := NewClientWithHTTPClient(newTransportClient(), baseURL)
	if err != nil {
		return nil, err
	}
	if c.baseURL.Host == "" || (c.baseURL.Scheme != "https" && c.baseURL.Scheme != "http") {
		return nil, fmt.Errorf("%w: enterprise base URL %q must be absolute", driven.ErrInvalidInput, baseURL)
	}
	c.webHost = strings.ToLower(c.baseURL.Host)
	return c, nil
}

func newTransportClient() *http.Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	return github_ratelimit.NewClient(cacheTransport)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// Used for GitHub Enterprise and for injecting an httptest server in tests.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return &Client{httpClient: httpClient, baseURL: u, webHost: defaultWebHost}, nil
}

// Platform identifies this host as GitHub.
func (c *Client) Platform() model.Platform {
	return model.PlatformGitHub
}

// CurrentUser returns the login of the authenticated user.
func (c *Client) CurrentUser(ctx context.Context, token string) (string, error) {
	user, resp, err := c.forToken(token).Users.Get(ctx, "")
	if err != nil {
		return "", classify(resp, fmt.Errorf("fetching authenticated github user: %w", err))
	}

	logRateLimit(resp, "user", 0, 1)

	return user.GetLogin(), nil
}

// ListRepos retrieves every repository visible to the token owner (owned,
// collaborator and organization member), handling pagination automatically.
func (c *Client) ListRepos(ctx context.Context, token string) ([]model.RepoSummary, error) {
	client := c.forToken(token)

	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Visibility: "all",
		Sort:       "full_name",
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	var all []model.RepoSummary

	for {
		repos, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, classify(resp, fmt.Errorf("listing github repositories (page %d): %w", opts.Page, err))
		}

		logRateLimit(resp, "user/repos", opts.Page, len(repos))

		for _, r := range repos {
			all = append(all, mapRepository(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.RepoSummary{}
	}

	return all, nil
}

// EnsureRepo creates owner/name as a private repository under the
// authenticated user when it does not already exist.
func (c *Client) EnsureRepo(ctx context.Context, token, owner, name, description string) error {
	client := c.forToken(token)

	_, resp, err := client.Repositories.Get(ctx, owner, name)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return classify(resp, fmt.Errorf("fetching github repository %s/%s: %w", owner, name, err))
	}

	slog.Info("creating github repository", "owner", owner, "name", name)

	_, resp, err = client.Repositories.Create(ctx, "", &gh.Repository{
		Name:        gh.Ptr(name),
		Description: gh.Ptr(description),
		Private:     gh.Ptr(true),
	})
	if err != nil {
		return classify(resp, fmt.Errorf("creating github repository %s/%s: %w", owner, name, err))
	}

	return nil
}

// WebHost returns github.com, or the enterprise host for NewEnterpriseClient.
func (c *Client) WebHost() string {
	return c.webHost
}

// CloneURL returns the HTTPS clone URL of owner/name on WebHost.
func (c *Client) CloneURL(owner, name string) string {
	return fmt.Sprintf("https://%s/%s/%s.git", c.webHost, owner, name)
}

// forToken derives a go-github client authenticated as token.
func (c *Client) forToken(token string) *gh.Client {
	client := gh.NewClient(c.httpClient)
	if c.baseURL != nil {
		u := *c.baseURL
		client.BaseURL = &u
	}
	return client.WithAuthToken(token)
}

// classify attaches a driven error kind to err based on the response.
func classify(resp *gh.Response, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", driven.ErrTimeout, err)
	case resp != nil && resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", driven.ErrAuthExpired, err)
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("%w: github rate limit: %w", driven.ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", driven.ErrUpstreamUnavailable, err)
	}
}

// mapRepository converts a go-github Repository to a domain RepoSummary.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRepository(r *gh.Repository) model.RepoSummary {
	return model.RepoSummary{
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		HTMLURL:     r.GetHTMLURL(),
		CloneURL:    r.GetCloneURL(),
		Description: r.GetDescription(),
		Private:     r.GetPrivate(),
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 && resp.Rate.Limit > 0 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
