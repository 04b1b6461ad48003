package driven

import (
	"context"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
)

// Host is the capability set of a code hosting platform. GitHub and Gitee
// differ only in URL shape and API details, so a third platform is one more
// implementation of this interface. Both adapters implement every method even
// though the mirror flow lists on GitHub and creates on Gitee only.
type Host interface {
	// Platform identifies the implementation.
	Platform() model.Platform

	// CurrentUser returns the login that owns token.
	CurrentUser(ctx context.Context, token string) (string, error)

	// ListRepos returns every repository visible to the token owner.
	ListRepos(ctx context.Context, token string) ([]model.RepoSummary, error)

	// EnsureRepo creates owner/name as a private repository when it does not exist.
	EnsureRepo(ctx context.Context, token, owner, name, description string) error

	// WebHost is the host name repositories are served from, e.g. github.com.
	WebHost() string

	// CloneURL returns the HTTPS clone URL of owner/name.
	CloneURL(owner, name string) string
}
