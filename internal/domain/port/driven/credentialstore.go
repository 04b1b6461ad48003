package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// GITEEMIRROR_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set GITEEMIRROR_SECRET_KEY")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext tokens at the domain boundary.
type CredentialStore interface {
	// Link stores a new credential. Returns ErrConflict if the user already has
	// a credential for that platform.
	Link(ctx context.Context, cred model.Credential) (model.Credential, error)

	// Replace stores cred, overwriting any credential for the same (userID,
	// platform) in one atomic write.
	Replace(ctx context.Context, cred model.Credential) (model.Credential, error)

	// Unlink removes the credential for (userID, platform). Removing a missing
	// credential is not an error.
	Unlink(ctx context.Context, userID int64, platform model.Platform) error

	// Get returns the full credential, token included. Returns ErrNotFound when absent.
	Get(ctx context.Context, userID int64, platform model.Platform) (model.Credential, error)

	// Usernames returns the linked username per platform without touching tokens.
	Usernames(ctx context.Context, userID int64) (map[model.Platform]string, error)

	// ListFullyLinkedUsers returns the IDs of users with both a GitHub and a Gitee credential.
	ListFullyLinkedUsers(ctx context.Context) ([]int64, error)
}
