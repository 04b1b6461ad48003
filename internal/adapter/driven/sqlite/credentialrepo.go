package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Tokens are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
	now func() time.Time
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable token storage (Link and Get will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key, now: time.Now}
}

// Link stores a new credential. The (user_id, platform) primary key turns a
// second link into driven.ErrConflict.
func (r *CredentialRepo) Link(ctx context.Context, cred model.Credential) (model.Credential, error) {
	encrypted, err := r.encrypt(cred.AccessToken)
	if err != nil {
		return model.Credential{}, err
	}

	if cred.LinkedAt.IsZero() {
		cred.LinkedAt = r.now().UTC()
	}

	const query = `INSERT INTO credentials (user_id, platform, username, token, linked_at) VALUES (?, ?, ?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query, cred.UserID, string(cred.Platform), cred.Username, encrypted, formatTime(cred.LinkedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Credential{}, fmt.Errorf("link %s for user %d: %w", cred.Platform, cred.UserID, driven.ErrConflict)
		}
		return model.Credential{}, fmt.Errorf("link %s for user %d: %w", cred.Platform, cred.UserID, err)
	}

	return cred, nil
}

// Replace upserts the credential, so a relink never passes through an
// unlinked state.
func (r *CredentialRepo) Replace(ctx context.Context, cred model.Credential) (model.Credential, error) {
	encrypted, err := r.encrypt(cred.AccessToken)
	if err != nil {
		return model.Credential{}, err
	}

	if cred.LinkedAt.IsZero() {
		cred.LinkedAt = r.now().UTC()
	}

	const query = `
		INSERT INTO credentials (user_id, platform, username, token, linked_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			linked_at = excluded.linked_at`
	_, err = r.db.Writer.ExecContext(ctx, query, cred.UserID, string(cred.Platform), cred.Username, encrypted, formatTime(cred.LinkedAt))
	if err != nil {
		return model.Credential{}, fmt.Errorf("replace %s for user %d: %w", cred.Platform, cred.UserID, err)
	}

	return cred, nil
}

// Unlink removes the credential for (userID, platform). Missing rows are not an error.
func (r *CredentialRepo) Unlink(ctx context.Context, userID int64, platform model.Platform) error {
	const query = `DELETE FROM credentials WHERE user_id = ? AND platform = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID, string(platform)); err != nil {
		return fmt.Errorf("unlink %s for user %d: %w", platform, userID, err)
	}
	return nil
}

// Get reads the whole credential row in one statement and decrypts its token.
func (r *CredentialRepo) Get(ctx context.Context, userID int64, platform model.Platform) (model.Credential, error) {
	if r.key == nil {
		return model.Credential{}, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT username, token, linked_at FROM credentials WHERE user_id = ? AND platform = ?`
	var (
		encrypted string
		linkedAt  string
	)
	cred := model.Credential{UserID: userID, Platform: platform}
	err := r.db.Reader.QueryRowContext(ctx, query, userID, string(platform)).Scan(&cred.Username, &encrypted, &linkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, fmt.Errorf("%s credential for user %d: %w", platform, userID, driven.ErrNotFound)
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("get %s credential for user %d: %w", platform, userID, err)
	}

	cred.AccessToken, err = r.decrypt(encrypted)
	if err != nil {
		return model.Credential{}, fmt.Errorf("decrypt %s credential for user %d: %w", platform, userID, err)
	}

	cred.LinkedAt, err = parseTime(linkedAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse linked_at: %w", err)
	}

	return cred, nil
}

// Usernames returns platform -> username for the user's linked accounts.
func (r *CredentialRepo) Usernames(ctx context.Context, userID int64) (map[model.Platform]string, error) {
	const query = `SELECT platform, username FROM credentials WHERE user_id = ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list usernames for user %d: %w", userID, err)
	}
	defer rows.Close()

	names := make(map[model.Platform]string, 2)
	for rows.Next() {
		var platform, username string
		if err := rows.Scan(&platform, &username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names[model.Platform(platform)] = username
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}

	return names, nil
}

// ListFullyLinkedUsers returns users holding both a GitHub and a Gitee credential, ordered by ID.
func (r *CredentialRepo) ListFullyLinkedUsers(ctx context.Context) ([]int64, error) {
	const query = `
		SELECT user_id FROM credentials
		GROUP BY user_id
		HAVING COUNT(DISTINCT platform) = 2
		ORDER BY user_id
	`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list linked users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked users: %w", err)
	}

	return ids, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
