// Package config loads application configuration from environment variables.
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

const envPrefix = "GITEEMIRROR_"

// defaultCORSOrigins are the local frontend dev servers.
var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://localhost:5174",
	"http://127.0.0.1:5174",
	"http://localhost:8001",
	"http://127.0.0.1:8001",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	SecretKey  string

	Workers          int
	MirrorTimeout    time.Duration
	RepoCacheTTL     time.Duration
	RedisURL         string
	AutoSyncSchedule string
	GitBinary        string

	GitHubAPIURL string
	GiteeAPIURL  string

	GitHubClientID     string
	GitHubClientSecret string
	GiteeClientID      string
	GiteeClientSecret  string
	OAuthRedirectBase  string
	FrontendURL        string

	GitHubWebhookSecret string
	CORSOrigins         []string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it reads ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from GITEEMIRROR_* environment variables and
// returns a validated Config. GITEEMIRROR_SECRET_KEY is required. Optional
// variables with defaults: LISTEN_ADDR (127.0.0.1:8001), DB_PATH
// (giteemirror.db), WORKERS (4), MIRROR_TIMEOUT (10m), REPO_CACHE_TTL (5m),
// AUTO_SYNC_SCHEDULE ("0 0 2 * * *"; set empty to disable), LOG_LEVEL (info),
// LOG_FORMAT (text).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          getenv("LISTEN_ADDR", "127.0.0.1:8001"),
		DBPath:              DBPathFromEnv(),
		SecretKey:           os.Getenv(envPrefix + "SECRET_KEY"),
		RedisURL:            os.Getenv(envPrefix + "REDIS_URL"),
		AutoSyncSchedule:    getenv("AUTO_SYNC_SCHEDULE", "0 0 2 * * *"),
		GitBinary:           getenv("GIT_BINARY", "git"),
		GitHubAPIURL:        os.Getenv(envPrefix + "GITHUB_API_URL"),
		GiteeAPIURL:         getenv("GITEE_API_URL", "https://gitee.com/api/v5"),
		GitHubClientID:      os.Getenv(envPrefix + "GITHUB_CLIENT_ID"),
		GitHubClientSecret:  os.Getenv(envPrefix + "GITHUB_CLIENT_SECRET"),
		GiteeClientID:       os.Getenv(envPrefix + "GITEE_CLIENT_ID"),
		GiteeClientSecret:   os.Getenv(envPrefix + "GITEE_CLIENT_SECRET"),
		OAuthRedirectBase:   getenv("OAUTH_REDIRECT_BASE", "http://localhost:8001"),
		FrontendURL:         getenv("FRONTEND_URL", "http://localhost:5174"),
		GitHubWebhookSecret: os.Getenv(envPrefix + "GITHUB_WEBHOOK_SECRET"),
		CORSOrigins:         slices.Clone(defaultCORSOrigins),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "text"),
		LogFile:             os.Getenv(envPrefix + "LOG_FILE"),
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%sSECRET_KEY is required", envPrefix)
	}

	var err error
	if cfg.Workers, err = intEnv("WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%sWORKERS must be at least 1, got %d", envPrefix, cfg.Workers)
	}
	if cfg.MirrorTimeout, err = durationEnv("MIRROR_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RepoCacheTTL, err = durationEnv("REPO_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv(envPrefix + "CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("%sLOG_FORMAT must be text or json, got %q", envPrefix, cfg.LogFormat)
	}

	return cfg, nil
}

// DBPathFromEnv returns the database path without loading the rest of the
// configuration, for commands that only touch the schema.
func DBPathFromEnv() string {
	return getenv("DB_PATH", "giteemirror.db")
}

// EncryptionKey derives the 32-byte AES-256 key for credential tokens from
// SecretKey using HKDF-SHA256.
func (c *Config) EncryptionKey() ([]byte, error) {
	return c.deriveKey("giteemirror credential encryption v1")
}

// StateKey derives the HMAC key for OAuth state tokens from SecretKey. It is
// independent of EncryptionKey.
func (c *Config) StateKey() ([]byte, error) {
	return c.deriveKey("giteemirror oauth state v1")
}

func (c *Config) deriveKey(info string) ([]byte, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret key is empty")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(c.SecretKey), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

// AutoSyncEnabled reports whether the nightly sync should be scheduled.
func (c *Config) AutoSyncEnabled() bool {
	return strings.TrimSpace(c.AutoSyncSchedule) != ""
}

// getenv returns the prefixed variable, or def when it is unset. A variable
// set to the empty string is returned as empty.
func getenv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid integer %q: %w", envPrefix, key, v, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid duration %q: %w", envPrefix, key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s%s must be positive, got %s", envPrefix, key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
