package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/giteemirror/internal/adapter/driven/cache"
	"github.com/ericfisherdev/giteemirror/internal/adapter/driven/gitcli"
	"github.com/ericfisherdev/giteemirror/internal/adapter/driven/gitee"
	githubadapter "github.com/ericfisherdev/giteemirror/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/giteemirror/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/giteemirror/internal/adapter/driving/http"
	"github.com/ericfisherdev/giteemirror/internal/application"
	"github.com/ericfisherdev/giteemirror/internal/config"
	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
	"github.com/ericfisherdev/giteemirror/internal/logging"
)

// redisRetention keeps stale listings around for fallback well past the TTL.
const redisRetention = 24 * time.Hour

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "giteemirror",
		Short:         "Mirror GitHub repositories to Gitee",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, sync workers and auto-sync scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(newMigrateCmd())

	return root
}

func newMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				dbPath = config.DBPathFromEnv()
			}

			db, err := sqliteadapter.NewDB(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
				return err
			}

			version, dirty, err := sqliteadapter.MigrationVersion(db.Writer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (dirty=%t)\n", dbPath, version, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default $GITEEMIRROR_DB_PATH or giteemirror.db)")

	return cmd
}

func serve(parent context.Context) error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Stdout: os.Stdout,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"mirror_timeout", cfg.MirrorTimeout,
		"repo_cache_ttl", cfg.RepoCacheTTL,
		"auto_sync_schedule", cfg.AutoSyncSchedule,
	)

	encKey, err := cfg.EncryptionKey()
	if err != nil {
		return err
	}
	stateKey, err := cfg.StateKey()
	if err != nil {
		return err
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// 4. Wire driven adapters.
	credStore := sqliteadapter.NewCredentialRepo(db, encKey)
	jobStore := sqliteadapter.NewJobRepo(db)
	logStore := sqliteadapter.NewLogRepo(db)

	repoCache, closeCache, err := newRepoCache(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeCache()

	hosts, err := newHosts(cfg)
	if err != nil {
		return err
	}

	// 5. Application services.
	broker := application.NewEventBroker()
	credSvc := application.NewCredentialService(credStore, repoCache)
	lister := application.NewRepoLister(credStore, hosts, repoCache, cfg.RepoCacheTTL, application.DefaultListingTimeout)
	queue := application.NewSyncQueue(credStore, jobStore, hosts, broker)
	worker := application.NewMirrorWorker(credStore, jobStore, hosts, gitcli.NewMirrorer(cfg.GitBinary), broker, cfg.MirrorTimeout)
	pool := application.NewWorkerPool(jobStore, worker, broker, queue.Wakeups(), cfg.Workers, application.DefaultPollInterval, worker.Timeout())
	oauthSvc := application.NewOAuthService(map[model.Platform]*oauth2.Config{
		model.PlatformGitHub: application.NewOAuth2Config(model.PlatformGitHub, cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.OAuthRedirectBase),
		model.PlatformGitee:  application.NewOAuth2Config(model.PlatformGitee, cfg.GiteeClientID, cfg.GiteeClientSecret, cfg.OAuthRedirectBase),
	}, credSvc, hosts, stateKey, cfg.FrontendURL)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		pool.Start(ctx)
	}()

	if cfg.AutoSyncEnabled() {
		autoSync := application.NewAutoSyncService(credStore, lister, queue)
		if err := autoSync.Schedule(ctx, cfg.AutoSyncSchedule); err != nil {
			stop()
			background.Wait()
			return err
		}
		background.Add(1)
		go func() {
			defer background.Done()
			autoSync.Start(ctx)
		}()
	} else {
		slog.Info("auto-sync disabled")
	}

	// 6. HTTP server.
	handler := httphandler.NewHandler(httphandler.Services{
		Credentials: credSvc,
		OAuth:       oauthSvc,
		Repos:       lister,
		Queue:       queue,
		Dashboard:   application.NewDashboardService(logStore),
		Logs:        application.NewLogService(logStore),
		Events:      broker,
	}, cfg.GitHubWebhookSecret, cfg.CORSOrigins, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("giteemirror started",
		"listen_addr", cfg.ListenAddr,
		"workers", cfg.Workers,
	)

	// 7. Wait for a shutdown signal or a server failure.
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		stop()
	}
	slog.Info("shutting down")

	// 8. Graceful shutdown: drain HTTP, then let workers record their jobs.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	background.Wait()

	slog.Info("shutdown complete")
	return runErr
}

// newRepoCache returns the Redis-backed listing cache when redisURL is set and
// the in-process cache otherwise.
func newRepoCache(ctx context.Context, redisURL string) (driven.RepoCache, func(), error) {
	if redisURL == "" {
		slog.Info("using in-memory repository cache")
		return cache.NewMemoryCache(), func() {}, nil
	}

	rc, err := cache.NewRedisCacheFromURL(ctx, redisURL, redisRetention)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using redis repository cache")
	return rc, func() {
		if err := rc.Close(); err != nil {
			slog.Error("error closing redis cache", "error", err)
		}
	}, nil
}

// newHosts builds the GitHub and Gitee API adapters, honoring API base URL
// overrides for self-hosted installations.
func newHosts(cfg *config.Config) (*application.HostRegistry, error) {
	gh := githubadapter.NewClient()
	if cfg.GitHubAPIURL != "" {
		var err error
		if gh, err = githubadapter.NewEnterpriseClient(cfg.GitHubAPIURL); err != nil {
			return nil, fmt.Errorf("github api url: %w", err)
		}
	}

	gt := gitee.NewClient()
	if cfg.GiteeAPIURL != gitee.DefaultBaseURL {
		gt = gitee.NewClientWithHTTPClient(&http.Client{Timeout: 30 * time.Second}, cfg.GiteeAPIURL)
	}

	return application.NewHostRegistry(gh, gt), nil
}
