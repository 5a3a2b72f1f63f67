package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/radumarias/rencfs-desktop/api"
	"github.com/radumarias/rencfs-desktop/client"
	"github.com/radumarias/rencfs-desktop/internal/config"
	"github.com/radumarias/rencfs-desktop/secret"
	"github.com/radumarias/rencfs-desktop/storage"
	"github.com/radumarias/rencfs-desktop/vault"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the vault lifecycle daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()
		slog.SetDefault(logger)

		for _, dir := range []string{cfg.DataDir, cfg.LogsDir} {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}

		lock := flock.New(cfg.LockPath())
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", cfg.LockPath(), err)
		}
		if !locked {
			return fmt.Errorf("another daemon is already using %s", cfg.DataDir)
		}
		defer lock.Unlock()

		repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		if _, err := vault.Reconcile(cmd.Context(), repo, logger); err != nil {
			return fmt.Errorf("failed to reset vault state: %w", err)
		}

		registry := newRegistry(cfg, repo, logger)

		opts := []api.Option{api.WithLogger(logger)}
		if cfg.WebhookURL != "" {
			opts = append(opts, api.WithWebhook(cfg.WebhookURL, cfg.WebhookAuthHeader))
		}
		a := api.New(registry, opts...)
		defer a.Close()

		server := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           newRouter(a),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// A relocation stops and starts a process in one request.
			WriteTimeout: client.OperationTimeout(cfg.GracePeriod, cfg.StopTimeout),
			IdleTimeout:  60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Listening on %s (data: %s, store: %s)...\n", cfg.ListenAddr, cfg.DataDir, cfg.Store)
		logger.Info("daemon started", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir, "store", cfg.Store)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
		case err := <-done:
			if err != nil {
				lockAll(registry, logger)
				return err
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("server shutdown failed", "error", err)
		}
		lockAll(registry, logger)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func newRouter(a *api.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api/v1", a.Router())
	return r
}

func newRegistry(cfg *config.Config, repo storage.Repository, logger *slog.Logger) *vault.Registry {
	creds := secret.NewChain(logger.With("component", "secret"), secret.NewKeyring(), secret.Env{})
	opts := []vault.HandlerOption{
		vault.WithBinary(cfg.RencfsBinary),
		vault.WithPasswordEnv(cfg.PasswordEnv),
		vault.WithLogsDir(cfg.LogsDir),
		vault.WithGracePeriod(cfg.GracePeriod),
		vault.WithStopTimeout(cfg.StopTimeout),
		vault.WithCredentials(creds),
		vault.WithLogger(logger),
	}
	if len(cfg.UnmountCommand) > 0 {
		opts = append(opts, vault.WithUnmounter(vault.CommandUnmounter{
			Command: cfg.UnmountCommand,
			Mounts:  vault.ProcMounts{},
		}))
	}
	return vault.NewRegistry(func(id int64) *vault.Handler {
		return vault.NewHandler(id, repo, opts...)
	})
}

// lockAll stops every vault on the way out. Processes would otherwise keep
// running with no daemon to lock them.
func lockAll(registry *vault.Registry, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := registry.LockAll(ctx); err != nil {
		logger.Error("failed to lock vaults on shutdown", "error", err)
	}
}
