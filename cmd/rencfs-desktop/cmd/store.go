package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/radumarias/rencfs-desktop/internal/config"
	"github.com/radumarias/rencfs-desktop/storage"
	bboltstorage "github.com/radumarias/rencfs-desktop/storage/bbolt"
	"github.com/radumarias/rencfs-desktop/storage/sqlite"
)

func openStore(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch cfg.Store {
	case config.StoreBolt:
		// bbolt holds an exclusive file lock; fail fast instead of hanging
		// while another process has the store open.
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.StorePath(), &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open vault storage: %w", err)
		}
		return repo, nil
	default:
		repo, err := sqlite.NewRepositoryFromFile(ctx, cfg.StorePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open vault storage: %w", err)
		}
		return repo, nil
	}
}

// newLogger logs text to stderr in debug mode and JSON to daemon.log
// otherwise.
func newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	if cfg.Debug {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		return slog.New(h), func() error { return nil }, nil
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.LogsDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.LogsDir, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open daemon log: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})), f.Close, nil
}
