package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/radumarias/rencfs-desktop/storage"
)

// Reconcile marks every vault locked in a single transaction. It runs at
// daemon startup, when no filesystem process from a previous run is tracked,
// and returns the number of records corrected.
func Reconcile(ctx context.Context, repo storage.Repository, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fixed := 0
	err := repo.Transaction(ctx, func(tx storage.Queries) error {
		fixed = 0
		vaults, err := tx.GetAll(ctx, 0)
		if err != nil {
			return err
		}
		for _, v := range vaults {
			if v.Locked {
				continue
			}
			if err := tx.Update(ctx, v.ID, storage.SetLocked(true)); err != nil {
				return fmt.Errorf("vault %d: %w", v.ID, err)
			}
			logger.Info("marked stale unlocked vault as locked", "vault_id", v.ID, "name", v.Name)
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reconciling vault state: %w", err)
	}
	return fixed, nil
}
