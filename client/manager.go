package client

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/radumarias/rencfs-desktop/storage"
)

// Daemon is the lifecycle surface the Manager drives. *Client implements it.
type Daemon interface {
	Lock(ctx context.Context, id int64) error
	Unlock(ctx context.Context, id int64) error
	ChangeMountPoint(ctx context.Context, id int64, oldMountPoint string) error
	ChangeDataDir(ctx context.Context, id int64, oldDataDir string) error
}

var _ Daemon = (*Client)(nil)

// PasswordStore forgets a vault's password when the vault is deleted.
type PasswordStore interface {
	Delete(vaultID int64) error
}

// Manager edits vault records and keeps the daemon in step with them. Every
// operation's outcome is also sent to the Notifier, if one is set.
type Manager struct {
	repo      storage.Repository
	daemon    Daemon
	passwords PasswordStore
	notifier  *Notifier
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithNotifier(n *Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

func WithPasswordStore(p PasswordStore) ManagerOption {
	return func(m *Manager) {
		m.passwords = p
	}
}

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a Manager over repo and daemon.
func NewManager(repo storage.Repository, daemon Daemon, opts ...ManagerOption) *Manager {
	m := &Manager{repo: repo, daemon: daemon, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "manager")
	return m
}

func (m *Manager) report(op Op, id int64, err error) error {
	if err != nil {
		m.logger.Warn("operation failed", "op", op, "vault_id", id, "error", err)
	}
	m.notifier.Notify(Notification{Op: op, VaultID: id, Err: err})
	return err
}

// Create stores a new, locked vault.
func (m *Manager) Create(ctx context.Context, v storage.NewVault) (int64, error) {
	id, err := m.repo.Insert(ctx, v)
	return id, m.report(OpCreate, id, err)
}

func (m *Manager) List(ctx context.Context, limit int) ([]storage.Vault, error) {
	return m.repo.GetAll(ctx, limit)
}

func (m *Manager) Get(ctx context.Context, id int64) (*storage.Vault, error) {
	return m.repo.Get(ctx, id)
}

// Rename changes only the record; the daemon does not track names.
func (m *Manager) Rename(ctx context.Context, id int64, name string) error {
	name = storage.NormalizeName(name)
	if err := storage.ValidateName(name); err != nil {
		return m.report(OpRename, id, err)
	}
	return m.report(OpRename, id, m.repo.Update(ctx, id, storage.VaultUpdate{Name: &name}))
}

// Delete locks the vault, then removes its record and stored password.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.daemon.Lock(ctx, id); err != nil {
		return m.report(OpDelete, id, fmt.Errorf("locking before delete: %w", err))
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return m.report(OpDelete, id, err)
	}
	if m.passwords != nil {
		if err := m.passwords.Delete(id); err != nil {
			m.logger.Warn("could not remove stored password", "vault_id", id, "error", err)
		}
	}
	return m.report(OpDelete, id, nil)
}

func (m *Manager) Lock(ctx context.Context, id int64) error {
	return m.report(OpLock, id, m.daemon.Lock(ctx, id))
}

func (m *Manager) Unlock(ctx context.Context, id int64) error {
	return m.report(OpUnlock, id, m.daemon.Unlock(ctx, id))
}

// ChangeMountPoint stores newPath, then tells the daemon so it can unmount
// the old one and restart an unlocked vault.
func (m *Manager) ChangeMountPoint(ctx context.Context, id int64, newPath string) error {
	err := m.relocate(ctx, id, newPath,
		func(v *storage.Vault) string { return v.MountPoint },
		storage.SetMountPoint,
		m.daemon.ChangeMountPoint)
	return m.report(OpChangeMountPoint, id, err)
}

// ChangeDataDir stores newPath, then tells the daemon so it can restart an
// unlocked vault. Existing data is not moved.
func (m *Manager) ChangeDataDir(ctx context.Context, id int64, newPath string) error {
	err := m.relocate(ctx, id, newPath,
		func(v *storage.Vault) string { return v.DataDir },
		storage.SetDataDir,
		m.daemon.ChangeDataDir)
	return m.report(OpChangeDataDir, id, err)
}

func (m *Manager) relocate(
	ctx context.Context,
	id int64,
	newPath string,
	current func(*storage.Vault) string,
	update func(string) storage.VaultUpdate,
	notify func(context.Context, int64, string) error,
) error {
	if !filepath.IsAbs(newPath) {
		return fmt.Errorf("%w: %q must be an absolute path", storage.ErrInvalidVault, newPath)
	}
	v, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	old := current(v)
	if old == newPath {
		return nil
	}
	if err := m.repo.Update(ctx, id, update(newPath)); err != nil {
		return err
	}
	return notify(ctx, id, old)
}
