// Package vault supervises the encrypted filesystem process behind each vault.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/radumarias/rencfs-desktop/storage"
)

// CredentialSource supplies the password a vault is unlocked with. The
// returned buffer is destroyed by the caller.
type CredentialSource interface {
	Password(ctx context.Context, vaultID int64) (*memguard.LockedBuffer, error)
}

// Handler drives one vault between the locked state (no process) and the
// unlocked state (a filesystem process observed healthy at spawn time).
//
// Every operation holds the handler's mutex for its full duration, so at most
// one transition is in flight per vault. Status reads a separate snapshot and
// never waits for an operation. A process that dies after Unlock returns is
// not noticed until the next Lock.
type Handler struct {
	id          int64
	store       storage.Repository
	launcher    Launcher
	health      HealthChecker
	fallback    HealthChecker
	unmounter   Unmounter
	creds       CredentialSource
	logger      *slog.Logger
	binary      string
	passwordEnv string
	logsDir     string
	grace       time.Duration
	stopTimeout time.Duration

	// mu serializes operations; child is only touched while it is held.
	mu    sync.Mutex
	child Process

	// stateMu guards the snapshot Status reports.
	stateMu   sync.RWMutex
	unlocked  bool
	mountedAt string
}

// NewHandler creates a locked Handler for vault id.
func NewHandler(id int64, store storage.Repository, opts ...HandlerOption) *Handler {
	h := &Handler{
		id:          id,
		store:       store,
		launcher:    ExecLauncher{},
		health:      ProcessTable{},
		fallback:    StatusListing{},
		binary:      DefaultBinary,
		passwordEnv: DefaultPasswordEnv,
		logsDir:     "logs",
		grace:       DefaultGracePeriod,
		stopTimeout: DefaultStopTimeout,
		logger:      slog.Default(),
	}
	if runtime.GOOS != "windows" {
		h.unmounter = CommandUnmounter{Command: []string{"umount"}, Mounts: ProcMounts{}}
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "vault", "vault_id", id)
	return h
}

// ID returns the vault identifier this handler governs.
func (h *Handler) ID() int64 {
	return h.id
}

// Status reports whether a child process is tracked and where it was mounted.
func (h *Handler) Status() (unlocked bool, mountPoint string) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.unlocked, h.mountedAt
}

// track records proc as the vault's child. The caller holds mu.
func (h *Handler) track(proc Process, mountPoint string) {
	h.child = proc
	h.stateMu.Lock()
	h.unlocked = proc != nil
	h.mountedAt = mountPoint
	h.stateMu.Unlock()
}

// Unlocked reports whether a child process is tracked.
func (h *Handler) Unlocked() bool {
	unlocked, _ := h.Status()
	return unlocked
}

// Lock stops the vault's filesystem process. The persisted locked flag is
// written before anything else, so a failure later in the call can leave the
// record locked while the process is still running.
//
// mountPoint overrides the persisted mount point for the unmount step; pass
// "" to use the record.
func (h *Handler) Lock(ctx context.Context, mountPoint string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lock(ctx, mountPoint)
}

// Unlock starts the vault's filesystem process and verifies it stays up for
// the grace period. The grace wait is not cut short by ctx.
func (h *Handler) Unlock(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unlock(ctx)
}

// ChangeMountPoint restarts an unlocked vault after its mount point was
// changed in the store. oldMountPoint is unmounted on the way down.
func (h *Handler) ChangeMountPoint(ctx context.Context, oldMountPoint string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.child == nil {
		h.logger.Debug("mount point changed while locked, nothing to restart")
		return nil
	}
	if err := h.lock(ctx, oldMountPoint); err != nil {
		return err
	}
	return h.unlock(ctx)
}

// ChangeDataDir restarts an unlocked vault after its data directory was
// changed in the store. Existing content is not migrated.
func (h *Handler) ChangeDataDir(ctx context.Context, oldDataDir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.child == nil {
		h.logger.Debug("data dir changed while locked, nothing to restart")
		return nil
	}
	v, err := h.store.Get(ctx, h.id)
	if err != nil {
		return fmt.Errorf("%w: reading vault: %w", ErrCannotChangeDataDir, err)
	}
	if oldDataDir != "" && filepath.Clean(oldDataDir) != filepath.Clean(v.DataDir) {
		h.logger.Warn("data dir changed, existing content is not migrated",
			"old_data_dir", oldDataDir, "data_dir", v.DataDir)
	}
	if err := h.lock(ctx, v.MountPoint); err != nil {
		return err
	}
	return h.unlock(ctx)
}

func (h *Handler) lock(ctx context.Context, mountPoint string) error {
	if err := h.store.Update(ctx, h.id, storage.SetLocked(true)); err != nil {
		return fmt.Errorf("%w: persisting locked flag: %w", ErrCannotLockVault, err)
	}
	if h.child == nil {
		h.logger.Debug("already locked")
		return nil
	}

	pid := h.child.Pid()
	if err := h.child.Terminate(h.stopTimeout); err != nil {
		return fmt.Errorf("%w: terminating process %d: %w", ErrCannotLockVault, pid, err)
	}
	h.track(nil, "")
	h.logger.Info("filesystem process stopped", "pid", pid)

	if h.unmounter == nil {
		return nil
	}
	if mountPoint == "" {
		v, err := h.store.Get(ctx, h.id)
		if err != nil {
			return fmt.Errorf("%w: reading vault: %w", ErrCannotLockVault, err)
		}
		mountPoint = v.MountPoint
	}
	if err := h.unmounter.Unmount(ctx, mountPoint); err != nil {
		return fmt.Errorf("%w: unmounting %s: %w", ErrCannotLockVault, mountPoint, err)
	}
	h.logger.Info("vault locked", "mount_point", mountPoint)
	return nil
}

func (h *Handler) unlock(ctx context.Context) error {
	if h.child != nil {
		h.logger.Debug("already unlocked")
		return nil
	}

	v, err := h.store.Get(ctx, h.id)
	if err != nil {
		return fmt.Errorf("%w: reading vault: %w", ErrCannotUnlockVault, err)
	}
	proc, err := h.spawn(ctx, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotUnlockVault, err)
	}
	h.logger.Info("filesystem process started", "pid", proc.Pid(), "mount_point", v.MountPoint, "grace", h.grace)

	time.Sleep(h.grace)

	if err := h.verify(ctx, proc); err != nil {
		return fmt.Errorf("%w: %w", ErrCannotUnlockVault, err)
	}
	if err := h.store.Update(ctx, h.id, storage.SetLocked(false)); err != nil {
		if termErr := proc.Terminate(h.stopTimeout); termErr != nil {
			h.logger.Error("failed to stop untracked process", "pid", proc.Pid(), "error", termErr)
		}
		return fmt.Errorf("%w: persisting locked flag: %w", ErrCannotUnlockVault, err)
	}
	h.track(proc, v.MountPoint)
	h.logger.Info("vault unlocked", "pid", proc.Pid(), "mount_point", v.MountPoint)
	return nil
}

func (h *Handler) spawn(ctx context.Context, v *storage.Vault) (Process, error) {
	if h.creds == nil {
		return nil, fmt.Errorf("no credential source configured")
	}
	pw, err := h.creds.Password(ctx, h.id)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	defer pw.Destroy()

	if err := os.MkdirAll(h.logsDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	stdout, err := openLog(filepath.Join(h.logsDir, fmt.Sprintf("vault_%d.out", h.id)))
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	stderr, err := openLog(filepath.Join(h.logsDir, fmt.Sprintf("vault_%d.err", h.id)))
	if err != nil {
		return nil, err
	}
	defer stderr.Close()

	return h.launcher.Start(Command{
		Path: h.binary,
		Args: []string{
			"--mount-point", v.MountPoint,
			"--data-dir", v.DataDir,
			"--umount-on-start",
		},
		Env:    []string{h.passwordEnv + "=" + string(pw.Bytes())},
		Stdout: stdout,
		Stderr: stderr,
	})
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return f, nil
}

// verify checks a freshly spawned process. Any process found unhealthy is
// killed before returning so none is left behind untracked.
func (h *Handler) verify(ctx context.Context, proc Process) error {
	pid := proc.Pid()
	select {
	case <-proc.Done():
		return fmt.Errorf("process %d exited during grace period", pid)
	default:
	}

	state, err := h.health.Check(ctx, pid)
	if err != nil {
		h.forceKill(proc)
		return fmt.Errorf("checking process %d: %w", pid, err)
	}
	if state != StateRunning {
		h.forceKill(proc)
		return fmt.Errorf("process %d is %s", pid, state)
	}

	if h.fallback == nil {
		return nil
	}
	state, err = h.fallback.Check(ctx, pid)
	switch {
	case err != nil:
		h.logger.Warn("status listing unavailable, trusting process table", "pid", pid, "error", err)
	case state == StateDefunct, state == StateMissing:
		h.forceKill(proc)
		return fmt.Errorf("process %d is %s", pid, state)
	}
	return nil
}

func (h *Handler) forceKill(proc Process) {
	if err := proc.Kill(); err != nil {
		h.logger.Error("failed to kill unhealthy process", "pid", proc.Pid(), "error", err)
	}
}
