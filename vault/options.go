package vault

import (
	"log/slog"
	"time"
)

const (
	// DefaultGracePeriod is how long Unlock waits before checking the process.
	DefaultGracePeriod = 8 * time.Second
	// DefaultStopTimeout is how long Lock waits after SIGTERM before SIGKILL.
	DefaultStopTimeout = 5 * time.Second
	// DefaultPasswordEnv is the environment variable carrying the vault password.
	DefaultPasswordEnv = "RENCFS_PASSWORD"
	// DefaultBinary is the filesystem executable looked up on PATH.
	DefaultBinary = "rencfs"
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBinary sets the filesystem executable.
func WithBinary(path string) HandlerOption {
	return func(h *Handler) {
		h.binary = path
	}
}

// WithPasswordEnv sets the environment variable name used to pass the password.
func WithPasswordEnv(name string) HandlerOption {
	return func(h *Handler) {
		h.passwordEnv = name
	}
}

// WithLogsDir sets the directory receiving vault_<id>.out and vault_<id>.err.
func WithLogsDir(dir string) HandlerOption {
	return func(h *Handler) {
		h.logsDir = dir
	}
}

// WithGracePeriod sets the fixed wait between spawn and health check.
func WithGracePeriod(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.grace = d
	}
}

// WithStopTimeout sets how long termination waits before killing.
func WithStopTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.stopTimeout = d
	}
}

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) HandlerOption {
	return func(h *Handler) {
		h.launcher = l
	}
}

// WithHealthCheckers sets the primary process check and an optional
// secondary check consulted when the primary reports the process running.
func WithHealthCheckers(primary, secondary HealthChecker) HandlerOption {
	return func(h *Handler) {
		h.health = primary
		h.fallback = secondary
	}
}

// WithUnmounter sets the unmounter used by Lock. A nil Unmounter disables
// the explicit unmount step.
func WithUnmounter(u Unmounter) HandlerOption {
	return func(h *Handler) {
		h.unmounter = u
	}
}

// WithCredentials sets the source of vault passwords.
func WithCredentials(src CredentialSource) HandlerOption {
	return func(h *Handler) {
		h.creds = src
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}
