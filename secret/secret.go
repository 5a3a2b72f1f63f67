// Package secret supplies vault passwords to the lifecycle supervisor.
package secret

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/awnumar/memguard"
	"github.com/zalando/go-keyring"
)

// ServiceName is the OS keyring service under which vault passwords are stored.
const ServiceName = "rencfs-desktop"

// DefaultEnvVar is read by Env when no variable name is set.
const DefaultEnvVar = "RENCFS_DESKTOP_PASSWORD"

// ErrNotFound is returned when a source holds no password for a vault.
var ErrNotFound = errors.New("password not found")

// Source returns the password for a vault in locked memory. Callers must
// Destroy the buffer.
type Source interface {
	Password(ctx context.Context, vaultID int64) (*memguard.LockedBuffer, error)
}

func lockedCopy(pw string) (*memguard.LockedBuffer, error) {
	if pw == "" {
		return nil, ErrNotFound
	}
	return memguard.NewBufferFromBytes([]byte(pw)), nil
}

// Keyring stores passwords in the OS keyring, one entry per vault.
type Keyring struct {
	service string
}

var _ Source = (*Keyring)(nil)

// NewKeyring returns a Keyring using ServiceName.
func NewKeyring() *Keyring {
	return &Keyring{service: ServiceName}
}

func keyringUser(vaultID int64) string {
	return "vault-" + strconv.FormatInt(vaultID, 10)
}

func (k *Keyring) Password(_ context.Context, vaultID int64) (*memguard.LockedBuffer, error) {
	pw, err := keyring.Get(k.service, keyringUser(vaultID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("vault %d: %w", vaultID, ErrNotFound)
		}
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	return lockedCopy(pw)
}

// Save stores password for vaultID, replacing any previous entry.
func (k *Keyring) Save(vaultID int64, password []byte) error {
	if len(password) == 0 {
		return fmt.Errorf("password must not be empty")
	}
	return keyring.Set(k.service, keyringUser(vaultID), string(password))
}

// Delete removes the entry for vaultID. A missing entry is not an error.
func (k *Keyring) Delete(vaultID int64) error {
	err := keyring.Delete(k.service, keyringUser(vaultID))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// Has reports whether a password is stored for vaultID.
func (k *Keyring) Has(vaultID int64) bool {
	_, err := keyring.Get(k.service, keyringUser(vaultID))
	return err == nil
}

// Env reads one password for every vault from an environment variable.
// It is meant for development setups without a keyring.
type Env struct {
	Var string
}

var _ Source = Env{}

func (e Env) Password(_ context.Context, _ int64) (*memguard.LockedBuffer, error) {
	name := e.Var
	if name == "" {
		name = DefaultEnvVar
	}
	buf, err := lockedCopy(os.Getenv(name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return buf, nil
}

// Chain tries each source in order and returns the first password found.
// A source that fails for any reason is logged and skipped, so a host without
// a keyring backend still reaches the later sources.
type Chain struct {
	Sources []Source
	Logger  *slog.Logger
}

var _ Source = Chain{}

// NewChain returns a Chain over sources that logs skipped failures to logger.
func NewChain(logger *slog.Logger, sources ...Source) Chain {
	return Chain{Sources: sources, Logger: logger}
}

func (c Chain) Password(ctx context.Context, vaultID int64) (*memguard.LockedBuffer, error) {
	var errs []error
	for i, src := range c.Sources {
		buf, err := src.Password(ctx, vaultID)
		if err == nil {
			return buf, nil
		}
		if !errors.Is(err, ErrNotFound) && c.Logger != nil {
			c.Logger.Warn("password source failed, trying next", "source", i, "vault_id", vaultID, "error", err)
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("vault %d: %w", vaultID, ErrNotFound)
	}
	return nil, errors.Join(errs...)
}
