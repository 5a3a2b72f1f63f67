package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the longest vault name accepted, in bytes.
const MaxNameLength = 255

// Vault is a persisted vault record.
type Vault struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	MountPoint string `json:"mount_point" db:"mount_point"`
	DataDir    string `json:"data_dir" db:"data_dir"`
	// Locked is true when no filesystem process should be running.
	Locked bool `json:"locked" db:"locked"`
}

// NewVault holds the fields required to create a vault record. New records
// always start locked.
type NewVault struct {
	Name       string
	MountPoint string
	DataDir    string
}

// VaultUpdate is a field set for Update. Nil fields are left unchanged.
type VaultUpdate struct {
	Name       *string
	MountPoint *string
	DataDir    *string
	Locked     *bool
}

// IsEmpty reports whether the update changes nothing.
func (u VaultUpdate) IsEmpty() bool {
	return u.Name == nil && u.MountPoint == nil && u.DataDir == nil && u.Locked == nil
}

// Apply writes the non-nil fields of u onto v.
func (u VaultUpdate) Apply(v *Vault) {
	if u.Name != nil {
		v.Name = NormalizeName(*u.Name)
	}
	if u.MountPoint != nil {
		v.MountPoint = *u.MountPoint
	}
	if u.DataDir != nil {
		v.DataDir = *u.DataDir
	}
	if u.Locked != nil {
		v.Locked = *u.Locked
	}
}

// SetLocked returns an update that only changes the locked flag.
func SetLocked(locked bool) VaultUpdate {
	return VaultUpdate{Locked: &locked}
}

// SetMountPoint returns an update that only changes the mount point.
func SetMountPoint(path string) VaultUpdate {
	return VaultUpdate{MountPoint: &path}
}

// SetDataDir returns an update that only changes the data directory.
func SetDataDir(path string) VaultUpdate {
	return VaultUpdate{DataDir: &path}
}

// NormalizeName trims the name and converts it to Unicode NFC so that
// visually identical names collide on the unique constraint.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName checks an already normalized vault name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidVault)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds maximum length of %d", ErrInvalidVault, MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name contains invalid UTF-8", ErrInvalidVault)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control character", ErrInvalidVault)
		}
	}
	return nil
}

// Validate checks that a new record is well formed and normalizes its name.
func (v *NewVault) Validate() error {
	v.Name = NormalizeName(v.Name)
	if err := ValidateName(v.Name); err != nil {
		return err
	}
	if !filepath.IsAbs(v.MountPoint) {
		return fmt.Errorf("%w: mount point %q must be an absolute path", ErrInvalidVault, v.MountPoint)
	}
	if !filepath.IsAbs(v.DataDir) {
		return fmt.Errorf("%w: data dir %q must be an absolute path", ErrInvalidVault, v.DataDir)
	}
	return nil
}
