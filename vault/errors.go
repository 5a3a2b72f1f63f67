package vault

import "errors"

// Lifecycle failures. A Handler wraps one of these around the underlying
// cause, so callers match with errors.Is and still see the cause in the message.
var (
	// ErrCannotLockVault indicates that persisting the locked flag, terminating
	// the filesystem process, or unmounting failed.
	ErrCannotLockVault = errors.New("cannot lock vault")
	// ErrCannotUnlockVault indicates that the filesystem process could not be
	// spawned or was not healthy after the grace period.
	ErrCannotUnlockVault = errors.New("cannot unlock vault")
	// ErrCannotChangeMountPoint is reported by a mount point relocation itself,
	// as opposed to the lock or unlock step it runs.
	ErrCannotChangeMountPoint = errors.New("cannot change mount point")
	// ErrCannotChangeDataDir is reported by a data directory relocation itself,
	// as opposed to the lock or unlock step it runs.
	ErrCannotChangeDataDir = errors.New("cannot change data dir")
)
