package vault

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Unmounter releases a mount point after the filesystem process has stopped.
type Unmounter interface {
	Unmount(ctx context.Context, mountPoint string) error
}

// CommandUnmounter runs an external unmount utility such as umount or
// "fusermount -u".
type CommandUnmounter struct {
	// Command is the program and leading arguments; the mount point is appended.
	Command []string
	// Mounts, if set, is consulted first so an already released mount point
	// is not reported as a failure.
	Mounts MountTable
}

var _ Unmounter = CommandUnmounter{}

// Unmount runs the unmount command for mountPoint. When the mount table
// cannot be read, only a failure to run the command is reported and a
// non-zero exit is tolerated.
func (u CommandUnmounter) Unmount(ctx context.Context, mountPoint string) error {
	command := u.Command
	if len(command) == 0 {
		command = []string{"umount"}
	}

	tableKnown := false
	if u.Mounts != nil {
		mounted, err := u.Mounts.IsMounted(mountPoint)
		if err == nil {
			if !mounted {
				return nil
			}
			tableKnown = true
		}
	}

	args := append(append([]string{}, command[1:]...), mountPoint)
	out, err := exec.CommandContext(ctx, command[0], args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && !tableKnown {
			return nil
		}
		return fmt.Errorf("%s %s: %w: %s", strings.Join(command, " "), mountPoint, err, strings.TrimSpace(string(out)))
	}
	return nil
}
