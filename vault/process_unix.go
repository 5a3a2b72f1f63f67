//go:build unix

package vault

import (
	"os/exec"
	"syscall"
)

// detach starts the process in its own session, so a terminal interrupt
// aimed at the daemon does not reach it before the daemon locks it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
