package vault

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessState is the health of a filesystem process as seen by a HealthChecker.
type ProcessState int

const (
	StateRunning ProcessState = iota
	StateMissing
	StateZombie
	StateStopped
	StateDead
	StateDefunct
)

func (s ProcessState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateMissing:
		return "missing"
	case StateZombie:
		return "zombie"
	case StateStopped:
		return "stopped"
	case StateDead:
		return "dead"
	case StateDefunct:
		return "defunct"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// HealthChecker reports the state of a process by pid.
type HealthChecker interface {
	Check(ctx context.Context, pid int) (ProcessState, error)
}

// ProcessTable queries the native process table through gopsutil.
type ProcessTable struct{}

var _ HealthChecker = ProcessTable{}

// gopsutil has no constant for the Linux "X" state.
const statusDead = "dead"

func (ProcessTable) Check(ctx context.Context, pid int) (ProcessState, error) {
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return StateMissing, fmt.Errorf("looking up pid %d: %w", pid, err)
	}
	if !exists {
		return StateMissing, nil
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return StateMissing, nil
		}
		return StateMissing, fmt.Errorf("opening pid %d: %w", pid, err)
	}
	statuses, err := p.StatusWithContext(ctx)
	if err != nil {
		// The process exists but its state is unreadable here; the
		// status listing fallback decides.
		return StateRunning, nil
	}
	for _, s := range statuses {
		switch s {
		case process.Zombie:
			return StateZombie, nil
		case process.Stop:
			return StateStopped, nil
		case statusDead:
			return StateDead, nil
		}
	}
	return StateRunning, nil
}

// StatusListing asks the platform ps tool for the process STAT field and
// reports a zombie ("Z") as defunct. Only the state column is requested, so
// the command line never takes part in the match.
type StatusListing struct {
	// Command defaults to "ps".
	Command string
}

var _ HealthChecker = StatusListing{}

func (s StatusListing) Check(ctx context.Context, pid int) (ProcessState, error) {
	name := s.Command
	if name == "" {
		name = "ps"
	}
	out, err := exec.CommandContext(ctx, name, "-o", "stat=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ps exits non-zero when no process matches.
			return StateMissing, nil
		}
		return StateMissing, fmt.Errorf("running %s: %w", name, err)
	}
	stat := strings.TrimSpace(string(out))
	if stat == "" {
		return StateMissing, nil
	}
	if strings.HasPrefix(stat, "Z") {
		return StateDefunct, nil
	}
	return StateRunning, nil
}
