package vault

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// killWait bounds how long Kill waits for the reaper after SIGKILL.
const killWait = 5 * time.Second

// Command describes one filesystem process to start.
type Command struct {
	Path   string
	Args   []string
	Env    []string // appended to the daemon's environment
	Stdout *os.File
	Stderr *os.File
}

// Process is a started filesystem process.
type Process interface {
	Pid() int
	// Terminate sends SIGTERM and waits up to timeout for the process to
	// exit before killing it.
	Terminate(timeout time.Duration) error
	// Kill stops the process immediately.
	Kill() error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

// Launcher starts filesystem processes.
type Launcher interface {
	Start(cmd Command) (Process, error)
}

// ExecLauncher starts processes with os/exec.
type ExecLauncher struct{}

var _ Launcher = ExecLauncher{}

// Start launches cmd and begins reaping it in the background, so a process
// that exits on its own never lingers as a zombie of the daemon.
func (ExecLauncher) Start(c Command) (Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Path, err)
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) reap() {
	// The exit status is not needed; callers only observe that the process is gone.
	_ = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Terminate(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return nil
		}
		// Platforms without SIGTERM only support Kill.
		return p.Kill()
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return p.Kill()
	}
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process %d: %w", p.Pid(), err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d did not exit after kill", p.Pid())
	}
}
