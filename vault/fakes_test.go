package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/require"

	"github.com/radumarias/rencfs-desktop/storage"
	"github.com/radumarias/rencfs-desktop/storage/memory"
)

type fakeProcess struct {
	pid          int
	terminateErr error

	mu         sync.Mutex
	terminated int
	killed     int
	done       chan struct{}
	closeOnce  sync.Once
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) exit() { p.closeOnce.Do(func() { close(p.done) }) }

func (p *fakeProcess) Terminate(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated++
	if p.terminateErr != nil {
		return p.terminateErr
	}
	p.exit()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed++
	p.exit()
	return nil
}

func (p *fakeProcess) counts() (terminated, killed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated, p.killed
}

type fakeLauncher struct {
	mu      sync.Mutex
	err     error
	started []Command
	procs   []*fakeProcess
	nextPid int
	// onStart runs outside the lock before the process is returned.
	onStart func(Command) error
	// prepare customizes each new process.
	prepare func(*fakeProcess)
}

func (l *fakeLauncher) Start(c Command) (Process, error) {
	if l.onStart != nil {
		if err := l.onStart(c); err != nil {
			return nil, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.nextPid++
	p := newFakeProcess(1000 + l.nextPid)
	if l.prepare != nil {
		l.prepare(p)
	}
	l.started = append(l.started, c)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) startCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started)
}

func (l *fakeLauncher) command(i int) Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started[i]
}

func (l *fakeLauncher) process(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

type fakeHealth struct {
	mu    sync.Mutex
	state ProcessState
	err   error
	pids  []int
}

func (f *fakeHealth) Check(_ context.Context, pid int) (ProcessState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pids = append(f.pids, pid)
	return f.state, f.err
}

type fakeUnmounter struct {
	mu     sync.Mutex
	err    error
	points []string
}

func (u *fakeUnmounter) Unmount(_ context.Context, mountPoint string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.points = append(u.points, mountPoint)
	return u.err
}

func (u *fakeUnmounter) calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.points...)
}

type staticCredentials struct {
	password string
	err      error
}

func (c staticCredentials) Password(context.Context, int64) (*memguard.LockedBuffer, error) {
	if c.err != nil {
		return nil, c.err
	}
	return memguard.NewBufferFromBytes([]byte(c.password)), nil
}

// flakyStore fails selected operations on demand.
type flakyStore struct {
	storage.Repository

	mu        sync.Mutex
	updateErr error
	getErr    error
	updates   []storage.VaultUpdate
}

func (s *flakyStore) Get(ctx context.Context, id int64) (*storage.Vault, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Repository.Get(ctx, id)
}

func (s *flakyStore) Update(ctx context.Context, id int64, u storage.VaultUpdate) error {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	err := s.updateErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Repository.Update(ctx, id, u)
}

func (s *flakyStore) setUpdateErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *flakyStore) setGetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *flakyStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

var errBoom = errors.New("boom")

type testRig struct {
	store     *flakyStore
	launcher  *fakeLauncher
	health    *fakeHealth
	fallback  *fakeHealth
	unmounter *fakeUnmounter
	logsDir   string
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	return &testRig{
		store:     &flakyStore{Repository: memory.NewRepository()},
		launcher:  &fakeLauncher{},
		health:    &fakeHealth{state: StateRunning},
		fallback:  &fakeHealth{state: StateRunning},
		unmounter: &fakeUnmounter{},
		logsDir:   t.TempDir(),
	}
}

// seed inserts filler records until the vault lands on id.
func (r *testRig) seed(t *testing.T, id int64, mountPoint, dataDir string) {
	t.Helper()
	for n := 0; ; n++ {
		next, err := r.store.Insert(t.Context(), storage.NewVault{
			Name:       fmt.Sprintf("vault-%d-%d", id, n),
			MountPoint: mountPoint,
			DataDir:    dataDir,
		})
		require.NoError(t, err)
		if next == id {
			return
		}
		require.Less(t, next, id)
	}
}

func (r *testRig) handler(id int64, opts ...HandlerOption) *Handler {
	base := []HandlerOption{
		WithLauncher(r.launcher),
		WithHealthCheckers(r.health, r.fallback),
		WithUnmounter(r.unmounter),
		WithCredentials(staticCredentials{password: "correct horse"}),
		WithLogsDir(r.logsDir),
		WithGracePeriod(0),
		WithStopTimeout(time.Second),
	}
	return NewHandler(id, r.store, append(base, opts...)...)
}

func (r *testRig) record(t *testing.T, id int64) *storage.Vault {
	t.Helper()
	v, err := r.store.Repository.Get(t.Context(), id)
	require.NoError(t, err)
	return v
}
