package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radumarias/rencfs-desktop/storage"
	"github.com/radumarias/rencfs-desktop/storage/memory"
)

type call struct {
	op   string
	id   int64
	path string
	// record holds the stored path at the time of the call.
	record string
}

type fakeDaemon struct {
	mu      sync.Mutex
	repo    storage.Repository
	calls   []call
	lockErr error
}

func (d *fakeDaemon) add(ctx context.Context, op string, id int64, path string, pick func(*storage.Vault) string) {
	c := call{op: op, id: id, path: path}
	if pick != nil {
		if v, err := d.repo.Get(ctx, id); err == nil {
			c.record = pick(v)
		}
	}
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *fakeDaemon) Lock(ctx context.Context, id int64) error {
	d.add(ctx, "lock", id, "", nil)
	return d.lockErr
}

func (d *fakeDaemon) Unlock(ctx context.Context, id int64) error {
	d.add(ctx, "unlock", id, "", nil)
	return nil
}

func (d *fakeDaemon) ChangeMountPoint(ctx context.Context, id int64, old string) error {
	d.add(ctx, "mount-point", id, old, func(v *storage.Vault) string { return v.MountPoint })
	return nil
}

func (d *fakeDaemon) ChangeDataDir(ctx context.Context, id int64, old string) error {
	d.add(ctx, "data-dir", id, old, func(v *storage.Vault) string { return v.DataDir })
	return nil
}

type fakePasswords struct{ deleted []int64 }

func (p *fakePasswords) Delete(id int64) error {
	p.deleted = append(p.deleted, id)
	return nil
}

func newManager(t *testing.T, opts ...ManagerOption) (*Manager, *fakeDaemon, int64) {
	t.Helper()
	repo := memory.NewRepository()
	d := &fakeDaemon{repo: repo}
	m := NewManager(repo, d, opts...)
	id, err := m.Create(t.Context(), storage.NewVault{Name: "docs", MountPoint: "/mnt/docs", DataDir: "/data/docs"})
	require.NoError(t, err)
	return m, d, id
}

func TestManagerCreateListGet(t *testing.T) {
	m, _, id := newManager(t)
	_, err := m.Create(t.Context(), storage.NewVault{Name: " docs ", MountPoint: "/x", DataDir: "/y"})
	assert.ErrorIs(t, err, storage.ErrNameTaken)

	all, err := m.List(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, all, 1)

	v, err := m.Get(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, v.Locked)
}

func TestManagerRename(t *testing.T) {
	m, d, id := newManager(t)
	require.NoError(t, m.Rename(t.Context(), id, "  papers "))
	v, err := m.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "papers", v.Name)
	assert.ErrorIs(t, m.Rename(t.Context(), id, "   "), storage.ErrInvalidVault)
	assert.Empty(t, d.calls)
}

func TestManagerRelocateSendsOldPathAfterPersisting(t *testing.T) {
	m, d, id := newManager(t)

	require.NoError(t, m.ChangeMountPoint(t.Context(), id, "/mnt/new"))
	require.NoError(t, m.ChangeDataDir(t.Context(), id, "/data/new"))

	require.Len(t, d.calls, 2)
	assert.Equal(t, call{op: "mount-point", id: id, path: "/mnt/docs", record: "/mnt/new"}, d.calls[0])
	assert.Equal(t, call{op: "data-dir", id: id, path: "/data/docs", record: "/data/new"}, d.calls[1])
}

func TestManagerRelocateSkipsUnchangedAndRejectsRelative(t *testing.T) {
	m, d, id := newManager(t)
	require.NoError(t, m.ChangeMountPoint(t.Context(), id, "/mnt/docs"))
	assert.ErrorIs(t, m.ChangeDataDir(t.Context(), id, "rel/dir"), storage.ErrInvalidVault)
	assert.ErrorIs(t, m.ChangeDataDir(t.Context(), 999, "/abs"), storage.ErrNotFound)
	assert.Empty(t, d.calls)
}

func TestManagerDeleteLocksFirst(t *testing.T) {
	pw := &fakePasswords{}
	m, d, id := newManager(t, WithPasswordStore(pw))

	require.NoError(t, m.Delete(t.Context(), id))
	require.Len(t, d.calls, 1)
	assert.Equal(t, "lock", d.calls[0].op)
	assert.Equal(t, []int64{id}, pw.deleted)

	_, err := m.Get(t.Context(), id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManagerDeleteKeepsRecordWhenLockFails(t *testing.T) {
	m, d, id := newManager(t)
	d.lockErr = errors.New("daemon down")

	require.Error(t, m.Delete(t.Context(), id))
	_, err := m.Get(t.Context(), id)
	assert.NoError(t, err)
}

func TestManagerNotifies(t *testing.T) {
	notes := make(chan Notification, 8)
	m, d, id := newManager(t, WithNotifier(NewNotifier(notes, nil)))
	d.lockErr = errors.New("nope")

	require.NoError(t, m.Unlock(t.Context(), id))
	require.Error(t, m.Lock(t.Context(), id))

	assert.Equal(t, OpCreate, (<-notes).Op)
	assert.Equal(t, OpUnlock, (<-notes).Op)
	failed := <-notes
	assert.Equal(t, OpLock, failed.Op)
	assert.Error(t, failed.Err)
}
