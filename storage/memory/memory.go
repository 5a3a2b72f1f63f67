// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/radumarias/rencfs-desktop/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu     sync.RWMutex
	data   map[int64]storage.Vault
	nextID int64
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[int64]storage.Vault)}
}

// Close is a no-op.
func (r *Repository) Close() error { return nil }

func (r *Repository) Get(_ context.Context, id int64) (*storage.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(id)
}

func (r *Repository) getLocked(id int64) (*storage.Vault, error) {
	v, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("%d: %w", id, storage.ErrNotFound)
	}
	return &v, nil
}

func (r *Repository) GetAll(_ context.Context, limit int) ([]storage.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getAllLocked(limit), nil
}

func (r *Repository) getAllLocked(limit int) []storage.Vault {
	out := make([]storage.Vault, 0, len(r.data))
	for _, v := range r.data {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Repository) Insert(_ context.Context, nv storage.NewVault) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(nv)
}

func (r *Repository) insertLocked(nv storage.NewVault) (int64, error) {
	if err := nv.Validate(); err != nil {
		return 0, err
	}
	if r.nameTakenLocked(nv.Name, 0) {
		return 0, fmt.Errorf("%s: %w", nv.Name, storage.ErrNameTaken)
	}
	r.nextID++
	r.data[r.nextID] = storage.Vault{
		ID:         r.nextID,
		Name:       nv.Name,
		MountPoint: nv.MountPoint,
		DataDir:    nv.DataDir,
		Locked:     true,
	}
	return r.nextID, nil
}

func (r *Repository) nameTakenLocked(name string, except int64) bool {
	for id, v := range r.data {
		if id != except && v.Name == name {
			return true
		}
	}
	return false
}

func (r *Repository) Update(_ context.Context, id int64, u storage.VaultUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(id, u)
}

func (r *Repository) updateLocked(id int64, u storage.VaultUpdate) error {
	v, ok := r.data[id]
	if !ok {
		return fmt.Errorf("%d: %w", id, storage.ErrNotFound)
	}
	u.Apply(&v)
	if u.Name != nil && r.nameTakenLocked(v.Name, id) {
		return fmt.Errorf("%s: %w", v.Name, storage.ErrNameTaken)
	}
	r.data[id] = v
	return nil
}

func (r *Repository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(id)
}

func (r *Repository) deleteLocked(id int64) error {
	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("%d: %w", id, storage.ErrNotFound)
	}
	delete(r.data, id)
	return nil
}

// Transaction executes fn while holding the write lock. On error, all writes are rolled back.
func (r *Repository) Transaction(_ context.Context, fn func(tx storage.Queries) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, nextID := r.snapshot()
	if err := fn(&memoryTx{repo: r}); err != nil {
		r.data, r.nextID = data, nextID
		return err
	}
	return nil
}

func (r *Repository) snapshot() (map[int64]storage.Vault, int64) {
	cp := make(map[int64]storage.Vault, len(r.data))
	for k, v := range r.data {
		cp[k] = v
	}
	return cp, r.nextID
}

type memoryTx struct {
	repo *Repository
}

func (tx *memoryTx) Get(_ context.Context, id int64) (*storage.Vault, error) {
	return tx.repo.getLocked(id)
}

func (tx *memoryTx) GetAll(_ context.Context, limit int) ([]storage.Vault, error) {
	return tx.repo.getAllLocked(limit), nil
}

func (tx *memoryTx) Insert(_ context.Context, nv storage.NewVault) (int64, error) {
	return tx.repo.insertLocked(nv)
}

func (tx *memoryTx) Update(_ context.Context, id int64, u storage.VaultUpdate) error {
	return tx.repo.updateLocked(id, u)
}

func (tx *memoryTx) Delete(_ context.Context, id int64) error {
	return tx.repo.deleteLocked(id)
}
