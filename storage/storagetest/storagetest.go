// Package storagetest holds a conformance suite shared by every storage.Repository backend.
package storagetest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radumarias/rencfs-desktop/storage"
)

// Run exercises the full Repository contract against a fresh store from newRepo.
func Run(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("InsertGet", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Insert(t.Context(), storage.NewVault{Name: "  work ", MountPoint: "/mnt/work", DataDir: "/data/work"})
		require.NoError(t, err)
		require.NotZero(t, id)

		v, err := repo.Get(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, id, v.ID)
		assert.Equal(t, "work", v.Name)
		assert.Equal(t, "/mnt/work", v.MountPoint)
		assert.Equal(t, "/data/work", v.DataDir)
		assert.True(t, v.Locked, "new vaults start locked")
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(t.Context(), 42)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("InsertDuplicateName", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(t.Context(), storage.NewVault{Name: "dup", MountPoint: "/mnt/a", DataDir: "/data/a"})
		require.NoError(t, err)
		_, err = repo.Insert(t.Context(), storage.NewVault{Name: "dup", MountPoint: "/mnt/b", DataDir: "/data/b"})
		assert.ErrorIs(t, err, storage.ErrNameTaken)
	})

	t.Run("InsertInvalid", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(t.Context(), storage.NewVault{Name: "rel", MountPoint: "mnt", DataDir: "/data"})
		assert.ErrorIs(t, err, storage.ErrInvalidVault)
		_, err = repo.Insert(t.Context(), storage.NewVault{Name: " ", MountPoint: "/mnt", DataDir: "/data"})
		assert.ErrorIs(t, err, storage.ErrInvalidVault)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Insert(t.Context(), storage.NewVault{Name: "v", MountPoint: "/mnt/v", DataDir: "/data/v"})
		require.NoError(t, err)

		require.NoError(t, repo.Update(t.Context(), id, storage.SetLocked(false)))
		require.NoError(t, repo.Update(t.Context(), id, storage.SetMountPoint("/mnt/moved")))

		v, err := repo.Get(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, v.Locked)
		assert.Equal(t, "/mnt/moved", v.MountPoint)
		assert.Equal(t, "/data/v", v.DataDir, "fields outside the update are untouched")

		require.NoError(t, repo.Update(t.Context(), id, storage.VaultUpdate{}), "empty update is a no-op")
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Update(t.Context(), 99, storage.SetLocked(true))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("RenameCollision", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(t.Context(), storage.NewVault{Name: "a", MountPoint: "/mnt/a", DataDir: "/data/a"})
		require.NoError(t, err)
		id, err := repo.Insert(t.Context(), storage.NewVault{Name: "b", MountPoint: "/mnt/b", DataDir: "/data/b"})
		require.NoError(t, err)

		name := "a"
		err = repo.Update(t.Context(), id, storage.VaultUpdate{Name: &name})
		assert.ErrorIs(t, err, storage.ErrNameTaken)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Insert(t.Context(), storage.NewVault{Name: "gone", MountPoint: "/mnt/g", DataDir: "/data/g"})
		require.NoError(t, err)
		require.NoError(t, repo.Delete(t.Context(), id))

		_, err = repo.Get(t.Context(), id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(t.Context(), id), storage.ErrNotFound)
	})

	t.Run("GetAllLimit", func(t *testing.T) {
		repo := newRepo(t)
		for _, name := range []string{"one", "two", "three"} {
			_, err := repo.Insert(t.Context(), storage.NewVault{Name: name, MountPoint: "/mnt/" + name, DataDir: "/data/" + name})
			require.NoError(t, err)
		}

		all, err := repo.GetAll(t.Context(), 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "one", all[0].Name)
		assert.Equal(t, "three", all[2].Name)

		some, err := repo.GetAll(t.Context(), 2)
		require.NoError(t, err)
		assert.Len(t, some, 2)
	})

	t.Run("TransactionCommit", func(t *testing.T) {
		repo := newRepo(t)
		var id int64
		err := repo.Transaction(t.Context(), func(tx storage.Queries) error {
			var err error
			id, err = tx.Insert(t.Context(), storage.NewVault{Name: "tx", MountPoint: "/mnt/tx", DataDir: "/data/tx"})
			if err != nil {
				return err
			}
			return tx.Update(t.Context(), id, storage.SetLocked(false))
		})
		require.NoError(t, err)

		v, err := repo.Get(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, v.Locked)
	})

	t.Run("TransactionRollback", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Insert(t.Context(), storage.NewVault{Name: "keep", MountPoint: "/mnt/k", DataDir: "/data/k"})
		require.NoError(t, err)

		boom := errors.New("boom")
		err = repo.Transaction(t.Context(), func(tx storage.Queries) error {
			if err := tx.Update(t.Context(), id, storage.SetLocked(false)); err != nil {
				return err
			}
			if _, err := tx.Insert(t.Context(), storage.NewVault{Name: "discarded", MountPoint: "/mnt/d", DataDir: "/data/d"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		v, err := repo.Get(t.Context(), id)
		require.NoError(t, err)
		assert.True(t, v.Locked, "update inside failed transaction must be rolled back")

		all, err := repo.GetAll(t.Context(), 0)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}
