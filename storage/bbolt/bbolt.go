// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/radumarias/rencfs-desktop/storage"
)

var (
	vaultsBucket = []byte("vaults")
	namesBucket  = []byte("vault_names")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(vaultsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(namesBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, id int64) (*storage.Vault, error) {
	var v *storage.Vault
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		v, err = (&boltTx{tx: tx}).Get(ctx, id)
		return err
	})
	return v, err
}

func (s *Store) GetAll(ctx context.Context, limit int) ([]storage.Vault, error) {
	var out []storage.Vault
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = (&boltTx{tx: tx}).GetAll(ctx, limit)
		return err
	})
	return out, err
}

func (s *Store) Insert(ctx context.Context, nv storage.NewVault) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = (&boltTx{tx: tx}).Insert(ctx, nv)
		return err
	})
	return id, err
}

func (s *Store) Update(ctx context.Context, id int64, u storage.VaultUpdate) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltTx{tx: tx}).Update(ctx, id, u)
	})
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return (&boltTx{tx: tx}).Delete(ctx, id)
	})
}

// Transaction executes fn within a single read-write BBolt transaction.
func (s *Store) Transaction(_ context.Context, fn func(tx storage.Queries) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// boltTx implements storage.Queries on an open BBolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) Get(_ context.Context, id int64) (*storage.Vault, error) {
	data := t.tx.Bucket(vaultsBucket).Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("%d: %w", id, storage.ErrNotFound)
	}
	var v storage.Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding vault %d: %w", id, err)
	}
	return &v, nil
}

func (t *boltTx) GetAll(_ context.Context, limit int) ([]storage.Vault, error) {
	out := []storage.Vault{}
	c := t.tx.Bucket(vaultsBucket).Cursor()
	for k, data := c.First(); k != nil; k, data = c.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var v storage.Vault
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding vault %d: %w", binary.BigEndian.Uint64(k), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *boltTx) Insert(_ context.Context, nv storage.NewVault) (int64, error) {
	if err := nv.Validate(); err != nil {
		return 0, err
	}
	names := t.tx.Bucket(namesBucket)
	if names.Get([]byte(nv.Name)) != nil {
		return 0, fmt.Errorf("%s: %w", nv.Name, storage.ErrNameTaken)
	}
	b := t.tx.Bucket(vaultsBucket)
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	v := storage.Vault{
		ID:         int64(seq),
		Name:       nv.Name,
		MountPoint: nv.MountPoint,
		DataDir:    nv.DataDir,
		Locked:     true,
	}
	if err := t.put(&v); err != nil {
		return 0, err
	}
	if err := names.Put([]byte(v.Name), itob(v.ID)); err != nil {
		return 0, err
	}
	return v.ID, nil
}

func (t *boltTx) Update(ctx context.Context, id int64, u storage.VaultUpdate) error {
	v, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	oldName := v.Name
	u.Apply(v)
	if v.Name != oldName {
		names := t.tx.Bucket(namesBucket)
		if names.Get([]byte(v.Name)) != nil {
			return fmt.Errorf("%s: %w", v.Name, storage.ErrNameTaken)
		}
		if err := names.Delete([]byte(oldName)); err != nil {
			return err
		}
		if err := names.Put([]byte(v.Name), itob(id)); err != nil {
			return err
		}
	}
	return t.put(v)
}

func (t *boltTx) Delete(ctx context.Context, id int64) error {
	v, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := t.tx.Bucket(namesBucket).Delete([]byte(v.Name)); err != nil {
		return err
	}
	return t.tx.Bucket(vaultsBucket).Delete(itob(id))
}

func (t *boltTx) put(v *storage.Vault) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.tx.Bucket(vaultsBucket).Put(itob(v.ID), data)
}
