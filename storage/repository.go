// Package storage provides the metadata store abstraction for vault records.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no vault record exists for an id.
	ErrNotFound = errors.New("vault not found")
	// ErrNameTaken is returned when an insert or rename collides with an
	// existing vault name.
	ErrNameTaken = errors.New("vault name already exists")
	// ErrInvalidVault is returned when a new record fails validation.
	ErrInvalidVault = errors.New("invalid vault")
)

// Queries is the set of record operations available both directly on a
// Repository and inside a Transaction.
type Queries interface {
	Get(ctx context.Context, id int64) (*Vault, error)
	// GetAll returns records ordered by id. A limit <= 0 returns all of them.
	GetAll(ctx context.Context, limit int) ([]Vault, error)
	Insert(ctx context.Context, v NewVault) (int64, error)
	Update(ctx context.Context, id int64, u VaultUpdate) error
	Delete(ctx context.Context, id int64) error
}

// Repository defines the interface for durable vault metadata storage.
type Repository interface {
	Queries
	// Transaction runs fn against a transactional view of the store. If fn
	// returns an error every write made through tx is rolled back.
	Transaction(ctx context.Context, fn func(tx Queries) error) error
	Close() error
}
