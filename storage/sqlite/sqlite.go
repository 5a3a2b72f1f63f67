// Package sqlite provides a SQLite-backed storage repository.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/radumarias/rencfs-desktop/storage"
)

//go:embed schema.sql
var schemaSQL string

// Connection-level settings applied on open. mattn/go-sqlite3 has no DSN
// parameter for the checkpoint pragmas.
const tuningSQL = `
PRAGMA wal_autocheckpoint = 1000;
PRAGMA wal_checkpoint(TRUNCATE);
`

const selectVault = `SELECT id, name, mount_point, data_dir, locked FROM vaults`

// Store implements storage.Repository backed by a SQLite database.
type Store struct {
	db *sqlx.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by db and ensures the schema exists.
func NewRepository(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens the SQLite database at path and returns a new Repository.
func NewRepositoryFromFile(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=250&_foreign_keys=on"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection serializes every statement, so the store behaves
	// as one shared resource behind an exclusive lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, tuningSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("tuning sqlite db: %w", err)
	}
	s, err := NewRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the required tables if they do not exist.
// It is safe to call on every startup (all statements use IF NOT EXISTS).
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, id int64) (*storage.Vault, error) {
	return queries{s.db}.Get(ctx, id)
}

func (s *Store) GetAll(ctx context.Context, limit int) ([]storage.Vault, error) {
	return queries{s.db}.GetAll(ctx, limit)
}

func (s *Store) Insert(ctx context.Context, nv storage.NewVault) (int64, error) {
	return queries{s.db}.Insert(ctx, nv)
}

func (s *Store) Update(ctx context.Context, id int64, u storage.VaultUpdate) error {
	return queries{s.db}.Update(ctx, id, u)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return queries{s.db}.Delete(ctx, id)
}

// Transaction runs fn inside a SQL transaction, committing only if fn succeeds.
func (s *Store) Transaction(ctx context.Context, fn func(tx storage.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(queries{tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// queries implements storage.Queries on either the database or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

func (q queries) Get(ctx context.Context, id int64) (*storage.Vault, error) {
	var v storage.Vault
	err := sqlx.GetContext(ctx, q.ext, &v, selectVault+` WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%d: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("getting vault %d: %w", id, err)
	}
	return &v, nil
}

func (q queries) GetAll(ctx context.Context, limit int) ([]storage.Vault, error) {
	out := []storage.Vault{}
	var err error
	if limit > 0 {
		err = sqlx.SelectContext(ctx, q.ext, &out, selectVault+` ORDER BY id LIMIT ?`, limit)
	} else {
		err = sqlx.SelectContext(ctx, q.ext, &out, selectVault+` ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("listing vaults: %w", err)
	}
	return out, nil
}

func (q queries) Insert(ctx context.Context, nv storage.NewVault) (int64, error) {
	if err := nv.Validate(); err != nil {
		return 0, err
	}
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO vaults (name, mount_point, data_dir, locked) VALUES (?, ?, ?, 1)`,
		nv.Name, nv.MountPoint, nv.DataDir)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", nv.Name, storage.ErrNameTaken)
		}
		return 0, fmt.Errorf("inserting vault: %w", err)
	}
	return res.LastInsertId()
}

func (q queries) Update(ctx context.Context, id int64, u storage.VaultUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	var sets []string
	var args []any
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, storage.NormalizeName(*u.Name))
	}
	if u.MountPoint != nil {
		sets = append(sets, "mount_point = ?")
		args = append(args, *u.MountPoint)
	}
	if u.DataDir != nil {
		sets = append(sets, "data_dir = ?")
		args = append(args, *u.DataDir)
	}
	if u.Locked != nil {
		sets = append(sets, "locked = ?")
		args = append(args, *u.Locked)
	}
	args = append(args, id)

	res, err := q.ext.ExecContext(ctx, `UPDATE vaults SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", *u.Name, storage.ErrNameTaken)
		}
		return fmt.Errorf("updating vault %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (q queries) Delete(ctx context.Context, id int64) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM vaults WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting vault %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
