// Package sqlite persists the fact log to an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"txkit/internal/infra/persistence/memory"
	"txkit/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.Connection = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "txkit.db"

// Store appends every accepted transaction to a datoms table and serves
// reads from the embedded in-memory log.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating when missing) the database at path and hydrates
// the in-memory log from it.
func NewStore(path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS datoms (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		e INTEGER NOT NULL,
		a TEXT NOT NULL,
		v BLOB NOT NULL,
		tx INTEGER NOT NULL,
		added INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create datoms table: %w", err)
	}
	s := &Store{Store: memory.NewStore(opts...), db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT e, a, v, tx, added FROM datoms ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("select datoms: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var log []domain.Datom
	for rows.Next() {
		var (
			d     domain.Datom
			raw   []byte
			added int64
		)
		if err := rows.Scan(&d.Entity, &d.Attribute, &raw, &d.Tx, &added); err != nil {
			return fmt.Errorf("scan datom: %w", err)
		}
		if d.Value, err = domain.DecodeValue(raw); err != nil {
			return fmt.Errorf("datom %d/%s: %w", d.Entity, d.Attribute, err)
		}
		d.Added = added != 0
		log = append(log, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate datoms: %w", err)
	}
	s.Load(log)
	return nil
}

func (s *Store) persist(ctx context.Context, c memory.Commit) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, d := range c.Datoms {
		raw, err := domain.EncodeValue(d.Value)
		if err != nil {
			return err
		}
		added := 0
		if d.Added {
			added = 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO datoms(e,a,v,tx,added) VALUES(?,?,?,?,?)`,
			int64(d.Entity), d.Attribute, raw, int64(d.Tx), added); err != nil {
			return fmt.Errorf("insert datom: %w", err)
		}
	}
	return tx.Commit()
}

// Transact applies req and appends the resulting datoms before publishing.
func (s *Store) Transact(ctx context.Context, req domain.Request) (domain.Result, error) {
	return s.Store.TransactWith(ctx, req, s.persist)
}

// Close closes the store and the database handle.
func (s *Store) Close() error {
	if !s.Store.MarkClosed() {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
