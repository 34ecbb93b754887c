// Package postgres persists the fact log to PostgreSQL through the pgx
// database/sql driver while reusing the in-memory store for transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"txkit/internal/infra/persistence/memory"
	"txkit/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ domain.Connection = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/txkit?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS datoms (
		seq BIGSERIAL PRIMARY KEY,
		e BIGINT NOT NULL,
		a TEXT NOT NULL,
		v JSONB NOT NULL,
		tx BIGINT NOT NULL,
		added BOOLEAN NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS datoms_ea_idx ON datoms (e, a)`,
}

// Store persists accepted transactions to Postgres.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using dsn (falls back to DefaultDSN),
// ensures the datoms table exists and hydrates the in-memory log.
func NewStore(ctx context.Context, dsn string, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	log, err := loadLog(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(opts...)
	mem.Load(log)
	return &Store{Store: mem, db: db}, nil
}

func loadLog(ctx context.Context, db *sql.DB) ([]domain.Datom, error) {
	rows, err := db.QueryContext(ctx, `SELECT e, a, v, tx, added FROM datoms ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select datoms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var log []domain.Datom
	for rows.Next() {
		var (
			d   domain.Datom
			raw []byte
		)
		if err := rows.Scan(&d.Entity, &d.Attribute, &raw, &d.Tx, &d.Added); err != nil {
			return nil, fmt.Errorf("scan datom: %w", err)
		}
		if d.Value, err = domain.DecodeValue(raw); err != nil {
			return nil, fmt.Errorf("datom %d/%s: %w", d.Entity, d.Attribute, err)
		}
		log = append(log, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datoms: %w", err)
	}
	return log, nil
}

func (s *Store) persist(ctx context.Context, c memory.Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, d := range c.Datoms {
		raw, err := domain.EncodeValue(d.Value)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO datoms (e, a, v, tx, added) VALUES ($1, $2, $3, $4, $5)`,
			int64(d.Entity), d.Attribute, raw, int64(d.Tx), d.Added); err != nil {
			return fmt.Errorf("insert datom: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Transact applies req and writes its datoms to Postgres before publishing.
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
