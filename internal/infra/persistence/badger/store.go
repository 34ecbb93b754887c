// Package badger persists the fact log to an embedded Badger key-value store.
// Each datom is one key ordered by transaction and position, so an iteration
// over the datom prefix replays the log in commit order.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"

	"txkit/internal/infra/persistence/memory"
	"txkit/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Connection = (*Store)(nil)

const datomPrefix = "datom/"

type record struct {
	E     int64           `json:"e"`
	A     string          `json:"a"`
	V     json.RawMessage `json:"v"`
	Tx    int64           `json:"tx"`
	Added bool            `json:"added"`
}

func key(tx domain.EntityID, pos int) []byte {
	return []byte(fmt.Sprintf("%s%020d/%06d", datomPrefix, int64(tx), pos))
}

// Store appends each accepted transaction to Badger in a single write batch.
type Store struct {
	*memory.Store
	db *badger.DB
}

// Open opens the store at dirPath. An empty path keeps Badger in memory.
func Open(dirPath string, opts ...memory.Option) (*Store, error) {
	var badgerOpts badger.Options
	if dirPath == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dirPath).WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open backing db")
	}
	s := &Store{Store: memory.NewStore(opts...), db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var log []domain.Datom
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(datomPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return errors.WithMessagef(err, "decode %s", it.Item().Key())
			}
			v, err := domain.DecodeValue(rec.V)
			if err != nil {
				return errors.WithMessagef(err, "decode value %s", it.Item().Key())
			}
			log = append(log, domain.Datom{
				Entity:    domain.EntityID(rec.E),
				Attribute: rec.A,
				Value:     v,
				Tx:        domain.EntityID(rec.Tx),
				Added:     rec.Added,
			})
		}
		return nil
	})
	if err != nil {
		return errors.WithMessage(err, "could not load datoms")
	}
	s.Load(log)
	return nil
}

func (s *Store) persist(_ context.Context, c memory.Commit) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for i, d := range c.Datoms {
			v, err := domain.EncodeValue(d.Value)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(record{E: int64(d.Entity), A: d.Attribute, V: v, Tx: int64(d.Tx), Added: d.Added})
			if err != nil {
				return err
			}
			if err := txn.Set(key(c.Tx, i), payload); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.WithMessagef(err, "could not store tx %d", c.Tx)
}

// Transact applies req and writes its datoms to Badger before publishing.
func (s *Store) Transact(ctx context.Context, req domain.Request) (domain.Result, error) {
	return s.Store.TransactWith(ctx, req, s.persist)
}

// Close closes the store and the Badger handle.
func (s *Store) Close() error {
	if !s.Store.MarkClosed() {
		return nil
	}
	return s.db.Close()
}
