// Package memory provides the in-process fact store. It owns the append-only
// datom log, resolves placeholders and enforces the attribute schema; the
// durable backends embed it and persist each commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"txkit/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Connection = (*Store)(nil)

// Commit is the unit a durable backend must persist before the store
// publishes a transaction.
type Commit struct {
	Tx     domain.EntityID
	Datoms []domain.Datom
}

// CommitFunc persists a commit. A non-nil error aborts the transaction.
type CommitFunc func(ctx context.Context, c Commit) error

// Option configures a Store.
type Option func(*Store)

// WithSchema declares attributes up front.
func WithSchema(attrs ...domain.Attribute) Option {
	return func(s *Store) {
		for _, a := range attrs {
			s.schema[a.Ident] = a
		}
	}
}

// WithClock overrides the clock used for transaction instants.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// Store is an in-memory transactional fact store.
type Store struct {
	mu     sync.RWMutex
	log    []domain.Datom
	basis  domain.EntityID
	nextID domain.EntityID
	schema map[string]domain.Attribute
	closed bool
	nowFn  func() time.Time
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nextID: 1,
		schema: make(map[string]domain.Attribute),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeclareAttribute registers or replaces an attribute definition.
func (s *Store) DeclareAttribute(attr domain.Attribute) error {
	if attr.Ident == "" {
		return errors.New("attribute ident required")
	}
	switch attr.Cardinality {
	case "", domain.CardinalityOne, domain.CardinalityMany:
	default:
		return fmt.Errorf("attribute %s: unknown cardinality %q", attr.Ident, attr.Cardinality)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema[attr.Ident] = attr
	return nil
}

// Schema returns a copy of the declared attributes.
func (s *Store) Schema() map[string]domain.Attribute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Attribute, len(s.schema))
	for k, v := range s.schema {
		out[k] = v
	}
	return out
}

// Db returns the current snapshot.
func (s *Store) Db() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.NewSnapshot(s.basis, s.log)
}

// Transact applies req to the in-memory log.
func (s *Store) Transact(ctx context.Context, req domain.Request) (domain.Result, error) {
	return s.TransactWith(ctx, req, nil)
}

// TransactWith applies req, invoking commit before the new log is published.
// The store stays unchanged when commit fails.
func (s *Store) TransactWith(ctx context.Context, req domain.Request, commit CommitFunc) (domain.Result, error) {
	norm, err := req.Normalized()
	if err != nil {
		return domain.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.Result{}, domain.NewSubmissionError(domain.KindUnavailable, domain.ErrConnectionClosed)
	}
	if err := ctx.Err(); err != nil {
		return domain.Result{}, domain.NewSubmissionError(domain.KindUnavailable, err)
	}
	if norm.ExpectBasis != 0 && norm.ExpectBasis != s.basis {
		return domain.Result{}, domain.NewSubmissionError(domain.KindConflict,
			fmt.Errorf("expected basis %d, store is at %d", norm.ExpectBasis, s.basis))
	}

	before := domain.NewSnapshot(s.basis, s.log)
	savedNext := s.nextID
	tx := &transaction{
		store:   s,
		before:  before,
		txID:    s.allocID(),
		tempIDs: make(map[domain.EntityID]domain.EntityID),
		working: make(map[attrKey][]any),
	}
	datoms, err := tx.apply(norm, s.nowFn())
	if err != nil {
		s.nextID = savedNext
		return domain.Result{}, err
	}

	if commit != nil {
		if err := commit(ctx, Commit{Tx: tx.txID, Datoms: datoms}); err != nil {
			s.nextID = savedNext
			if domain.IsSubmissionError(err, "") {
				return domain.Result{}, err
			}
			return domain.Result{}, domain.NewSubmissionError(domain.KindUnavailable, fmt.Errorf("persist tx %d: %w", tx.txID, err))
		}
	}

	s.log = append(s.log[:len(s.log):len(s.log)], datoms...)
	s.basis = tx.txID
	after := domain.NewSnapshot(s.basis, s.log)
	return domain.NewResult(before, after, datoms, tx.tempIDs), nil
}

func (s *Store) allocID() domain.EntityID {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) attribute(ident string) domain.Attribute {
	if a, ok := s.schema[ident]; ok {
		if a.Cardinality == "" {
			a.Cardinality = domain.CardinalityOne
		}
		return a
	}
	return domain.Attribute{Ident: ident, Cardinality: domain.CardinalityOne}
}

// Load replaces the store contents with a previously persisted log. The log
// must be ordered by transaction.
func (s *Store) Load(log []domain.Datom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append([]domain.Datom(nil), log...)
	s.basis = 0
	s.nextID = 1
	for _, d := range s.log {
		if d.Tx > s.basis {
			s.basis = d.Tx
		}
		for _, id := range []domain.EntityID{d.Entity, d.Tx} {
			if id >= s.nextID {
				s.nextID = id + 1
			}
		}
		if ref, ok := d.Value.(domain.EntityID); ok && ref >= s.nextID {
			s.nextID = ref + 1
		}
	}
}

// Export returns a copy of the full datom log.
func (s *Store) Export() []domain.Datom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Datom(nil), s.log...)
}

// Close marks the store closed. Closing twice is a no-op.
func (s *Store) Close() error {
	s.MarkClosed()
	return nil
}

// MarkClosed closes the store and reports whether this call did so. Durable
// backends release their handles only when it returns true.
func (s *Store) MarkClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
