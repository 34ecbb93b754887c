package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"txkit/pkg/domain"
)

func fixedClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestTransactResolvesPlaceholdersAndWritesFacts(t *testing.T) {
	store := NewStore(WithClock(fixedClock()))
	ctx := context.Background()
	p := domain.NewTempID()
	req := domain.NewRequest(
		domain.Assert(p, "person/name", "Ada"),
		domain.Assert(p, "person/age", 36),
	)
	res, err := store.Transact(ctx, req)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	id, err := res.Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.IsTemp() {
		t.Fatalf("expected permanent id, got %d", id)
	}
	entity := res.After().Entity(id)
	if len(entity) != 2 || entity["person/name"][0] != "Ada" || entity["person/age"][0] != int64(36) {
		t.Fatalf("unexpected entity facts %v", entity)
	}
	if len(res.Before().Entity(id)) != 0 {
		t.Fatalf("before snapshot must not see new facts")
	}
	if res.Tx() != store.Db().Basis() {
		t.Fatalf("store basis %d does not match tx %d", store.Db().Basis(), res.Tx())
	}
	datoms := res.Datoms()
	if len(datoms) != 3 || datoms[0].Attribute != domain.AttrTxInstant {
		t.Fatalf("unexpected datoms %+v", datoms)
	}
}

func TestTransactSamePlaceholderResolvesConsistently(t *testing.T) {
	store := NewStore()
	a, b := domain.NewTempID(), domain.NewTempID()
	res, err := store.Transact(context.Background(), domain.NewRequest(
		domain.Assert(a, "person/name", "Ada"),
		domain.Assert(b, "person/name", "Grace"),
		domain.Assert(b, "person/friend", a),
		domain.Assert(a, "person/email", "ada@example.com"),
	))
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	ids := res.TempIDs()
	if len(ids) != 2 || ids[a] == ids[b] {
		t.Fatalf("unexpected tempids %v", ids)
	}
	friend, ok := res.After().Attribute(ids[b], "person/friend")
	if !ok || friend != ids[a] {
		t.Fatalf("expected friend ref %d, got %v", ids[a], friend)
	}
	if got := len(res.After().Entity(ids[a])); got != 2 {
		t.Fatalf("expected both facts on the same entity, got %d attrs", got)
	}
}

func TestTransactTwiceIsNotIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := domain.NewTempID()
	req := domain.NewRequest(domain.Assert(p, "person/name", "Ada"))
	first, err := store.Transact(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.Transact(ctx, req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.After().Basis() == second.After().Basis() {
		t.Fatalf("expected different after snapshots")
	}
	for _, d1 := range first.Datoms() {
		for _, d2 := range second.Datoms() {
			if d1 == d2 {
				t.Fatalf("datom %+v written twice", d1)
			}
		}
	}
	id1, _ := first.Resolve(p)
	id2, _ := second.Resolve(p)
	if id1 == id2 {
		t.Fatalf("resubmission must create a new entity")
	}
}

func TestTransactCardinalityOneReplacesValue(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := domain.NewTempID()
	res, err := store.Transact(ctx, domain.NewRequest(domain.Assert(p, "person/name", "Ada")))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	id, _ := res.Resolve(p)

	res, err = store.Transact(ctx, domain.NewRequest(domain.Assert(id, "person/name", "Ada Lovelace")))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	datoms := res.Datoms()
	if len(datoms) != 3 || datoms[1].Added || datoms[1].Value != "Ada" || !datoms[2].Added {
		t.Fatalf("expected retract then assert, got %+v", datoms)
	}
	if v, _ := res.After().Attribute(id, "person/name"); v != "Ada Lovelace" {
		t.Fatalf("unexpected name %v", v)
	}

	res, err = store.Transact(ctx, domain.NewRequest(domain.Assert(id, "person/name", "Ada Lovelace")))
	if err != nil {
		t.Fatalf("redundant: %v", err)
	}
	if len(res.Datoms()) != 1 {
		t.Fatalf("redundant assert should only write the tx instant, got %+v", res.Datoms())
	}
}

func TestTransactCardinalityManyAndRetract(t *testing.T) {
	store := NewStore(WithSchema(domain.Attribute{Ident: "person/tag", Cardinality: domain.CardinalityMany}))
	ctx := context.Background()
	p := domain.NewTempID()
	res, err := store.Transact(ctx, domain.NewRequest(
		domain.Assert(p, "person/tag", "math"),
		domain.Assert(p, "person/tag", "poetry"),
	))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	id, _ := res.Resolve(p)
	if got := len(res.After().Entity(id)["person/tag"]); got != 2 {
		t.Fatalf("expected two tags, got %d", got)
	}
	res, err = store.Transact(ctx, domain.NewRequest(
		domain.Retract(id, "person/tag", "math"),
		domain.Retract(id, "person/tag", "missing"),
	))
	if err != nil {
		t.Fatalf("retract: %v", err)
	}
	if len(res.Datoms()) != 2 {
		t.Fatalf("expected tx instant plus one retraction, got %+v", res.Datoms())
	}
	tags := res.After().Entity(id)["person/tag"]
	if len(tags) != 1 || tags[0] != "poetry" {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestTransactConstraintViolations(t *testing.T) {
	store := NewStore(WithSchema(domain.Attribute{Ident: "person/email", Unique: true}))
	ctx := context.Background()
	p := domain.NewTempID()
	if _, err := store.Transact(ctx, domain.NewRequest(domain.Assert(p, "person/email", "a@example.com"))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	basis := store.Db().Basis()

	cases := map[string]domain.Request{
		"unique":      domain.NewRequest(domain.Assert(domain.NewTempID(), "person/email", "a@example.com")),
		"unknown":     domain.NewRequest(domain.Assert(9999, "person/name", "x")),
		"value only":  domain.NewRequest(domain.Assert(p, "person/name", "x"), domain.Assert(domain.EntityID(1), "person/friend", domain.NewTempID())),
		"conflicting": func() domain.Request { q := domain.NewTempID(); return domain.NewRequest(domain.Assert(q, "person/name", "a"), domain.Assert(q, "person/name", "b")) }(),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Transact(ctx, req)
			if !domain.IsSubmissionError(err, domain.KindConstraint) {
				t.Fatalf("expected constraint violation, got %v", err)
			}
			if store.Db().Basis() != basis {
				t.Fatalf("rejected submission changed the store")
			}
		})
	}
}

func TestTransactExpectBasisConflict(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	res, err := store.Transact(ctx, domain.NewRequest(domain.Assert(domain.NewTempID(), "person/name", "Ada")))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	req := domain.NewRequest(domain.Assert(domain.NewTempID(), "person/name", "Grace"))
	req.ExpectBasis = res.Before().Basis() + 1000
	if _, err := store.Transact(ctx, req); !domain.IsSubmissionError(err, domain.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	req.ExpectBasis = res.Tx()
	if _, err := store.Transact(ctx, req); err != nil {
		t.Fatalf("expected success at current basis: %v", err)
	}
}

func TestTransactWithCommitFailureLeavesStoreUnchanged(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("disk full")
	_, err := store.TransactWith(ctx, domain.NewRequest(domain.Assert(domain.NewTempID(), "person/name", "Ada")),
		func(context.Context, Commit) error { return boom })
	if !domain.IsSubmissionError(err, domain.KindUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected unavailable wrapping cause, got %v", err)
	}
	if store.Db().Basis() != 0 || store.Db().Len() != 0 {
		t.Fatalf("failed commit must not publish datoms")
	}
	res, err := store.Transact(ctx, domain.NewRequest(domain.Assert(domain.NewTempID(), "person/name", "Ada")))
	if err != nil {
		t.Fatalf("transact after failure: %v", err)
	}
	if res.Tx() != 1 {
		t.Fatalf("expected ids to be reused after rollback, tx=%d", res.Tx())
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	store := NewStore()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := store.Transact(context.Background(), domain.NewRequest(domain.Assert(domain.NewTempID(), "a", 1)))
	if !domain.IsSubmissionError(err, domain.KindUnavailable) || !errors.Is(err, domain.ErrConnectionClosed) {
		t.Fatalf("expected closed connection error, got %v", err)
	}
	if !store.Closed() {
		t.Fatalf("expected Closed to report true")
	}
}

func TestMarkClosedReportsTransitionOnce(t *testing.T) {
	store := NewStore()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.MarkClosed() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one closing call, got %d", wins.Load())
	}
	if store.MarkClosed() {
		t.Fatalf("closed store reported a second transition")
	}
}

func TestNonFiniteFloatIsConstraint(t *testing.T) {
	store := NewStore()
	_, err := store.Transact(context.Background(), domain.NewRequest(domain.Assert(domain.NewTempID(), "m/x", math.Inf(1))))
	if !domain.IsSubmissionError(err, domain.KindConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
	if store.Db().Len() != 0 {
		t.Fatalf("rejected request must not write facts")
	}
}

func TestLoadRestoresBasisAndAllocator(t *testing.T) {
	src := NewStore()
	ctx := context.Background()
	p := domain.NewTempID()
	res, err := src.Transact(ctx, domain.NewRequest(domain.Assert(p, "person/name", "Ada")))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	dst := NewStore()
	dst.Load(src.Export())
	if dst.Db().Basis() != res.Tx() {
		t.Fatalf("basis mismatch %d != %d", dst.Db().Basis(), res.Tx())
	}
	next, err := dst.Transact(ctx, domain.NewRequest(domain.Assert(domain.NewTempID(), "person/name", "Grace")))
	if err != nil {
		t.Fatalf("transact after load: %v", err)
	}
	id, _ := res.Resolve(p)
	if next.Tx() <= id {
		t.Fatalf("allocator not advanced past loaded ids")
	}
}

func TestDeclareAttributeValidation(t *testing.T) {
	store := NewStore()
	if err := store.DeclareAttribute(domain.Attribute{}); err == nil {
		t.Fatalf("expected ident error")
	}
	if err := store.DeclareAttribute(domain.Attribute{Ident: "x", Cardinality: "few"}); err == nil {
		t.Fatalf("expected cardinality error")
	}
	if err := store.DeclareAttribute(domain.Attribute{Ident: "x", Cardinality: domain.CardinalityMany}); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if store.Schema()["x"].Cardinality != domain.CardinalityMany {
		t.Fatalf("schema not recorded")
	}
}
