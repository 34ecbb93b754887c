package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewTempIDIsNegativeAndUnique(t *testing.T) {
	a, b := NewTempID(), NewTempID()
	if !a.IsTemp() || !IsTempID(b) {
		t.Fatalf("expected placeholders, got %d %d", a, b)
	}
	if a == b {
		t.Fatalf("expected distinct placeholders")
	}
	if EntityID(5).IsTemp() {
		t.Fatalf("positive id reported as placeholder")
	}
}

func TestRequestNormalizedRejectsInvalidOperations(t *testing.T) {
	p := NewTempID()
	cases := []struct {
		name string
		req  Request
		op   int
	}{
		{"empty", Request{}, -1},
		{"zero entity", NewRequest(Assert(0, "person/name", "x")), 0},
		{"blank attribute", NewRequest(Assert(p, " ", "x")), 0},
		{"nil value", NewRequest(Assert(p, "person/name", "ok"), Assert(p, "person/age", nil)), 1},
		{"reserved attribute", NewRequest(Assert(p, AttrTxInstant, time.Now())), 0},
		{"retract placeholder", NewRequest(Retract(p, "person/name", "x")), 0},
		{"unsupported value", NewRequest(Assert(p, "person/tags", []string{"a"})), 0},
		{"nan value", NewRequest(Assert(p, "m/x", 1.5), Assert(p, "m/y", math.NaN())), 1},
		{"infinite value", NewRequest(Assert(p, "m/x", math.Inf(1))), 0},
		{"infinite float32", NewRequest(Assert(p, "m/x", float32(math.Inf(-1)))), 0},
		{"unknown op", Request{Operations: []Operation{{Op: "upsert", Entity: p, Attribute: "a", Value: 1}}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			var se SubmissionError
			if !errors.As(err, &se) {
				t.Fatalf("expected SubmissionError, got %v", err)
			}
			if se.Kind != KindConstraint || se.Op != tc.op {
				t.Fatalf("unexpected error %+v", se)
			}
		})
	}
}

func TestRequestNormalizedConvertsValues(t *testing.T) {
	p := NewTempID()
	req, err := NewRequest(Assert(p, "person/age", 42), Assert(p, "person/score", float32(1.5))).Normalized()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, ok := req.Operations[0].Value.(int64); !ok {
		t.Fatalf("expected int64, got %T", req.Operations[0].Value)
	}
	if _, ok := req.Operations[1].Value.(float64); !ok {
		t.Fatalf("expected float64, got %T", req.Operations[1].Value)
	}
}

func TestRequestPlaceholdersFirstUseOrder(t *testing.T) {
	a, b := NewTempID(), NewTempID()
	req := NewRequest(
		Assert(a, "person/name", "Ada"),
		Assert(b, "person/friend", a),
		Assert(a, "person/friend", b),
		Assert(7, "person/name", "Existing"),
	)
	got := req.Placeholders()
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("unexpected placeholders %v", got)
	}
}

func TestSnapshotAppliesRetractions(t *testing.T) {
	log := []Datom{
		{Entity: 1, Attribute: AttrTxInstant, Value: time.Unix(0, 0).UTC(), Tx: 1, Added: true},
		{Entity: 2, Attribute: "person/name", Value: "Ada", Tx: 1, Added: true},
		{Entity: 3, Attribute: AttrTxInstant, Value: time.Unix(1, 0).UTC(), Tx: 3, Added: true},
		{Entity: 2, Attribute: "person/name", Value: "Ada", Tx: 3, Added: false},
		{Entity: 2, Attribute: "person/name", Value: "Grace", Tx: 3, Added: true},
	}
	before := NewSnapshot(1, log[:2])
	after := NewSnapshot(3, log)
	if v, ok := before.Attribute(2, "person/name"); !ok || v != "Ada" {
		t.Fatalf("before snapshot: got %v %v", v, ok)
	}
	if v, ok := after.Attribute(2, "person/name"); !ok || v != "Grace" {
		t.Fatalf("after snapshot: got %v %v", v, ok)
	}
	if n := len(after.Datoms(2, "")); n != 1 {
		t.Fatalf("expected one current fact, got %d", n)
	}
	if ents := after.Entities(); len(ents) != 3 {
		t.Fatalf("unexpected entities %v", ents)
	}
}

func TestSnapshotQueryJoinsAndParams(t *testing.T) {
	log := []Datom{
		{Entity: 10, Attribute: "person/name", Value: "Ada", Tx: 1, Added: true},
		{Entity: 10, Attribute: "person/age", Value: int64(36), Tx: 1, Added: true},
		{Entity: 11, Attribute: "person/name", Value: "Grace", Tx: 1, Added: true},
		{Entity: 11, Attribute: "person/friend", Value: EntityID(10), Tx: 1, Added: true},
	}
	snap := NewSnapshot(1, log)

	rows, err := snap.Query(Query{
		Find:  []string{"?name"},
		In:    []string{"?age"},
		Where: []Clause{Pattern("?e", "person/age", "?age"), Pattern("?e", "person/name", "?name")},
	}, 36)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "Ada" {
		t.Fatalf("unexpected rows %v", rows)
	}

	rows, err = snap.Query(Query{
		Find:  []string{"?friend"},
		Where: []Clause{Pattern("?g", "person/name", "Grace"), Pattern("?g", "person/friend", "?f"), Pattern("?f", "person/name", "?friend")},
	})
	if err != nil {
		t.Fatalf("join query: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "Ada" {
		t.Fatalf("unexpected join rows %v", rows)
	}

	rows, err = snap.Query(Query{Find: []string{"?e"}, Where: []Clause{Pattern("?e", "person/name", "_")}})
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected two distinct entities, got %v %v", rows, err)
	}
}

func TestSnapshotQueryInvalid(t *testing.T) {
	snap := NewSnapshot(0, nil)
	if _, err := snap.Query(Query{}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for empty find, got %v", err)
	}
	if _, err := snap.Query(Query{Find: []string{"?x"}, Where: []Clause{Pattern("?e", "a", "_")}}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for unbound find var, got %v", err)
	}
	if _, err := snap.Query(Query{Find: []string{"?x"}, In: []string{"?x"}}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for arity mismatch, got %v", err)
	}
}

func TestEncodeDecodeValuePreservesType(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, v := range []any{"s", true, int64(3), 2.5, now, EntityID(99)} {
		raw, err := EncodeValue(v)
		if err != nil {
			t.Fatalf("encode %v: %v", v, err)
		}
		got, err := DecodeValue(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if !ValuesEqual(got, v) || typeOf(got) != typeOf(v) {
			t.Fatalf("round trip mismatch: %v (%T) vs %v (%T)", got, got, v, v)
		}
	}
	for _, v := range []any{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := EncodeValue(v); err == nil {
			t.Fatalf("expected %v to be rejected", v)
		}
	}
	if _, err := DecodeValue([]byte(`{"t":"blob","v":1}`)); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestResultResolveUnknownPlaceholder(t *testing.T) {
	p, q := NewTempID(), NewTempID()
	res := NewResult(NewSnapshot(0, nil), NewSnapshot(1, nil), nil, map[EntityID]EntityID{p: 5})
	id, err := res.Resolve(p)
	if err != nil || id != 5 {
		t.Fatalf("resolve: %v %v", id, err)
	}
	_, err = res.Resolve(q)
	var upe UnknownPlaceholderError
	if !errors.As(err, &upe) || upe.Placeholder != q {
		t.Fatalf("expected UnknownPlaceholderError, got %v", err)
	}
	ids := res.TempIDs()
	ids[q] = 9
	if _, err := res.Resolve(q); err == nil {
		t.Fatalf("TempIDs must return a copy")
	}
}

func TestIsSubmissionError(t *testing.T) {
	err := NewSubmissionError(KindConflict, errors.New("stale"))
	if !IsSubmissionError(err, KindConflict) || !IsSubmissionError(err, "") {
		t.Fatalf("expected conflict match")
	}
	if IsSubmissionError(err, KindConstraint) || IsSubmissionError(errors.New("x"), "") {
		t.Fatalf("unexpected match")
	}
}
