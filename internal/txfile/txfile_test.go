package txfile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"txkit/internal/infra/persistence/memory"
	"txkit/pkg/domain"
)

const sample = `
expect_basis: 0
meta:
  source: fixture
operations:
  - {op: assert, e: "#ada", a: person/name, v: Ada}
  - {op: assert, e: "#ada", a: person/age, v: 36}
  - {op: assert, e: "#grace", a: person/mentor, ref: "#ada"}
`

func TestDecodeNamedPlaceholders(t *testing.T) {
	f, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Request.Operations) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(f.Request.Operations))
	}
	if got := f.SortedNames(); len(got) != 2 || got[0] != "ada" || got[1] != "grace" {
		t.Fatalf("unexpected names %v", got)
	}
	ada := f.Placeholders["ada"]
	if !ada.IsTemp() || f.Request.Operations[0].Entity != ada || f.Request.Operations[1].Entity != ada {
		t.Fatalf("expected #ada to map to one placeholder")
	}
	if ref, ok := f.Request.Operations[2].Value.(domain.EntityID); !ok || ref != ada {
		t.Fatalf("expected ref to #ada, got %#v", f.Request.Operations[2].Value)
	}
	if f.Request.Meta["source"] != "fixture" {
		t.Fatalf("expected meta to carry over, got %v", f.Request.Meta)
	}

	store := memory.NewStore()
	res, err := store.Transact(context.Background(), f.Request)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	names, err := f.Names(res)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if v, ok := res.After().Attribute(names["ada"], "person/age"); !ok || v != int64(36) {
		t.Fatalf("expected age 36, got %v", v)
	}
	if v, ok := res.After().Attribute(names["grace"], "person/mentor"); !ok || v != names["ada"] {
		t.Fatalf("expected mentor ref, got %v", v)
	}
}

func TestDecodeJSONAndPermanentIDs(t *testing.T) {
	f, err := Decode(strings.NewReader(`{"expect_basis": 7, "operations": [{"op": "retract", "e": 12, "a": "person/name", "v": "Ada"}, {"op": "assert", "e": "12", "a": "person/nick", "v": "A"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Request.ExpectBasis != 7 {
		t.Fatalf("expected basis 7, got %d", f.Request.ExpectBasis)
	}
	for _, op := range f.Request.Operations {
		if op.Entity != 12 {
			t.Fatalf("expected entity 12, got %d", op.Entity)
		}
	}
	if len(f.Placeholders) != 0 {
		t.Fatalf("expected no placeholders")
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"no operations": `operations: []`,
		"unknown field": `operations: [{op: assert, e: 1, a: x, v: 1, bogus: true}]`,
		"bad entity":    `operations: [{op: assert, e: "ada", a: x, v: 1}]`,
		"negative id":   `operations: [{op: assert, e: -3, a: x, v: 1}]`,
		"missing e":     `operations: [{op: assert, a: x, v: 1}]`,
		"v and ref":     `operations: [{op: assert, e: 1, a: x, v: 1, ref: 2}]`,
		"blank name":    `operations: [{op: assert, e: "#", a: x, v: 1}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
	if _, err := Decode(strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
