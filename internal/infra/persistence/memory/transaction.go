package memory

import (
	"fmt"
	"time"

	"txkit/pkg/domain"
)

type attrKey struct {
	e domain.EntityID
	a string
}

// transaction expands a normalized request into datoms against the snapshot
// it started from. It runs with the store write lock held.
type transaction struct {
	store    *Store
	before   domain.Snapshot
	txID     domain.EntityID
	tempIDs  map[domain.EntityID]domain.EntityID
	working  map[attrKey][]any
	asserted map[attrKey]struct{}
	datoms   []domain.Datom
}

func constraint(op int, format string, args ...any) error {
	return domain.SubmissionError{Kind: domain.KindConstraint, Op: op, Err: fmt.Errorf(format, args...)}
}

func (t *transaction) resolve(op int, id domain.EntityID) (domain.EntityID, error) {
	if id.IsTemp() {
		if perm, ok := t.tempIDs[id]; ok {
			return perm, nil
		}
		perm := t.store.allocID()
		t.tempIDs[id] = perm
		return perm, nil
	}
	if id >= t.txID {
		return 0, constraint(op, "unknown entity %d", id)
	}
	return id, nil
}

func (t *transaction) fresh(e domain.EntityID) bool { return e > t.txID }

func (t *transaction) values(k attrKey) []any {
	if vals, ok := t.working[k]; ok {
		return vals
	}
	var vals []any
	if !t.fresh(k.e) {
		for _, d := range t.before.Datoms(k.e, k.a) {
			vals = append(vals, d.Value)
		}
	}
	t.working[k] = vals
	return vals
}

func indexOf(vals []any, v any) int {
	for i, cur := range vals {
		if domain.ValuesEqual(cur, v) {
			return i
		}
	}
	return -1
}

func (t *transaction) emit(e domain.EntityID, a string, v any, added bool) {
	t.datoms = append(t.datoms, domain.Datom{Entity: e, Attribute: a, Value: v, Tx: t.txID, Added: added})
}

// ownedElsewhere reports whether another entity currently holds v for a.
func (t *transaction) ownedElsewhere(a string, v any, self domain.EntityID) bool {
	for _, d := range t.before.Datoms(0, a) {
		if d.Entity == self || !domain.ValuesEqual(d.Value, v) {
			continue
		}
		if indexOf(t.values(attrKey{e: d.Entity, a: a}), v) >= 0 {
			return true
		}
	}
	for k, vals := range t.working {
		if k.a == a && k.e != self && indexOf(vals, v) >= 0 {
			return true
		}
	}
	return false
}

func (t *transaction) apply(req domain.Request, now time.Time) ([]domain.Datom, error) {
	t.asserted = make(map[attrKey]struct{})
	t.emit(t.txID, domain.AttrTxInstant, now, true)

	for i, op := range req.Operations {
		e, err := t.resolve(i, op.Entity)
		if err != nil {
			return nil, err
		}
		v := op.Value
		if ref, ok := v.(domain.EntityID); ok {
			if v, err = t.resolve(i, ref); err != nil {
				return nil, err
			}
		}
		k := attrKey{e: e, a: op.Attribute}
		vals := t.values(k)

		switch op.Op {
		case domain.OpAssert:
			if indexOf(vals, v) >= 0 {
				continue
			}
			attr := t.store.attribute(op.Attribute)
			if attr.Unique && t.ownedElsewhere(op.Attribute, v, e) {
				return nil, constraint(i, "unique attribute %s: value %v already owned", op.Attribute, v)
			}
			if attr.Cardinality == domain.CardinalityOne {
				if _, dup := t.asserted[k]; dup {
					return nil, constraint(i, "conflicting values for %d %s in one request", e, op.Attribute)
				}
				for _, old := range vals {
					t.emit(e, op.Attribute, old, false)
				}
				vals = nil
				t.asserted[k] = struct{}{}
			}
			t.emit(e, op.Attribute, v, true)
			t.working[k] = append(vals, v)
		case domain.OpRetract:
			idx := indexOf(vals, v)
			if idx < 0 {
				continue
			}
			t.emit(e, op.Attribute, vals[idx], false)
			t.working[k] = append(append([]any(nil), vals[:idx]...), vals[idx+1:]...)
		}
	}

	for temp, perm := range t.tempIDs {
		if !t.hasAssertion(perm) {
			return nil, constraint(-1, "placeholder %d used only as a value", temp)
		}
	}
	return t.datoms, nil
}

func (t *transaction) hasAssertion(e domain.EntityID) bool {
	for _, d := range t.datoms {
		if d.Entity == e && d.Added {
			return true
		}
	}
	return false
}
