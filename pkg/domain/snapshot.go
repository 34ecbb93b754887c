package domain

import "sort"

// AttrTxInstant is asserted on every transaction entity with the commit time.
const AttrTxInstant = "db/txInstant"

// Datom is one elementary fact written by a transaction.
type Datom struct {
	Entity    EntityID `json:"e"`
	Attribute string   `json:"a"`
	Value     any      `json:"v"`
	Tx        EntityID `json:"tx"`
	Added     bool     `json:"added"`
}

// Snapshot is an immutable value of the database as of a basis transaction.
// It shares the append-only log prefix it was built from; callers must not
// mutate the slice passed to NewSnapshot afterwards.
type Snapshot struct {
	basis EntityID
	log   []Datom
}

// NewSnapshot builds a snapshot over log as of basis.
func NewSnapshot(basis EntityID, log []Datom) Snapshot {
	return Snapshot{basis: basis, log: log[:len(log):len(log)]}
}

// Basis returns the id of the last transaction visible in the snapshot, or
// zero for the empty database.
func (s Snapshot) Basis() EntityID { return s.basis }

// Len returns the number of datoms in the log prefix, retractions included.
func (s Snapshot) Len() int { return len(s.log) }

// Log returns a copy of the raw datom log visible in the snapshot.
func (s Snapshot) Log() []Datom {
	return append([]Datom(nil), s.log...)
}

type factKey struct {
	e EntityID
	a string
	v string
}

// current replays the log and returns the facts that are asserted and not
// later retracted, ordered by the transaction that asserted them.
func (s Snapshot) current(match func(Datom) bool) []Datom {
	live := make(map[factKey]int)
	var out []Datom
	var dead []bool
	for _, d := range s.log {
		if match != nil && !match(d) {
			continue
		}
		k := factKey{e: d.Entity, a: d.Attribute, v: valueKey(d.Value)}
		if d.Added {
			if _, ok := live[k]; ok {
				continue
			}
			live[k] = len(out)
			out = append(out, d)
			dead = append(dead, false)
			continue
		}
		if i, ok := live[k]; ok {
			dead[i] = true
			delete(live, k)
		}
	}
	res := out[:0]
	for i, d := range out {
		if !dead[i] {
			res = append(res, d)
		}
	}
	return res
}

// Datoms returns the current facts for entity e and attribute a. A zero
// entity or empty attribute acts as a wildcard.
func (s Snapshot) Datoms(e EntityID, a string) []Datom {
	return s.current(func(d Datom) bool {
		if e != 0 && d.Entity != e {
			return false
		}
		if a != "" && d.Attribute != a {
			return false
		}
		return true
	})
}

// Entity returns the current attribute values of id.
func (s Snapshot) Entity(id EntityID) map[string][]any {
	out := make(map[string][]any)
	for _, d := range s.Datoms(id, "") {
		out[d.Attribute] = append(out[d.Attribute], d.Value)
	}
	return out
}

// Attribute returns the first current value of attr on id.
func (s Snapshot) Attribute(id EntityID, attr string) (any, bool) {
	ds := s.Datoms(id, attr)
	if len(ds) == 0 {
		return nil, false
	}
	return ds[0].Value, true
}

// Entities returns the ids of all entities with at least one current fact,
// in ascending order.
func (s Snapshot) Entities() []EntityID {
	seen := make(map[EntityID]struct{})
	for _, d := range s.current(nil) {
		seen[d.Entity] = struct{}{}
	}
	out := make([]EntityID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
