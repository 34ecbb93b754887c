package domain

import (
	"fmt"
	"strings"
)

// Clause is an entity/attribute/value pattern. A string term starting with
// "?" is a variable, "_" matches anything, every other term is a constant.
type Clause struct {
	E any
	A any
	V any
}

// Pattern builds a clause.
func Pattern(e, a, v any) Clause { return Clause{E: e, A: a, V: v} }

// Query is a conjunctive pattern query over the current facts of a snapshot.
type Query struct {
	Find  []string
	In    []string
	Where []Clause
}

// Rows holds distinct result tuples in discovery order.
type Rows [][]any

type binding map[string]any

func isVar(t any) (string, bool) {
	s, ok := t.(string)
	if !ok || !strings.HasPrefix(s, "?") {
		return "", false
	}
	return s, true
}

func isBlank(t any) bool {
	s, ok := t.(string)
	return ok && s == "_"
}

// Query evaluates q against the snapshot. params bind q.In positionally.
func (s Snapshot) Query(q Query, params ...any) (Rows, error) {
	if len(q.Find) == 0 {
		return nil, fmt.Errorf("%w: no find variables", ErrInvalidQuery)
	}
	if len(params) != len(q.In) {
		return nil, fmt.Errorf("%w: expected %d params, got %d", ErrInvalidQuery, len(q.In), len(params))
	}
	seed := binding{}
	for i, name := range q.In {
		if _, ok := isVar(name); !ok {
			return nil, fmt.Errorf("%w: input %q is not a variable", ErrInvalidQuery, name)
		}
		v, err := NormalizeValue(params[i])
		if err != nil {
			return nil, fmt.Errorf("%w: param %d: %v", ErrInvalidQuery, i, err)
		}
		seed[name] = v
	}
	if !findBound(q) {
		return nil, fmt.Errorf("%w: find variable not bound by any clause", ErrInvalidQuery)
	}

	facts := s.current(nil)
	bindings := []binding{seed}
	for _, c := range q.Where {
		var next []binding
		for _, b := range bindings {
			for _, d := range facts {
				if nb, ok := unifyClause(b, c, d); ok {
					next = append(next, nb)
				}
			}
		}
		bindings = next
		if len(bindings) == 0 {
			break
		}
	}

	seen := make(map[string]struct{})
	var rows Rows
	for _, b := range bindings {
		row := make([]any, len(q.Find))
		keys := make([]string, len(q.Find))
		for i, name := range q.Find {
			row[i] = b[name]
			keys[i] = valueKey(b[name])
		}
		k := strings.Join(keys, "\x00")
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, row)
	}
	return rows, nil
}

func findBound(q Query) bool {
	bound := make(map[string]struct{})
	for _, name := range q.In {
		bound[name] = struct{}{}
	}
	for _, c := range q.Where {
		for _, t := range []any{c.E, c.A, c.V} {
			if name, ok := isVar(t); ok {
				bound[name] = struct{}{}
			}
		}
	}
	for _, name := range q.Find {
		if _, ok := bound[name]; !ok {
			return false
		}
	}
	return true
}

func unifyClause(b binding, c Clause, d Datom) (binding, bool) {
	out := b
	copied := false
	bind := func(term, val any) bool {
		if isBlank(term) {
			return true
		}
		name, ok := isVar(term)
		if !ok {
			nv, err := NormalizeValue(term)
			if err != nil {
				return false
			}
			return valueKey(nv) == valueKey(val)
		}
		if cur, ok := out[name]; ok {
			return valueKey(cur) == valueKey(val)
		}
		if !copied {
			nb := make(binding, len(b)+3)
			for k, v := range b {
				nb[k] = v
			}
			out = nb
			copied = true
		}
		out[name] = val
		return true
	}
	if !bind(c.E, d.Entity) || !bind(c.A, d.Attribute) || !bind(c.V, d.Value) {
		return nil, false
	}
	return out, true
}
