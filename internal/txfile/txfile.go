// Package txfile decodes transaction requests from YAML or JSON documents.
//
// Entities are written either as a permanent id (42) or as a named
// placeholder ("#ada"). A reference value uses the ref key instead of v:
//
//	operations:
//	  - {op: assert, e: "#ada", a: person/name, v: Ada}
//	  - {op: assert, e: "#grace", a: person/mentor, ref: "#ada"}
package txfile

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"txkit/pkg/domain"
)

// ErrEmpty is returned for a document with no request.
var ErrEmpty = errors.New("txfile: empty document")

type document struct {
	ExpectBasis int64          `yaml:"expect_basis"`
	Meta        map[string]any `yaml:"meta"`
	Operations  []operation    `yaml:"operations"`
}

type operation struct {
	Op  string `yaml:"op"`
	E   any    `yaml:"e"`
	A   string `yaml:"a"`
	V   any    `yaml:"v"`
	Ref any    `yaml:"ref"`
}

// File is a decoded request together with its named placeholders.
type File struct {
	Request      domain.Request
	Placeholders map[string]domain.EntityID
}

// Names maps each placeholder name to the id it resolved to in res.
func (f File) Names(res domain.Result) (map[string]domain.EntityID, error) {
	out := make(map[string]domain.EntityID, len(f.Placeholders))
	for name, p := range f.Placeholders {
		id, err := res.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("placeholder #%s: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

// SortedNames returns the placeholder names in lexical order.
func (f File) SortedNames() []string {
	names := make([]string, 0, len(f.Placeholders))
	for name := range f.Placeholders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode reads one request document from r.
func Decode(r io.Reader) (File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, ErrEmpty
		}
		return File{}, fmt.Errorf("txfile: %w", err)
	}

	f := File{Placeholders: make(map[string]domain.EntityID)}
	req := domain.Request{ExpectBasis: domain.EntityID(doc.ExpectBasis), Meta: doc.Meta}
	for i, op := range doc.Operations {
		out, err := f.operation(op)
		if err != nil {
			return File{}, fmt.Errorf("txfile: operation %d: %w", i, err)
		}
		req.Operations = append(req.Operations, out)
	}
	if len(req.Operations) == 0 {
		return File{}, ErrEmpty
	}
	f.Request = req
	return f, nil
}

func (f File) operation(op operation) (domain.Operation, error) {
	e, err := f.entity(op.E)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("entity: %w", err)
	}
	var v any
	switch {
	case op.Ref != nil && op.V != nil:
		return domain.Operation{}, errors.New("v and ref are exclusive")
	case op.Ref != nil:
		ref, err := f.entity(op.Ref)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("ref: %w", err)
		}
		v = ref
	default:
		v = op.V
	}
	return domain.Operation{Op: domain.Op(op.Op), Entity: e, Attribute: op.A, Value: v}, nil
}

func (f File) entity(term any) (domain.EntityID, error) {
	switch t := term.(type) {
	case nil:
		return 0, errors.New("missing")
	case int:
		return permanent(int64(t))
	case int64:
		return permanent(t)
	case string:
		if name, ok := strings.CutPrefix(t, "#"); ok {
			if name == "" {
				return 0, errors.New("placeholder name required")
			}
			if p, ok := f.Placeholders[name]; ok {
				return p, nil
			}
			p := domain.NewTempID()
			f.Placeholders[name] = p
			return p, nil
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is neither an id nor a #placeholder", t)
		}
		return permanent(n)
	default:
		return 0, fmt.Errorf("unsupported entity %v (%T)", term, term)
	}
}

func permanent(n int64) (domain.EntityID, error) {
	if n <= 0 {
		return 0, fmt.Errorf("entity id %d must be positive", n)
	}
	return domain.EntityID(n), nil
}
