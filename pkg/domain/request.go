package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Op is the kind of change an operation applies to a fact.
type Op string

const (
	// OpAssert assigns a value to an entity attribute.
	OpAssert Op = "assert"
	// OpRetract removes a value from an entity attribute.
	OpRetract Op = "retract"
)

// Operation is a single attribute change within a request.
type Operation struct {
	Op        Op       `json:"op" yaml:"op"`
	Entity    EntityID `json:"e" yaml:"e"`
	Attribute string   `json:"a" yaml:"a"`
	Value     any      `json:"v" yaml:"v"`
}

// Assert builds an assert operation.
func Assert(e EntityID, attr string, v any) Operation {
	return Operation{Op: OpAssert, Entity: e, Attribute: attr, Value: v}
}

// Retract builds a retract operation.
func Retract(e EntityID, attr string, v any) Operation {
	return Operation{Op: OpRetract, Entity: e, Attribute: attr, Value: v}
}

// Request is an ordered list of operations submitted as one transaction.
// ExpectBasis, when non-zero, makes the submission conditional on the store
// still being at that basis.
type Request struct {
	Operations  []Operation    `json:"operations" yaml:"operations"`
	ExpectBasis EntityID       `json:"expect_basis,omitempty" yaml:"expect_basis,omitempty"`
	Meta        map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// NewRequest builds a request from operations.
func NewRequest(ops ...Operation) Request {
	return Request{Operations: append([]Operation(nil), ops...)}
}

// Add appends operations and returns the request for chaining.
func (r Request) Add(ops ...Operation) Request {
	r.Operations = append(append([]Operation(nil), r.Operations...), ops...)
	return r
}

var errEmptyRequest = errors.New("request has no operations")

// Validate checks the structural constraints of the request without touching
// any store state.
func (r Request) Validate() error {
	_, err := r.Normalized()
	return err
}

// Normalized validates the request and returns a copy whose values are in
// canonical form.
func (r Request) Normalized() (Request, error) {
	if len(r.Operations) == 0 {
		return Request{}, NewSubmissionError(KindConstraint, errEmptyRequest)
	}
	out := Request{
		Operations:  make([]Operation, len(r.Operations)),
		ExpectBasis: r.ExpectBasis,
		Meta:        r.Meta,
	}
	for i, op := range r.Operations {
		if err := validateOperation(op); err != nil {
			return Request{}, SubmissionError{Kind: KindConstraint, Op: i, Err: err}
		}
		v, err := NormalizeValue(op.Value)
		if err != nil {
			return Request{}, SubmissionError{Kind: KindConstraint, Op: i, Err: err}
		}
		op.Value = v
		out.Operations[i] = op
	}
	return out, nil
}

func validateOperation(op Operation) error {
	switch op.Op {
	case OpAssert, OpRetract:
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	if op.Entity == 0 {
		return errors.New("entity id must be non-zero")
	}
	if strings.TrimSpace(op.Attribute) == "" {
		return errors.New("attribute name required")
	}
	if strings.HasPrefix(op.Attribute, "db/") {
		return fmt.Errorf("attribute %s is reserved", op.Attribute)
	}
	if op.Op == OpRetract && op.Entity.IsTemp() {
		return fmt.Errorf("cannot retract from placeholder %d", op.Entity)
	}
	return nil
}

// Placeholders returns the distinct placeholders referenced by the request,
// as entities or reference values, in first-use order.
func (r Request) Placeholders() []EntityID {
	seen := make(map[EntityID]struct{})
	var out []EntityID
	add := func(id EntityID) {
		if !id.IsTemp() {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, op := range r.Operations {
		add(op.Entity)
		if ref, ok := op.Value.(EntityID); ok {
			add(ref)
		}
	}
	return out
}
