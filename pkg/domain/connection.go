package domain

import "context"

// Connection is the contract a store backend offers to the submitter.
type Connection interface {
	// Transact applies req atomically. Accepted submissions are durable
	// exactly once; failures are reported as SubmissionError.
	Transact(ctx context.Context, req Request) (Result, error)
	// Db returns the current snapshot.
	Db() Snapshot
	// Close releases backend resources. Later submissions fail with
	// KindUnavailable.
	Close() error
}

// Cardinality controls how many values an attribute may hold per entity.
type Cardinality string

// Attribute cardinalities.
const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// Attribute declares the schema of an attribute. Undeclared attributes are
// cardinality-one and non-unique.
type Attribute struct {
	Ident       string      `json:"ident" yaml:"ident" mapstructure:"ident"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality" mapstructure:"cardinality"`
	Unique      bool        `json:"unique" yaml:"unique" mapstructure:"unique"`
}
