package domain

import (
	"errors"
	"fmt"
)

// SubmissionKind classifies why a submission was not accepted.
type SubmissionKind string

// Submission failure kinds reported by a Connection.
const (
	// KindConstraint indicates the request violated a store constraint.
	KindConstraint SubmissionKind = "constraint"
	// KindUnavailable indicates the store could not be reached or could not
	// make the submission durable.
	KindUnavailable SubmissionKind = "unavailable"
	// KindConflict indicates a conflicting concurrent write.
	KindConflict SubmissionKind = "conflict"
)

var (
	// ErrConnectionClosed is wrapped by submissions against a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvalidQuery is returned for malformed queries or parameter mismatches.
	ErrInvalidQuery = errors.New("invalid query")
)

// SubmissionError is returned when a transaction request is rejected or the
// connection is lost. Op is the index of the offending operation, or -1 when
// the failure is not tied to a single operation.
type SubmissionError struct {
	Kind SubmissionKind
	Op   int
	Err  error
}

// NewSubmissionError builds a SubmissionError not tied to an operation.
func NewSubmissionError(kind SubmissionKind, err error) SubmissionError {
	return SubmissionError{Kind: kind, Op: -1, Err: err}
}

func (e SubmissionError) Error() string {
	if e.Op >= 0 {
		return fmt.Sprintf("submission %s at op %d: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("submission %s: %v", e.Kind, e.Err)
}

func (e SubmissionError) Unwrap() error { return e.Err }

// IsSubmissionError reports whether err is a SubmissionError of the given
// kind. An empty kind matches any SubmissionError.
func IsSubmissionError(err error, kind SubmissionKind) bool {
	var se SubmissionError
	if !errors.As(err, &se) {
		return false
	}
	return kind == "" || se.Kind == kind
}

// UnknownPlaceholderError is returned when resolving a placeholder that was
// not part of the original request.
type UnknownPlaceholderError struct {
	Placeholder EntityID
}

func (e UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("placeholder %d not part of request", e.Placeholder)
}
