// Package domain defines the fact model shared by the transaction submitter and
// the store backends: entity identifiers, transaction requests, datoms,
// immutable snapshots and transaction results.
package domain

import (
	"strconv"
	"sync/atomic"
)

// EntityID identifies an entity. Permanent identifiers are strictly positive;
// negative identifiers are request-scoped placeholders resolved by the store
// when a submission is accepted.
type EntityID int64

// IsTemp reports whether the identifier is a placeholder.
func (id EntityID) IsTemp() bool { return id < 0 }

func (id EntityID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

var tempSeq int64

// NewTempID mints a fresh placeholder identifier. Placeholders are unique
// within the process and only meaningful inside a single request.
func NewTempID() EntityID {
	return EntityID(-atomic.AddInt64(&tempSeq, 1))
}

// IsTempID reports whether id is a placeholder.
func IsTempID(id EntityID) bool { return id.IsTemp() }
