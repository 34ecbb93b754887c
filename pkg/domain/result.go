package domain

// Result records the outcome of an accepted submission: the snapshots before
// and after it, the facts it wrote and how its placeholders were resolved.
// A Result is a value; accessors hand out copies.
type Result struct {
	before  Snapshot
	after   Snapshot
	datoms  []Datom
	tempIDs map[EntityID]EntityID
}

// NewResult builds a Result, copying datoms and tempIDs.
func NewResult(before, after Snapshot, datoms []Datom, tempIDs map[EntityID]EntityID) Result {
	ids := make(map[EntityID]EntityID, len(tempIDs))
	for k, v := range tempIDs {
		ids[k] = v
	}
	return Result{
		before:  before,
		after:   after,
		datoms:  append([]Datom(nil), datoms...),
		tempIDs: ids,
	}
}

// Before returns the snapshot the submission was applied to.
func (r Result) Before() Snapshot { return r.before }

// After returns the snapshot including the submission.
func (r Result) After() Snapshot { return r.after }

// Tx returns the id of the transaction entity.
func (r Result) Tx() EntityID { return r.after.Basis() }

// Datoms returns the facts written by the submission, in write order.
func (r Result) Datoms() []Datom {
	return append([]Datom(nil), r.datoms...)
}

// TempIDs returns the placeholder to permanent id mapping.
func (r Result) TempIDs() map[EntityID]EntityID {
	out := make(map[EntityID]EntityID, len(r.tempIDs))
	for k, v := range r.tempIDs {
		out[k] = v
	}
	return out
}

// Resolve returns the permanent id assigned to placeholder.
func (r Result) Resolve(placeholder EntityID) (EntityID, error) {
	id, ok := r.tempIDs[placeholder]
	if !ok {
		return 0, UnknownPlaceholderError{Placeholder: placeholder}
	}
	return id, nil
}
