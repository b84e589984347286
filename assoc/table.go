package assoc

import (
	"errors"
	"iter"
	"maps"
)

var ErrExists = errors.New("association already exists")

// Table is the association registry of one worker thread.
//
// Table is not safe for concurrent use.
type Table struct {
	m map[uint32]*Association
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{m: make(map[uint32]*Association)}
}

// Add inserts a.
func (t *Table) Add(a *Association) error {
	if _, ok := t.m[a.ID]; ok {
		return ErrExists
	}
	t.m[a.ID] = a
	return nil
}

// Lookup returns the association with the given id, or nil.
func (t *Table) Lookup(id uint32) *Association {
	return t.m[id]
}

// Delete removes the association with the given id.
func (t *Table) Delete(id uint32) {
	delete(t.m, id)
}

// Len returns the number of associations in the table.
func (t *Table) Len() int {
	return len(t.m)
}

// All returns an iterator over the associations in the table, in no particular order.
func (t *Table) All() iter.Seq[*Association] {
	return maps.Values(t.m)
}
