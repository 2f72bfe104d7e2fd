package store

import (
	"github.com/segmentio/ksuid"

	"github.com/akhildatla/dervar/pkg/table"
)

// Consumer is anything outside the store that holds effective column indices
// of a table. It is told when the column at removed goes away. Indices below
// removed stay valid and indices above it move down by one. An index equal
// to removed no longer names a column and is not decremented with them;
// implementations drop or invalidate it.
type Consumer interface {
	OnIndexRemoved(tableID string, removed int)
}

// IndexSet is a Consumer holding a list of effective indices into one table.
// Indices greater than the removed one are decremented; an index equal to it
// becomes -1 rather than being decremented onto the previous column.
type IndexSet struct {
	TableID string
	Indices []int
}

func (s *IndexSet) OnIndexRemoved(tableID string, removed int) {
	if tableID != s.TableID {
		return
	}
	for i, idx := range s.Indices {
		switch {
		case idx == removed:
			s.Indices[i] = -1
		case idx > removed:
			s.Indices[i] = idx - 1
		}
	}
}

// Subscribe registers c for index removal notifications.
func (s *Store) Subscribe(c Consumer) {
	s.consumers = append(s.consumers, c)
}

// Unsubscribe removes c.
func (s *Store) Unsubscribe(c Consumer) {
	for i, x := range s.consumers {
		if x == c {
			s.consumers = append(s.consumers[:i], s.consumers[i+1:]...)
			return
		}
	}
}

func (s *Store) notifyRemoved(tableID string, removed int) {
	for _, c := range s.consumers {
		c.OnIndexRemoved(tableID, removed)
	}
}

// Ref is a stable handle to a column of a table. Native columns are held by
// position, derived variables by their ID, so a Ref survives the deletion of
// other variables.
type Ref struct {
	TableID string
	Column  int // native column index, -1 for a derived variable
	ID      ksuid.KSUID
}

// Ref returns a handle to the column at effective index.
func (s *Store) Ref(t table.Table, index int) (Ref, bool) {
	n := t.ColumnCount()
	if index >= 0 && index < n {
		return Ref{TableID: t.ID(), Column: index}, true
	}
	ext := s.exts[t.ID()]
	if ext == nil || index < n || index-n >= len(ext.Variables) {
		return Ref{}, false
	}
	return Ref{TableID: t.ID(), Column: -1, ID: ext.Variables[index-n].ID}, true
}

// IndexOfRef returns the current effective index of r, or -1 if the variable
// it names no longer exists.
func (s *Store) IndexOfRef(t table.Table, r Ref) int {
	if r.TableID != t.ID() {
		return -1
	}
	if r.Column >= 0 {
		if r.Column < t.ColumnCount() {
			return r.Column
		}
		return -1
	}
	ext := s.exts[t.ID()]
	if ext == nil {
		return -1
	}
	for i, v := range ext.Variables {
		if v.ID == r.ID {
			return t.ColumnCount() + i
		}
	}
	return -1
}
