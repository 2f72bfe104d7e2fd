package store

import (
	"fmt"
	"math"

	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/table"
)

// Evaluate returns the value at an effective index for one row. Native
// columns are read directly. A derived variable first evaluates every
// variable it references for the same row; nothing is cached, so a variable
// reached through several paths is recomputed each time.
//
// On a runtime error the result is 0 and the error is also recorded for
// Errors.
func (s *Store) Evaluate(t table.Table, index, row int) (float64, error) {
	n := t.ColumnCount()
	if index >= 0 && index < n {
		return t.ReadColumn(index, row), nil
	}
	ext := s.exts[t.ID()]
	if ext == nil || index < n || index-n >= len(ext.Variables) {
		return 0, fmt.Errorf("%w: %d", ErrIndexRange, index)
	}

	v, err := s.evaluate(t, ext, index-n, row)
	if err != nil {
		s.errCount++
		s.lastErr = err
		return 0, err
	}
	return v, nil
}

func (s *Store) evaluate(t table.Table, ext *Extension, pos, row int) (float64, error) {
	p := ext.Variables[pos].Program
	n := t.ColumnCount()
	for _, sym := range p.Externals {
		switch sym.Kind {
		case symtab.Column:
			sym.Value = t.ReadColumn(sym.Index, row)
		case symtab.Derived:
			v, err := s.evaluate(t, ext, sym.Index-n, row)
			if err != nil {
				return 0, err
			}
			sym.Value = v
		}
	}
	return s.machine.Execute(p)
}

// TestOnData evaluates the named variable over every row of t and returns a
// *TestError for the first row that fails. Failures here are not recorded
// for Errors.
func (s *Store) TestOnData(t table.Table, name string) error {
	ext := s.exts[t.ID()]
	pos := -1
	if ext != nil {
		pos = ext.index(name)
	}
	if pos < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	rows := t.RowCount()
	for row := 0; row < rows; row++ {
		if _, err := s.evaluate(t, ext, pos, row); err != nil {
			return &TestError{Row: row, Variable: ext.Variables[pos].Name, Err: err}
		}
	}
	return nil
}

// Errors returns how many row evaluations failed since the last ResetErrors
// and the most recent error.
func (s *Store) Errors() (int, error) {
	return s.errCount, s.lastErr
}

// ResetErrors clears the error count and message.
func (s *Store) ResetErrors() {
	s.errCount = 0
	s.lastErr = nil
}

// Range returns the smallest and largest value of a column over the rows
// that evaluate to a number. ok is false if there are none.
func (s *Store) Range(t table.Table, index int) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	rows := t.RowCount()
	for row := 0; row < rows; row++ {
		v, err := s.Evaluate(t, index, row)
		if err != nil || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// Column evaluates a column over every row. Rows that failed hold 0 and have
// their bit clear in the returned bitmap.
func (s *Store) Column(t table.Table, index int) ([]float64, *table.Bitmap, error) {
	if index < 0 || index >= s.ColumnCount(t) {
		return nil, nil, fmt.Errorf("%w: %d", ErrIndexRange, index)
	}
	rows := t.RowCount()
	values := make([]float64, rows)
	valid := table.NewBitmap(rows)
	for row := 0; row < rows; row++ {
		v, err := s.Evaluate(t, index, row)
		valid.SetTo(row, err == nil)
		if err == nil {
			values[row] = v
		}
	}
	return values, valid, nil
}

// Valid returns the rows on which every listed column evaluates.
func (s *Store) Valid(t table.Table, indices []int) (*table.Bitmap, error) {
	valid := table.NewAllSetBitmap(t.RowCount())
	for _, index := range indices {
		_, v, err := s.Column(t, index)
		if err != nil {
			return nil, err
		}
		valid = valid.And(v)
	}
	return valid, nil
}
