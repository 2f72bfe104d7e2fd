package store

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrEmptyName       = errors.New("empty variable name")
	ErrEmptySource     = errors.New("empty expression")
	ErrNotFound        = errors.New("variable not found")
	ErrNameConflict    = errors.New("name already in use")
	ErrIndexRange      = errors.New("column index out of range")
	ErrExtensionExists = errors.New("table already has derived variables")
	ErrCycle           = errors.New("circular reference")
)

// CycleError names a variable that can reach itself through its references.
type CycleError struct {
	Name string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: variable %s depends on itself", ErrCycle, e.Name)
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// TestError is the first row on which a variable failed to evaluate.
type TestError struct {
	Row      int
	Variable string
	Err      error
}

func (e *TestError) Error() string {
	return fmt.Sprintf("%s: row %d: %v", e.Variable, e.Row, e.Err)
}

func (e *TestError) Unwrap() error {
	return e.Err
}
