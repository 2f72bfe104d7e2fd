package vm

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrDivisionByZero     = errors.New("division by zero")
	ErrUndefinedVariable  = errors.New("undefined variable")
	ErrNotVariable        = errors.New("attempt to evaluate non-variable")
	ErrAssignNonVariable  = errors.New("assignment to non-variable")
	ErrDomain             = errors.New("argument out of domain")
	ErrRange              = errors.New("result out of range")
	ErrStackOverflow      = errors.New("stack overflow")
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrNoStop             = errors.New("program ended without STOP")
)

// RuntimeError aborts one execution. Msg is the message shown to users;
// Err is one of the sentinels above so callers can use errors.Is.
type RuntimeError struct {
	Msg string
	Err error
}

func (e *RuntimeError) Error() string {
	return e.Msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func nameError(sentinel error, name string) *RuntimeError {
	return &RuntimeError{Msg: fmt.Sprintf("%s: %s", sentinel, name), Err: sentinel}
}

// mathError reports a domain or range failure of what, which is a function
// name or "exponentiation".
func mathError(sentinel error, what string) *RuntimeError {
	return &RuntimeError{Msg: fmt.Sprintf("%s %s", what, sentinel), Err: sentinel}
}

var errDivisionByZero = &RuntimeError{Msg: ErrDivisionByZero.Error(), Err: ErrDivisionByZero}
