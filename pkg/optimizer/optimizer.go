// Package optimizer rewrites compiled programs into shorter equivalent ones.
//
// Every pass preserves the observable result of the program, including the
// runtime errors it raises: an operation is only folded when evaluating it
// ahead of time succeeds, and rand() is never folded.
package optimizer

import (
	"github.com/akhildatla/dervar/pkg/vm"
)

// Optimizer applies optimizations to a compiled program.
type Optimizer struct {
	enableConstantFolding bool
	enableDeadCode        bool
}

// Option is a functional option for the Optimizer.
type Option func(*Optimizer)

// WithConstantFolding enables constant folding optimization.
func WithConstantFolding() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
	}
}

// WithAllOptimizations enables all optimizations.
func WithAllOptimizations() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
		o.enableDeadCode = true
	}
}

// New creates a new Optimizer with the given options.
func New(opts ...Option) *Optimizer {
	opt := &Optimizer{}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

// Optimize applies enabled optimizations to the program. The result shares
// the external symbols of program, so it must replace program rather than
// run alongside it.
func (o *Optimizer) Optimize(program *vm.Program) *vm.Program {
	result := program

	if o.enableConstantFolding {
		result = o.constantFolding(result)
	}

	if o.enableDeadCode {
		result = o.deadCodeElimination(result)
	}

	return result
}

// Fold is shorthand for New(WithAllOptimizations()).Optimize(program).
func Fold(program *vm.Program) *vm.Program {
	return New(WithAllOptimizations()).Optimize(program)
}
