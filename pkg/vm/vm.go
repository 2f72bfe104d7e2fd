// Package vm implements the stack machine that evaluates compiled
// expressions.
//
// The VM executes a Program once per data row. Before each execution the
// caller stores the row's values into the program's external symbols
// (columns and derived variables); the VM then reads them through PUSH_VAR
// and EVAL.
//
// Basic usage:
//
//	machine := vm.NewVM()
//	for row := 0; row < n; row++ {
//	    bindRow(program, row)
//	    value, err := machine.Execute(program)
//	}
//
// The dispatch loop works on a fixed-size operand stack and does not
// allocate unless an error is returned.
package vm

import (
	"math"
	"math/rand/v2"

	"github.com/akhildatla/dervar/pkg/symtab"
)

// StackSize is the depth of the operand stack.
const StackSize = 512

// Program is a compiled expression. It owns its local and external symbols;
// Symbols is the operand pool the instructions index, which may also point
// at shared permanent symbols.
type Program struct {
	Code      []Instruction
	Symbols   []*symtab.Symbol
	Locals    []*symtab.Symbol
	Externals []*symtab.Symbol
}

// ExecutionStats contains metrics about VM execution for observability.
type ExecutionStats struct {
	Executions    int64            // Calls to Execute
	StepsExecuted int64            // Total instructions executed
	Failures      int64            // Executions that returned an error
	OpCounts      map[Opcode]int64 // Count of each opcode executed
}

// cell is one operand stack slot: a number or, after PUSH_VAR, a symbol
// reference.
type cell struct {
	val float64
	sym *symtab.Symbol
}

// VM represents the virtual machine.
type VM struct {
	stack [StackSize]cell
	sp    int

	rng *rand.Rand

	stats        ExecutionStats
	statsEnabled bool
}

// Option configures a VM.
type Option func(*VM)

// WithSeed makes rand() deterministic.
func WithSeed(seed uint64) Option {
	return func(vm *VM) {
		vm.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	}
}

// WithStats enables execution statistics collection from the start.
func WithStats() Option {
	return func(vm *VM) {
		vm.EnableStats()
	}
}

// NewVM creates a new VM instance.
func NewVM(opts ...Option) *VM {
	vm := &VM{}
	for _, o := range opts {
		o(vm)
	}
	if vm.rng == nil {
		vm.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return vm
}

// EnableStats enables execution statistics collection.
// When enabled, the VM counts executions, steps and opcodes.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = ExecutionStats{
		OpCounts: make(map[Opcode]int64),
	}
}

// Stats returns the execution statistics collected so far.
// Returns nil if stats were not enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// Execute runs the program once and returns the value left on the stack.
func (vm *VM) Execute(p *Program) (float64, error) {
	v, err := vm.execute(p)
	if vm.statsEnabled {
		vm.stats.Executions++
		if err != nil {
			vm.stats.Failures++
		}
	}
	return v, err
}

func (vm *VM) execute(p *Program) (float64, error) {
	// Locals start unassigned on every execution.
	for _, s := range p.Locals {
		if s.Kind == symtab.Local {
			s.Assigned = false
		}
	}
	vm.sp = 0

	for _, inst := range p.Code {
		op := inst.Opcode()

		if vm.statsEnabled {
			vm.stats.StepsExecuted++
			vm.stats.OpCounts[op]++
		}

		switch op {
		case OpStop:
			if vm.sp != 1 {
				return 0, ErrStackUnderflow
			}
			vm.sp = 0
			return vm.stack[0].val, nil

		case OpPop:
			if vm.sp < 1 {
				return 0, ErrStackUnderflow
			}
			vm.sp--

		case OpPushConst:
			if vm.sp >= StackSize {
				return 0, ErrStackOverflow
			}
			vm.stack[vm.sp] = cell{val: p.Symbols[inst.Operand()].Value}
			vm.sp++

		case OpPushVar:
			if vm.sp >= StackSize {
				return 0, ErrStackOverflow
			}
			vm.stack[vm.sp] = cell{sym: p.Symbols[inst.Operand()]}
			vm.sp++

		case OpEval:
			if vm.sp < 1 {
				return 0, ErrStackUnderflow
			}
			top := &vm.stack[vm.sp-1]
			sym := top.sym
			if sym == nil {
				return 0, ErrInvalidInstruction
			}
			switch sym.Kind {
			case symtab.Constant, symtab.NamedConstant, symtab.Column, symtab.Derived:
				top.val = sym.Value
			case symtab.Local:
				if !sym.Assigned {
					return 0, nameError(ErrUndefinedVariable, sym.Name)
				}
				top.val = sym.Value
			case symtab.Undefined:
				return 0, nameError(ErrUndefinedVariable, sym.Name)
			default:
				return 0, nameError(ErrNotVariable, sym.Name)
			}
			top.sym = nil

		case OpAssign:
			if vm.sp < 2 {
				return 0, ErrStackUnderflow
			}
			sym := vm.stack[vm.sp-1].sym
			vm.sp--
			if sym == nil {
				return 0, ErrInvalidInstruction
			}
			if sym.Kind != symtab.Local && sym.Kind != symtab.Undefined {
				return 0, nameError(ErrAssignNonVariable, sym.Name)
			}
			sym.Kind = symtab.Local
			sym.Value = vm.stack[vm.sp-1].val
			sym.Assigned = true

		case OpCall:
			if vm.sp < 1 {
				return 0, ErrStackUnderflow
			}
			fn := p.Symbols[inst.Operand()]
			top := &vm.stack[vm.sp-1]
			if fn.Func == symtab.FuncRand {
				top.val = math.Floor(top.val) * vm.rng.Float64()
				break
			}
			r, err := EvalBuiltin(fn.Func, top.val)
			if err != nil {
				return 0, err
			}
			top.val = r

		case OpNeg, OpNot:
			if vm.sp < 1 {
				return 0, ErrStackUnderflow
			}
			top := &vm.stack[vm.sp-1]
			r, err := EvalUnary(op, top.val)
			if err != nil {
				return 0, err
			}
			top.val = r

		case OpAdd, OpSub, OpMul, OpDiv, OpPow,
			OpGT, OpLT, OpGE, OpLE, OpEQ, OpNE,
			OpAnd, OpOr:
			if vm.sp < 2 {
				return 0, ErrStackUnderflow
			}
			b := vm.stack[vm.sp-1].val
			vm.sp--
			a := &vm.stack[vm.sp-1]
			r, err := EvalBinary(op, a.val, b)
			if err != nil {
				return 0, err
			}
			a.val = r

		default:
			return 0, ErrInvalidInstruction
		}
	}

	return 0, ErrNoStop
}
