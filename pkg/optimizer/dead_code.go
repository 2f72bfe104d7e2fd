package optimizer

import (
	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/vm"
)

// WithDeadCodeElimination enables dead code elimination.
func WithDeadCodeElimination() Option {
	return func(o *Optimizer) {
		o.enableDeadCode = true
	}
}

// deadCodeElimination drops instructions that cannot change the result and
// symbols no instruction refers to any more:
//
//   - everything after the first STOP
//   - NEG NEG pairs
//   - constants orphaned by folding
func (o *Optimizer) deadCodeElimination(program *vm.Program) *vm.Program {
	if len(program.Code) == 0 {
		return program
	}

	newCode := make([]vm.Instruction, 0, len(program.Code))
	for _, inst := range program.Code {
		op := inst.Opcode()
		if op == vm.OpNeg && len(newCode) > 0 && newCode[len(newCode)-1].Opcode() == vm.OpNeg {
			newCode = newCode[:len(newCode)-1]
			continue
		}
		newCode = append(newCode, inst)
		if op == vm.OpStop {
			break
		}
	}

	return pruneSymbols(program, newCode)
}

// pruneSymbols rebuilds the operand pool with only the symbols code refers
// to and drops unreferenced anonymous constants from the locals.
func pruneSymbols(program *vm.Program, code []vm.Instruction) *vm.Program {
	remap := make(map[uint32]uint32)
	used := make(map[*symtab.Symbol]bool)
	var symbols []*symtab.Symbol

	for i, inst := range code {
		op := inst.Opcode()
		if !op.HasOperand() {
			continue
		}
		old := inst.Operand()
		idx, ok := remap[old]
		if !ok {
			idx = uint32(len(symbols))
			remap[old] = idx
			sym := program.Symbols[old]
			symbols = append(symbols, sym)
			used[sym] = true
		}
		code[i] = vm.EncodeInstruction(op, idx)
	}

	locals := make([]*symtab.Symbol, 0, len(program.Locals))
	for _, sym := range program.Locals {
		if sym.Kind == symtab.Constant && !used[sym] {
			continue
		}
		locals = append(locals, sym)
	}

	return &vm.Program{
		Code:      code,
		Symbols:   symbols,
		Locals:    locals,
		Externals: program.Externals,
	}
}
