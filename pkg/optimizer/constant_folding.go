package optimizer

import (
	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/vm"
)

// constantFolding evaluates operations on constants at compile time.
// For example:
//
//	PUSH_CONST   2
//	PUSH_CONST   3
//	MUL
//
// Becomes:
//
//	PUSH_CONST   6
//
// The operands of an operation are the instructions emitted right before it,
// so folding only has to look at the tail of the output. Folded results are
// new anonymous constants owned by the program.
func (o *Optimizer) constantFolding(program *vm.Program) *vm.Program {
	newCode := make([]vm.Instruction, 0, len(program.Code))
	symbols := append([]*symtab.Symbol(nil), program.Symbols...)
	locals := append([]*symtab.Symbol(nil), program.Locals...)

	// constAt returns the value pushed by newCode[i] if it is a constant.
	constAt := func(i int) (float64, bool) {
		if i < 0 || newCode[i].Opcode() != vm.OpPushConst {
			return 0, false
		}
		return symbols[newCode[i].Operand()].Value, true
	}

	// replace drops the last n instructions and pushes value instead.
	replace := func(n int, value float64) {
		if len(symbols) > vm.MaxOperand {
			return
		}
		sym := &symtab.Symbol{Kind: symtab.Constant, Value: value}
		symbols = append(symbols, sym)
		locals = append(locals, sym)
		newCode = append(newCode[:len(newCode)-n],
			vm.EncodeInstruction(vm.OpPushConst, uint32(len(symbols)-1)))
	}

	for _, inst := range program.Code {
		op := inst.Opcode()
		last := len(newCode) - 1

		switch {
		case op.IsBinary():
			a, okA := constAt(last - 1)
			b, okB := constAt(last)
			if okA && okB {
				if r, err := vm.EvalBinary(op, a, b); err == nil {
					replace(2, r)
					continue
				}
			}

		case op.IsUnary():
			if a, ok := constAt(last); ok {
				if r, err := vm.EvalUnary(op, a); err == nil {
					replace(1, r)
					continue
				}
			}

		case op == vm.OpEval:
			if last >= 0 && newCode[last].Opcode() == vm.OpPushVar {
				if sym := symbols[newCode[last].Operand()]; sym.Kind == symtab.NamedConstant {
					replace(1, sym.Value)
					continue
				}
			}

		case op == vm.OpCall:
			fn := program.Symbols[inst.Operand()]
			if a, ok := constAt(last); ok && fn.Func != symtab.FuncRand {
				if r, err := vm.EvalBuiltin(fn.Func, a); err == nil {
					replace(1, r)
					continue
				}
			}
		}

		newCode = append(newCode, inst)
	}

	return &vm.Program{
		Code:      newCode,
		Symbols:   symbols,
		Locals:    locals,
		Externals: program.Externals,
	}
}
