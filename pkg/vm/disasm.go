package vm

import (
	"bytes"
	"fmt"
)

// Disassemble renders a Program as an annotated instruction listing.
func Disassemble(p *Program) string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("; %d instructions, %d locals, %d externals\n",
		len(p.Code), len(p.Locals), len(p.Externals)))
	for _, s := range p.Externals {
		buf.WriteString(fmt.Sprintf(";   extern %-12s %s\n", s.Name, s.Kind))
	}
	buf.WriteString("\n")

	for i, inst := range p.Code {
		buf.WriteString(fmt.Sprintf("%04d: %s\n", i, disassembleInstruction(inst, p)))
	}

	return buf.String()
}

func disassembleInstruction(inst Instruction, p *Program) string {
	op := inst.Opcode()
	if !op.HasOperand() {
		return op.String()
	}

	idx := int(inst.Operand())
	if idx >= len(p.Symbols) {
		return fmt.Sprintf("%-12s ?%d", op, idx)
	}
	sym := p.Symbols[idx]

	switch op {
	case OpPushConst:
		return fmt.Sprintf("%-12s %g", op, sym.Value)
	case OpCall:
		return fmt.Sprintf("%-12s %s", op, sym.Func)
	default:
		if sym.Name == "" {
			return fmt.Sprintf("%-12s #%d", op, idx)
		}
		return fmt.Sprintf("%-12s %s", op, sym.Name)
	}
}
