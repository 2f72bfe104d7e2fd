package vm

import "fmt"

// Instruction represents a 32-bit encoded instruction.
//
// Layout:
// ┌─────────┬──────────────────────────┐
// │ opcode  │         operand          │
// │ 8 bits  │         24 bits          │
// └─────────┴──────────────────────────┘
//
// The operand indexes Program.Symbols for PUSH_CONST, PUSH_VAR and CALL and
// is zero for every other opcode.
type Instruction uint32

// MaxOperand is the largest symbol index an instruction can carry.
const MaxOperand = 1<<24 - 1

// EncodeInstruction creates an instruction from its components.
func EncodeInstruction(opcode Opcode, operand uint32) Instruction {
	return Instruction(uint32(opcode)<<24 | operand&MaxOperand)
}

// Opcode returns the opcode (bits 31-24).
func (i Instruction) Opcode() Opcode {
	return Opcode(i >> 24)
}

// Operand returns the symbol index (bits 23-0).
func (i Instruction) Operand() uint32 {
	return uint32(i) & MaxOperand
}

// String returns a human-readable representation of the instruction.
func (i Instruction) String() string {
	if i.Opcode().HasOperand() {
		return fmt.Sprintf("%s %d", i.Opcode(), i.Operand())
	}
	return i.Opcode().String()
}
