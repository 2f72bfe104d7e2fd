package vm

import "fmt"

// Opcode represents a VM instruction opcode.
type Opcode uint8

const (
	// ===== Stack and Symbols (0x00-0x0F) =====
	OpStop      Opcode = 0x00 // end of program, result is the top of stack
	OpPop       Opcode = 0x01 // discard top of stack
	OpPushConst Opcode = 0x02 // push symbols[operand].Value
	OpPushVar   Opcode = 0x03 // push reference to symbols[operand]
	OpEval      Opcode = 0x04 // replace reference on top with its value
	OpAssign    Opcode = 0x05 // pop reference, pop value, store, push value
	OpCall      Opcode = 0x06 // top = builtin symbols[operand](top)

	// ===== Arithmetic (0x10-0x1F) =====
	OpAdd Opcode = 0x10 // a + b
	OpSub Opcode = 0x11 // a - b
	OpMul Opcode = 0x12 // a * b
	OpDiv Opcode = 0x13 // a / b, b != 0
	OpPow Opcode = 0x14 // a ^ b
	OpNeg Opcode = 0x15 // -a

	// ===== Comparison (0x20-0x2F) =====
	OpGT Opcode = 0x20 // a > b
	OpLT Opcode = 0x21 // a < b
	OpGE Opcode = 0x22 // a >= b
	OpLE Opcode = 0x23 // a <= b
	OpEQ Opcode = 0x24 // a == b
	OpNE Opcode = 0x25 // a != b

	// ===== Logical (0x30-0x3F) =====
	OpAnd Opcode = 0x30 // a && b, both sides always evaluated
	OpOr  Opcode = 0x31 // a || b, both sides always evaluated
	OpNot Opcode = 0x32 // !a
)

// String returns the mnemonic used by the disassembler.
func (o Opcode) String() string {
	switch o {
	case OpStop:
		return "STOP"
	case OpPop:
		return "POP"
	case OpPushConst:
		return "PUSH_CONST"
	case OpPushVar:
		return "PUSH_VAR"
	case OpEval:
		return "EVAL"
	case OpAssign:
		return "ASSIGN"
	case OpCall:
		return "CALL"

	case OpAdd:
		return "ADD"
	case OpSub:
		return "SUB"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpPow:
		return "POW"
	case OpNeg:
		return "NEG"

	case OpGT:
		return "GT"
	case OpLT:
		return "LT"
	case OpGE:
		return "GE"
	case OpLE:
		return "LE"
	case OpEQ:
		return "EQ"
	case OpNE:
		return "NE"

	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpNot:
		return "NOT"

	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(o))
	}
}

// IsBinary reports whether the opcode pops two numbers and pushes one.
func (o Opcode) IsBinary() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv, OpPow,
		OpGT, OpLT, OpGE, OpLE, OpEQ, OpNE,
		OpAnd, OpOr:
		return true
	}
	return false
}

// IsUnary reports whether the opcode pops one number and pushes one.
func (o Opcode) IsUnary() bool {
	return o == OpNeg || o == OpNot
}

// HasOperand reports whether the instruction's operand indexes the symbol pool.
func (o Opcode) HasOperand() bool {
	switch o {
	case OpPushConst, OpPushVar, OpCall:
		return true
	}
	return false
}
