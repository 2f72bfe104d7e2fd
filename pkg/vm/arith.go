package vm

import (
	"math"

	"github.com/akhildatla/dervar/pkg/symtab"
)

// EvalBinary applies a binary opcode to a and b. Comparison and logical
// opcodes yield 1 or 0; any non-zero operand counts as true.
func EvalBinary(op Opcode, a, b float64) (float64, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, errDivisionByZero
		}
		return a / b, nil
	case OpPow:
		return checked("exponentiation", math.Pow(a, b), a, b)
	case OpGT:
		return truth(a > b), nil
	case OpLT:
		return truth(a < b), nil
	case OpGE:
		return truth(a >= b), nil
	case OpLE:
		return truth(a <= b), nil
	case OpEQ:
		return truth(a == b), nil
	case OpNE:
		return truth(a != b), nil
	case OpAnd:
		return truth(a != 0 && b != 0), nil
	case OpOr:
		return truth(a != 0 || b != 0), nil
	default:
		return 0, ErrInvalidInstruction
	}
}

// EvalUnary applies NEG or NOT.
func EvalUnary(op Opcode, a float64) (float64, error) {
	switch op {
	case OpNeg:
		return -a, nil
	case OpNot:
		return truth(a == 0), nil
	default:
		return 0, ErrInvalidInstruction
	}
}

// EvalBuiltin applies a deterministic built-in function. rand is handled by
// the VM because it needs the generator.
func EvalBuiltin(f symtab.Func, x float64) (float64, error) {
	var r float64
	switch f {
	case symtab.FuncSin:
		r = math.Sin(x)
	case symtab.FuncCos:
		r = math.Cos(x)
	case symtab.FuncTan:
		r = math.Tan(x)
	case symtab.FuncAsin:
		r = math.Asin(x)
	case symtab.FuncAcos:
		r = math.Acos(x)
	case symtab.FuncAtan:
		r = math.Atan(x)
	case symtab.FuncLog:
		r = math.Log(x)
	case symtab.FuncLog10:
		r = math.Log10(x)
	case symtab.FuncExp:
		r = math.Exp(x)
	case symtab.FuncSqrt:
		r = math.Sqrt(x)
	case symtab.FuncInt:
		r = math.Trunc(x)
	case symtab.FuncAbs:
		r = math.Abs(x)
	default:
		return 0, ErrInvalidInstruction
	}
	return checked(f.String(), r, x, 0)
}

// checked turns a NaN produced from non-NaN inputs into a domain error and
// an infinity produced from finite inputs into a range error.
func checked(what string, r, a, b float64) (float64, error) {
	if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
		return 0, mathError(ErrDomain, what)
	}
	if math.IsInf(r, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) && !math.IsNaN(a) && !math.IsNaN(b) {
		return 0, mathError(ErrRange, what)
	}
	return r, nil
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
