// Package compiler translates expression source into VM bytecode in a single
// pass. There is no syntax tree: the recursive-descent parser emits
// instructions as it recognizes each construct.
//
// A source is zero or more newline-terminated assignment statements followed
// by one expression whose value is the result:
//
//	r = sqrt(px*px + py*py)
//	r > 10 && abs(eta) < 2
package compiler

import (
	"errors"
	"fmt"

	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/vm"
)

// MaxProgramSize is the largest number of instructions a program may hold.
const MaxProgramSize = 4096

// MaxDepth is the deepest nesting of parentheses, unary operators, calls
// and assignments the parser accepts.
const MaxDepth = 1024

// Error definitions
var (
	ErrSyntax            = errors.New("syntax error")
	ErrProgramTooLarge   = errors.New("expression too large")
	ErrAssignNonVariable = errors.New("assignment to non-variable")
)

// SyntaxError reports where parsing stopped. Offset is the 0-based byte
// position in the source.
type SyntaxError struct {
	Msg    string
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSyntax
}

// Compiler compiles expressions against a symbol table. The table's local
// and external scopes are reset by every call to Compile.
type Compiler struct {
	syms *symtab.Table

	tokens []Token
	pos    int
	depth  int

	prog   *vm.Program
	symIdx map[*symtab.Symbol]uint32
	err    error
}

// New creates a compiler that installs symbols into syms.
func New(syms *symtab.Table) *Compiler {
	return &Compiler{syms: syms}
}

// Compile is a convenience wrapper that compiles src against a fresh table.
func Compile(src string) (*vm.Program, error) {
	return New(symtab.New()).Compile(src)
}

// Compile translates src into a program. On failure it returns a
// *SyntaxError or ErrProgramTooLarge and no program.
func (c *Compiler) Compile(src string) (*vm.Program, error) {
	c.tokens = NewLexer(src).Tokenize()
	c.pos = 0
	c.depth = 0
	c.prog = &vm.Program{}
	c.symIdx = make(map[*symtab.Symbol]uint32)
	c.err = nil

	c.syms.BeginScope()
	c.parseProgram()
	locals, externals := c.syms.EndScope()

	if c.err != nil {
		return nil, c.err
	}

	c.prog.Locals = locals
	c.prog.Externals = externals
	prog := c.prog
	c.prog, c.symIdx, c.tokens = nil, nil, nil
	return prog, nil
}

// emit appends one instruction, failing once the program is full.
func (c *Compiler) emit(op vm.Opcode, sym *symtab.Symbol) {
	if c.err != nil {
		return
	}
	if len(c.prog.Code) >= MaxProgramSize {
		c.err = ErrProgramTooLarge
		c.pos = len(c.tokens) - 1
		return
	}
	var operand uint32
	if sym != nil {
		operand = c.operand(sym)
	}
	c.prog.Code = append(c.prog.Code, vm.EncodeInstruction(op, operand))
}

// operand returns sym's slot in the program's symbol pool.
func (c *Compiler) operand(sym *symtab.Symbol) uint32 {
	if idx, ok := c.symIdx[sym]; ok {
		return idx
	}
	idx := uint32(len(c.prog.Symbols))
	c.prog.Symbols = append(c.prog.Symbols, sym)
	c.symIdx[sym] = idx
	return idx
}

// fail records the first error and skips to the end of input so every
// parse function unwinds without emitting further diagnostics.
func (c *Compiler) fail(offset int, err error, format string, args ...any) {
	if c.err == nil {
		c.err = &SyntaxError{Msg: fmt.Sprintf(format, args...), Offset: offset, Err: err}
	}
	c.pos = len(c.tokens) - 1
}
