package compiler

import (
	"strconv"

	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/vm"
)

// Precedence, lowest to highest:
//
//	||
//	&&
//	== !=
//	> >= < <=
//	+ -
//	* /
//	^ **        right-associative
//	- !         unary, binds tighter than ^ so -2^2 is 4
//	primary     number, name, name = expr, f(expr), (expr)

func (c *Compiler) parseProgram() {
	c.skipNewlines()
	if c.check(TokenEOF) {
		c.fail(0, nil, "empty expression")
		return
	}

	for {
		first := c.peek()
		isAssign := (first.Type == TokenIdent || first.Type == TokenQuoted) && c.peekNext().Type == TokenAssign

		c.parseExpression()
		if c.err != nil {
			return
		}

		if !c.check(TokenEOF) && !c.check(TokenNewline) {
			tok := c.peek()
			c.fail(tok.Offset, nil, "unexpected %s", describe(tok))
			return
		}
		c.skipNewlines()
		if c.check(TokenEOF) {
			c.emit(vm.OpStop, nil)
			return
		}

		if !isAssign {
			c.fail(c.peek().Offset, nil, "only assignments may precede the result expression")
			return
		}
		c.emit(vm.OpPop, nil)
	}
}

func (c *Compiler) parseExpression() {
	c.parseOr()
}

func (c *Compiler) parseOr() {
	c.parseAnd()
	for c.check(TokenOr) {
		c.advance()
		c.parseAnd()
		c.emit(vm.OpOr, nil)
	}
}

func (c *Compiler) parseAnd() {
	c.parseEquality()
	for c.check(TokenAnd) {
		c.advance()
		c.parseEquality()
		c.emit(vm.OpAnd, nil)
	}
}

func (c *Compiler) parseEquality() {
	c.parseComparison()
	for c.check(TokenEQ) || c.check(TokenNE) {
		op := vm.OpEQ
		if c.advance().Type == TokenNE {
			op = vm.OpNE
		}
		c.parseComparison()
		c.emit(op, nil)
	}
}

func (c *Compiler) parseComparison() {
	c.parseAdditive()
	for {
		var op vm.Opcode
		switch c.peek().Type {
		case TokenGT:
			op = vm.OpGT
		case TokenLT:
			op = vm.OpLT
		case TokenGE:
			op = vm.OpGE
		case TokenLE:
			op = vm.OpLE
		default:
			return
		}
		c.advance()
		c.parseAdditive()
		c.emit(op, nil)
	}
}

func (c *Compiler) parseAdditive() {
	c.parseMultiplicative()
	for c.check(TokenPlus) || c.check(TokenMinus) {
		op := vm.OpAdd
		if c.advance().Type == TokenMinus {
			op = vm.OpSub
		}
		c.parseMultiplicative()
		c.emit(op, nil)
	}
}

func (c *Compiler) parseMultiplicative() {
	c.parsePower()
	for c.check(TokenStar) || c.check(TokenSlash) {
		op := vm.OpMul
		if c.advance().Type == TokenSlash {
			op = vm.OpDiv
		}
		c.parsePower()
		c.emit(op, nil)
	}
}

func (c *Compiler) parsePower() {
	c.parseUnary()
	if c.check(TokenPow) {
		c.advance()
		c.parsePower()
		c.emit(vm.OpPow, nil)
	}
}

func (c *Compiler) parseUnary() {
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > MaxDepth {
		c.fail(c.peek().Offset, ErrProgramTooLarge, "expression nested too deeply")
		return
	}

	switch {
	case c.check(TokenMinus):
		c.advance()
		c.parseUnary()
		c.emit(vm.OpNeg, nil)
	case c.check(TokenNot):
		c.advance()
		c.parseUnary()
		c.emit(vm.OpNot, nil)
	default:
		c.parsePrimary()
	}
}

func (c *Compiler) parsePrimary() {
	tok := c.peek()

	switch tok.Type {
	case TokenNumber:
		c.advance()
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			c.fail(tok.Offset, nil, "invalid number %q", tok.Value)
			return
		}
		c.emit(vm.OpPushConst, c.syms.Install("", symtab.Constant, v))

	case TokenIdent, TokenQuoted:
		if tok.Type == TokenQuoted && tok.Value == "" {
			c.fail(tok.Offset, nil, "empty quoted identifier")
			return
		}
		if c.peekNext().Type == TokenAssign {
			c.parseAssignment()
			return
		}
		c.advance()

		sym := c.syms.Lookup(tok.Value)
		// Quoted names are always variables, even when they spell a builtin.
		if tok.Type == TokenIdent && sym != nil && sym.Kind == symtab.Builtin {
			c.parseCall(tok, sym)
			return
		}
		if sym == nil {
			sym = c.syms.Install(tok.Value, symtab.Undefined, 0)
		}
		c.emit(vm.OpPushVar, sym)
		c.emit(vm.OpEval, nil)

	case TokenLParen:
		c.advance()
		c.parseExpression()
		c.expect(TokenRParen)

	case TokenIllegal:
		if len(tok.Value) > 0 && tok.Value[0] == '"' {
			c.fail(tok.Offset, nil, "unterminated quoted identifier")
		} else {
			c.fail(tok.Offset, nil, "unexpected character %q", tok.Value)
		}

	default:
		c.fail(tok.Offset, nil, "unexpected %s", describe(tok))
	}
}

// parseAssignment handles name = expr. The assigned value is left on the
// stack so assignments can appear inside larger expressions.
func (c *Compiler) parseAssignment() {
	name := c.advance()
	c.advance() // consume '='

	sym := c.syms.Lookup(name.Value)
	if sym != nil && sym.Kind.Permanent() {
		c.fail(name.Offset, ErrAssignNonVariable, "assignment to non-variable: %s", name.Value)
		return
	}
	if sym == nil {
		sym = c.syms.Install(name.Value, symtab.Local, 0)
	} else {
		sym.Kind = symtab.Local
	}

	c.parseExpression()
	c.emit(vm.OpPushVar, sym)
	c.emit(vm.OpAssign, nil)
}

func (c *Compiler) parseCall(name Token, fn *symtab.Symbol) {
	if !c.check(TokenLParen) {
		c.fail(c.peek().Offset, nil, "expected '(' after %s", name.Value)
		return
	}
	c.advance()
	c.parseExpression()
	c.expect(TokenRParen)
	c.emit(vm.OpCall, fn)
}

// Helper methods

func (c *Compiler) peek() Token {
	if c.pos >= len(c.tokens) {
		return c.tokens[len(c.tokens)-1]
	}
	return c.tokens[c.pos]
}

func (c *Compiler) peekNext() Token {
	if c.pos+1 >= len(c.tokens) {
		return c.tokens[len(c.tokens)-1]
	}
	return c.tokens[c.pos+1]
}

func (c *Compiler) advance() Token {
	tok := c.peek()
	if tok.Type != TokenEOF {
		c.pos++
	}
	return tok
}

func (c *Compiler) check(t TokenType) bool {
	return c.peek().Type == t
}

func (c *Compiler) expect(t TokenType) {
	if c.check(t) {
		c.advance()
		return
	}
	tok := c.peek()
	c.fail(tok.Offset, nil, "expected %s, got %s", t, describe(tok))
}

func (c *Compiler) skipNewlines() {
	for c.check(TokenNewline) {
		c.advance()
	}
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenNumber, TokenIdent:
		return strconv.Quote(tok.Value)
	case TokenQuoted:
		return strconv.Quote(`"` + tok.Value + `"`)
	default:
		return tok.Type.String()
	}
}
