package compiler

import "fmt"

// TokenType represents the type of an expression token.
type TokenType uint8

const (
	TokenEOF     TokenType = iota
	TokenIllegal           // unknown character or unterminated quote
	TokenNewline
	TokenNumber // 12, 1.5, .5, 1e-3
	TokenIdent  // bare identifier
	TokenQuoted // "quoted identifier"

	// Operators
	TokenAssign // =
	TokenPlus   // +
	TokenMinus  // -
	TokenStar   // *
	TokenSlash  // /
	TokenPow    // ^ or **
	TokenEQ     // ==
	TokenNE     // !=
	TokenLT     // <
	TokenLE     // <=
	TokenGT     // >
	TokenGE     // >=
	TokenAnd    // &&
	TokenOr     // ||
	TokenNot    // !

	// Delimiters
	TokenLParen // (
	TokenRParen // )
)

var tokenNames = [...]string{
	TokenEOF:     "end of expression",
	TokenIllegal: "illegal character",
	TokenNewline: "newline",
	TokenNumber:  "number",
	TokenIdent:   "identifier",
	TokenQuoted:  "quoted identifier",
	TokenAssign:  "'='",
	TokenPlus:    "'+'",
	TokenMinus:   "'-'",
	TokenStar:    "'*'",
	TokenSlash:   "'/'",
	TokenPow:     "'^'",
	TokenEQ:      "'=='",
	TokenNE:      "'!='",
	TokenLT:      "'<'",
	TokenLE:      "'<='",
	TokenGT:      "'>'",
	TokenGE:      "'>='",
	TokenAnd:     "'&&'",
	TokenOr:      "'||'",
	TokenNot:     "'!'",
	TokenLParen:  "'('",
	TokenRParen:  "')'",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", uint8(t))
}

// Token is a lexical token. Offset is the 0-based byte position of its first
// character in the source.
type Token struct {
	Type   TokenType
	Value  string
	Offset int
}

// Lexer tokenizes expression source.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize tokenizes the entire input. Lexical errors become TokenIllegal
// tokens so the parser can report them with their offset.
func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.peek()
		start := l.pos

		switch {
		case ch == '\n':
			l.emit(TokenNewline, start)

		case ch == '"':
			l.scanQuoted()

		case ch == '=':
			if l.peekNext() == '=' {
				l.emit2(TokenEQ, start)
			} else {
				l.emit(TokenAssign, start)
			}

		case ch == '!':
			if l.peekNext() == '=' {
				l.emit2(TokenNE, start)
			} else {
				l.emit(TokenNot, start)
			}

		case ch == '<':
			if l.peekNext() == '=' {
				l.emit2(TokenLE, start)
			} else {
				l.emit(TokenLT, start)
			}

		case ch == '>':
			if l.peekNext() == '=' {
				l.emit2(TokenGE, start)
			} else {
				l.emit(TokenGT, start)
			}

		case ch == '&':
			if l.peekNext() == '&' {
				l.emit2(TokenAnd, start)
			} else {
				l.emit(TokenIllegal, start)
			}

		case ch == '|':
			if l.peekNext() == '|' {
				l.emit2(TokenOr, start)
			} else {
				l.emit(TokenIllegal, start)
			}

		case ch == '*':
			if l.peekNext() == '*' {
				l.emit2(TokenPow, start)
			} else {
				l.emit(TokenStar, start)
			}

		case ch == '^':
			l.emit(TokenPow, start)
		case ch == '+':
			l.emit(TokenPlus, start)
		case ch == '-':
			l.emit(TokenMinus, start)
		case ch == '/':
			l.emit(TokenSlash, start)
		case ch == '(':
			l.emit(TokenLParen, start)
		case ch == ')':
			l.emit(TokenRParen, start)

		case isDigit(ch) || (ch == '.' && isDigit(l.peekNext())):
			l.scanNumber()

		case isLetter(ch):
			l.scanIdentifier()

		default:
			l.emit(TokenIllegal, start)
		}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Offset: len(l.input)})
	return l.tokens
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		l.pos++
	}
}

// emit appends a one-character token.
func (l *Lexer) emit(t TokenType, start int) {
	l.advance()
	l.tokens = append(l.tokens, Token{Type: t, Value: l.input[start:l.pos], Offset: start})
}

// emit2 appends a two-character token.
func (l *Lexer) emit2(t TokenType, start int) {
	l.advance()
	l.advance()
	l.tokens = append(l.tokens, Token{Type: t, Value: l.input[start:l.pos], Offset: start})
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) scanQuoted() {
	start := l.pos
	l.advance() // opening quote

	for l.pos < len(l.input) && l.input[l.pos] != '"' && l.input[l.pos] != '\n' {
		l.advance()
	}

	if l.peek() != '"' {
		l.tokens = append(l.tokens, Token{Type: TokenIllegal, Value: l.input[start:l.pos], Offset: start})
		return
	}

	value := l.input[start+1 : l.pos]
	l.advance() // closing quote
	l.tokens = append(l.tokens, Token{Type: TokenQuoted, Value: value, Offset: start})
}

func (l *Lexer) scanNumber() {
	start := l.pos

	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	// Exponent only when digits follow, so "2e" lexes as 2 then e.
	if c := l.peek(); c == 'e' || c == 'E' {
		save := l.pos
		l.advance()
		if c := l.peek(); c == '+' || c == '-' {
			l.advance()
		}
		if isDigit(l.peek()) {
			for isDigit(l.peek()) {
				l.advance()
			}
		} else {
			l.pos = save
		}
	}

	l.tokens = append(l.tokens, Token{Type: TokenNumber, Value: l.input[start:l.pos], Offset: start})
}

func (l *Lexer) scanIdentifier() {
	start := l.pos
	l.advance()

	for isLetter(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}

	l.tokens = append(l.tokens, Token{Type: TokenIdent, Value: l.input[start:l.pos], Offset: start})
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
