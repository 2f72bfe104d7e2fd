// Package symtab holds the three symbol scopes an expression is compiled
// against.
//
// The permanent scope carries the built-in functions and named constants. It
// is built once per process and shared read-only by every Table. The local
// scope collects literals and names assigned inside the expression being
// compiled, and the external scope collects every other name the expression
// mentions. External symbols are later bound to table columns or derived
// variables by the resolver.
//
// Basic usage:
//
//	tab := symtab.New()
//	tab.BeginScope()
//	sym := tab.Lookup("x")
//	if sym == nil {
//	    sym = tab.Install("x", symtab.Undefined, 0)
//	}
//	locals, externals := tab.EndScope()
package symtab

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Kind classifies a symbol.
type Kind uint8

const (
	Undefined     Kind = iota // referenced but not yet bound
	Constant                  // anonymous numeric literal
	Builtin                   // built-in function
	NamedConstant             // pi, e, gamma, deg
	Column                    // native table column, Index is the column index
	Derived                   // derived variable, Index is the effective index
	Local                     // assigned inside the expression
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Constant:
		return "constant"
	case Builtin:
		return "builtin"
	case NamedConstant:
		return "named-constant"
	case Column:
		return "column"
	case Derived:
		return "derived"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Permanent reports whether symbols of this kind live in the permanent scope.
func (k Kind) Permanent() bool {
	return k == Builtin || k == NamedConstant
}

// Func identifies a built-in function.
type Func uint8

const (
	FuncNone Func = iota
	FuncSin
	FuncCos
	FuncTan
	FuncAsin
	FuncAcos
	FuncAtan
	FuncLog
	FuncLog10
	FuncExp
	FuncSqrt
	FuncInt
	FuncAbs
	FuncRand
)

var funcNames = [...]string{
	FuncNone:  "none",
	FuncSin:   "sin",
	FuncCos:   "cos",
	FuncTan:   "tan",
	FuncAsin:  "asin",
	FuncAcos:  "acos",
	FuncAtan:  "atan",
	FuncLog:   "log",
	FuncLog10: "log10",
	FuncExp:   "exp",
	FuncSqrt:  "sqrt",
	FuncInt:   "int",
	FuncAbs:   "abs",
	FuncRand:  "rand",
}

// String returns the function name as written in expressions.
func (f Func) String() string {
	if int(f) < len(funcNames) {
		return funcNames[f]
	}
	return fmt.Sprintf("Func(%d)", uint8(f))
}

// Symbol is a named (or anonymous) entry in one of the scopes.
type Symbol struct {
	Name  string
	Kind  Kind
	Value float64 // constants, named constants, and the current value of variables
	Index int     // column index or effective index once resolved
	Func  Func    // set for Builtin

	// Assigned is set by the VM when a Local symbol receives a value during
	// the current execution.
	Assigned bool
}

func (s *Symbol) String() string {
	switch s.Kind {
	case Constant:
		return fmt.Sprintf("%g", s.Value)
	case Column, Derived:
		return fmt.Sprintf("%s[%s #%d]", s.Name, s.Kind, s.Index)
	default:
		return s.Name
	}
}

// Named constants.
const (
	Gamma = 0.57721566490153286060
	Deg   = 57.29577951308232087860
)

var permanent = sync.OnceValue(func() map[string]*Symbol {
	m := make(map[string]*Symbol, 17)
	for f := FuncSin; f <= FuncRand; f++ {
		m[f.String()] = &Symbol{Name: f.String(), Kind: Builtin, Func: f}
	}
	for name, v := range map[string]float64{
		"pi":    math.Pi,
		"e":     math.E,
		"gamma": Gamma,
		"deg":   Deg,
	} {
		m[name] = &Symbol{Name: name, Kind: NamedConstant, Value: v}
	}
	return m
})

// Permanent returns the shared permanent symbol for name, or nil.
func Permanent(name string) *Symbol {
	return permanent()[strings.ToLower(name)]
}

// Table is the per-compiler view of the three scopes. A Table is not safe for
// concurrent use; the permanent scope behind it is.
type Table struct {
	locals    []*Symbol
	anonymous []*Symbol
	externals []*Symbol
	open      bool
}

// New creates a Table with empty local and external scopes.
func New() *Table {
	return &Table{}
}

// BeginScope starts a fresh local/external scope, discarding anything left
// over from an earlier compile that did not call EndScope.
func (t *Table) BeginScope() {
	t.locals = nil
	t.anonymous = nil
	t.externals = nil
	t.open = true
}

// Lookup searches permanent, then local, then external scope. Names compare
// case-insensitively. Anonymous constants are never found.
func (t *Table) Lookup(name string) *Symbol {
	if s := Permanent(name); s != nil {
		return s
	}
	if s := find(t.locals, name); s != nil {
		return s
	}
	return find(t.externals, name)
}

// Install adds a symbol to the scope its kind belongs to: Constant to the
// anonymous part of the local scope, Local to the local scope, everything
// else non-permanent to the external scope. Installing a permanent kind is a
// programming error and panics.
func (t *Table) Install(name string, kind Kind, value float64) *Symbol {
	if kind.Permanent() {
		panic(fmt.Sprintf("symtab: cannot install %s symbol %q", kind, name))
	}
	s := &Symbol{Name: name, Kind: kind, Value: value}
	switch kind {
	case Constant:
		t.anonymous = append(t.anonymous, s)
	case Local:
		t.locals = append(t.locals, s)
	default:
		t.externals = append(t.externals, s)
	}
	return s
}

// EndScope closes the scope and hands its symbols to the caller. External
// symbols that became Local during compilation move to the local set.
func (t *Table) EndScope() (locals, externals []*Symbol) {
	locals = make([]*Symbol, 0, len(t.anonymous)+len(t.locals))
	locals = append(locals, t.anonymous...)
	locals = append(locals, t.locals...)
	for _, s := range t.externals {
		if s.Kind == Local {
			locals = append(locals, s)
		} else {
			externals = append(externals, s)
		}
	}
	t.locals, t.anonymous, t.externals = nil, nil, nil
	t.open = false
	return locals, externals
}

// InScope reports whether BeginScope was called without a matching EndScope.
func (t *Table) InScope() bool {
	return t.open
}

func find(syms []*Symbol, name string) *Symbol {
	for _, s := range syms {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}
