package optimizer

import (
	"errors"
	"math"
	"testing"

	"github.com/akhildatla/dervar/pkg/compiler"
	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/vm"
)

func compile(t *testing.T, src string) *vm.Program {
	t.Helper()
	p, err := compiler.Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", src, err)
	}
	return p
}

func run(t *testing.T, p *vm.Program) (float64, error) {
	t.Helper()
	return vm.NewVM(vm.WithSeed(1)).Execute(p)
}

func TestConstantFolding_Arithmetic(t *testing.T) {
	p := compile(t, "2 * 3 + 4")
	result := New(WithConstantFolding()).Optimize(p)

	// PUSH_CONST 10; STOP
	if len(result.Code) != 2 {
		t.Fatalf("expected 2 instructions, got %d:\n%s", len(result.Code), vm.Disassemble(result))
	}
	if result.Code[0].Opcode() != vm.OpPushConst {
		t.Errorf("expected PUSH_CONST, got %v", result.Code[0].Opcode())
	}
	got, err := run(t, result)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != 10 {
		t.Errorf("expected 10, got %v", got)
	}
}

func TestConstantFolding_NamedConstantsAndBuiltins(t *testing.T) {
	p := compile(t, "cos(pi) * -2")
	result := Fold(p)

	if len(result.Code) != 2 {
		t.Fatalf("expected folded program, got:\n%s", vm.Disassemble(result))
	}
	got, _ := run(t, result)
	if got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestConstantFolding_PartialExpression(t *testing.T) {
	p := compile(t, "x + 2 * 3")
	for _, s := range p.Externals {
		s.Kind = symtab.Column
		s.Value = 4
	}
	result := New(WithConstantFolding()).Optimize(p)

	// PUSH_VAR x; EVAL; PUSH_CONST 6; ADD; STOP
	if len(result.Code) != 5 {
		t.Fatalf("expected 5 instructions, got:\n%s", vm.Disassemble(result))
	}
	got, err := run(t, result)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != 10 {
		t.Errorf("expected 10, got %v", got)
	}
}

func TestConstantFolding_KeepsRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{"1 / 0", vm.ErrDivisionByZero},
		{"sqrt(-1)", vm.ErrDomain},
		{"log(0)", vm.ErrRange},
		{"(-8) ^ 0.5", vm.ErrDomain},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			result := Fold(compile(t, tt.src))
			if _, err := run(t, result); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConstantFolding_NeverFoldsRand(t *testing.T) {
	result := Fold(compile(t, "rand(10)"))

	found := false
	for _, inst := range result.Code {
		if inst.Opcode() == vm.OpCall {
			found = true
		}
	}
	if !found {
		t.Errorf("rand call was folded:\n%s", vm.Disassemble(result))
	}
}

func TestConstantFolding_Assignments(t *testing.T) {
	p := compile(t, "x = 2 + 3\nx * x")
	result := Fold(p)

	got, err := run(t, result)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got != 25 {
		t.Errorf("expected 25, got %v", got)
	}
	if len(result.Code) >= len(p.Code) {
		t.Errorf("expected a shorter program, got %d >= %d", len(result.Code), len(p.Code))
	}
}

func TestDeadCodeElimination_DoubleNegation(t *testing.T) {
	p := compile(t, "--x")
	p.Externals[0].Kind = symtab.Column
	p.Externals[0].Value = 7

	result := New(WithDeadCodeElimination()).Optimize(p)

	for _, inst := range result.Code {
		if inst.Opcode() == vm.OpNeg {
			t.Fatalf("NEG left in program:\n%s", vm.Disassemble(result))
		}
	}
	got, _ := run(t, result)
	if got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
}

func TestDeadCodeElimination_PrunesSymbols(t *testing.T) {
	p := compile(t, "1 + 2 + 3")
	result := Fold(p)

	if len(result.Symbols) != 1 {
		t.Errorf("expected 1 pooled symbol, got %d", len(result.Symbols))
	}
	if len(result.Locals) != 1 || result.Locals[0].Value != 6 {
		t.Errorf("expected only the folded constant in locals, got %v", result.Locals)
	}
}

func TestDeadCodeElimination_EmptyProgram(t *testing.T) {
	program := &vm.Program{}
	result := New(WithDeadCodeElimination()).Optimize(program)
	if result != program {
		t.Error("expected empty program returned unchanged")
	}
}

func TestOptimize_PreservesResults(t *testing.T) {
	sources := []string{
		"2 ^ 3 ^ 2",
		"-2 ^ 2",
		"1 < 2 && 3 >= 3 || 0",
		"!0 + !5",
		"a = 3\nb = a * 2\na + b",
		"exp(1) - e",
		"abs(-3.5) + int(2.7) + sqrt(16)",
		"asin(1) * 2 - pi",
		"deg * 180",
	}

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			want, wantErr := run(t, compile(t, src))
			got, gotErr := run(t, Fold(compile(t, src)))
			if (wantErr == nil) != (gotErr == nil) {
				t.Fatalf("error mismatch: %v vs %v", wantErr, gotErr)
			}
			if math.Abs(want-got) > 1e-12 {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}
