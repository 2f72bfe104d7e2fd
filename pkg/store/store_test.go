package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"

	"github.com/akhildatla/dervar/internal/testutil"
	"github.com/akhildatla/dervar/pkg/compiler"
	"github.com/akhildatla/dervar/pkg/resolve"
	"github.com/akhildatla/dervar/pkg/table"
	"github.com/akhildatla/dervar/pkg/vm"
)

func mustAdd(t *testing.T, s *Store, tbl table.Table, name, source string) {
	t.Helper()
	if _, err := s.AddVariable(tbl, name, source); err != nil {
		t.Fatalf("AddVariable(%s) failed: %v", name, err)
	}
}

func TestAddVariable_DependentVariables(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New(WithLogger(testr.New(t)))

	mustAdd(t, s, tbl, "a", "px * 2")
	mustAdd(t, s, tbl, "b", "a + 1")

	b := s.IndexOf(tbl, "b")
	if b != 5 {
		t.Fatalf("expected b at effective index 5, got %d", b)
	}
	for row := 0; row < tbl.RowCount(); row++ {
		got, err := s.Evaluate(tbl, b, row)
		if err != nil {
			t.Fatalf("Evaluate row %d failed: %v", row, err)
		}
		want := 2*tbl.ReadColumn(0, row) + 1
		if got != want {
			t.Errorf("row %d: expected %v, got %v", row, want, got)
		}
	}
}

func TestAddVariable_LaterDefinitionSatisfiesEarlier(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()

	missing, err := s.AddVariable(tbl, "a", "B * 2")
	if err != nil {
		t.Fatalf("AddVariable failed: %v", err)
	}
	if diff := cmp.Diff(resolve.Unresolved{"B"}, missing); diff != "" {
		t.Errorf("unresolved mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Evaluate(tbl, 4, 0); !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Errorf("expected undefined variable error, got %v", err)
	}

	mustAdd(t, s, tbl, "b", "py")
	got, err := s.Evaluate(tbl, 4, 1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 16 {
		t.Errorf("expected 16, got %v", got)
	}
}

func TestAddVariable_MutualReferenceRejected(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()

	mustAdd(t, s, tbl, "a", "b + 1")
	_, err := s.AddVariable(tbl, "b", "a + 1")

	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if cycle.Name != "a" && cycle.Name != "b" {
		t.Errorf("expected cycle naming a or b, got %q", cycle.Name)
	}
	if !errors.Is(err, ErrCycle) {
		t.Error("expected errors.Is(err, ErrCycle)")
	}

	if n := len(s.Variables(tbl.ID())); n != 1 {
		t.Fatalf("expected the rejected variable rolled back, have %d variables", n)
	}
	if _, err := s.Evaluate(tbl, 4, 0); !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Errorf("expected a to be unbound again, got %v", err)
	}
}

func TestAddVariable_SelfReference(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()

	_, err := s.AddVariable(tbl, "a", "A + 1")
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if s.Variables(tbl.ID()) != nil {
		t.Error("expected the extension to be dropped")
	}
}

func TestAddVariable_Errors(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")

	if _, err := s.AddVariable(tbl, "   ", "1"); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected empty name error, got %v", err)
	}
	if _, err := s.AddVariable(tbl, "x", " \n "); !errors.Is(err, ErrEmptySource) {
		t.Errorf("expected empty source error, got %v", err)
	}
	if _, err := s.AddVariable(tbl, "PX", "1"); !errors.Is(err, ErrNameConflict) {
		t.Errorf("expected name conflict, got %v", err)
	}
	if _, err := s.AddVariable(tbl, "x", "px = 1\npx"); !errors.Is(err, resolve.ErrShadowed) {
		t.Errorf("expected column shadowing error, got %v", err)
	}
	if _, err := s.AddVariable(tbl, "x", "a = 1\na"); !errors.Is(err, resolve.ErrShadowed) {
		t.Errorf("expected variable shadowing error, got %v", err)
	}
	_, err := s.AddVariable(tbl, "r", "r = 1\nr")
	if !errors.Is(err, resolve.ErrShadowed) {
		t.Errorf("expected self shadowing error, got %v", err)
	} else if want := "r: assignment shadows a column or variable: r"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	_, err = s.AddVariable(tbl, "x", "px +")
	var syn *compiler.SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	if syn.Offset != 4 {
		t.Errorf("expected offset 4, got %d", syn.Offset)
	}

	if n := len(s.Variables(tbl.ID())); n != 1 {
		t.Errorf("expected only a to remain, have %d variables", n)
	}
}

func TestAddVariable_TrimsName(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "  pt  ", "sqrt(px^2 + py^2)")

	v, ok := s.Variable(tbl, "pt")
	if !ok || v.Name != "pt" {
		t.Fatalf("expected trimmed name pt, got %v", v)
	}
	got, _ := s.Evaluate(tbl, 4, 0)
	if got != 5 {
		t.Errorf("expected 5, got %v", got)
	}
}

func TestAddVariable_ExistingNameReplaces(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "A", "py")

	vars := s.Variables(tbl.ID())
	if len(vars) != 1 || vars[0].Source != "py" {
		t.Fatalf("expected a single replaced variable, got %v", vars)
	}
	got, _ := s.Evaluate(tbl, 4, 0)
	if got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
}

func TestReplaceVariable(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "a + 1")

	if _, err := s.ReplaceVariable(tbl, "a", "pz"); err != nil {
		t.Fatalf("ReplaceVariable failed: %v", err)
	}
	got, _ := s.Evaluate(tbl, 5, 0)
	if got != 13 {
		t.Errorf("expected 13, got %v", got)
	}

	if _, err := s.ReplaceVariable(tbl, "nope", "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := s.ReplaceVariable(testutil.MakeTable(t, "other", nil), "a", "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found on a table without variables, got %v", err)
	}
}

func TestReplaceVariable_CycleRollsBack(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "a + 1")

	if _, err := s.ReplaceVariable(tbl, "a", "b * 2"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}

	v, _ := s.Variable(tbl, "a")
	if v.Source != "px" {
		t.Errorf("expected old source kept, got %q", v.Source)
	}
	got, err := s.Evaluate(tbl, 5, 1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != -5 {
		t.Errorf("expected -5, got %v", got)
	}
}

func TestReplaceVariable_SyntaxErrorKeepsOld(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")

	if _, err := s.ReplaceVariable(tbl, "a", "px *"); !errors.Is(err, compiler.ErrSyntax) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	got, _ := s.Evaluate(tbl, 4, 0)
	if got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestDeleteVariable_RenumbersConsumers(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "py")
	mustAdd(t, s, tbl, "c", "pz")

	held := &IndexSet{TableID: tbl.ID(), Indices: []int{1, 4, 5, 6}}
	other := &IndexSet{TableID: "other", Indices: []int{5, 6}}
	s.Subscribe(held)
	s.Subscribe(other)

	if err := s.DeleteVariable(tbl, "b"); err != nil {
		t.Fatalf("DeleteVariable failed: %v", err)
	}

	if diff := cmp.Diff([]int{1, 4, -1, 5}, held.Indices); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{5, 6}, other.Indices); diff != "" {
		t.Errorf("other table changed (-want +got):\n%s", diff)
	}

	got, _ := s.Evaluate(tbl, 5, 0)
	if got != 12 {
		t.Errorf("expected c (pz) at index 5, got %v", got)
	}

	s.Unsubscribe(held)
	_ = s.DeleteVariable(tbl, "a")
	if diff := cmp.Diff([]int{1, 4, -1, 5}, held.Indices); diff != "" {
		t.Errorf("unsubscribed consumer was notified (-want +got):\n%s", diff)
	}
}

func TestDeleteVariable_DependentsBecomeUndefined(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "a + 1")

	if err := s.DeleteVariable(tbl, "a"); err != nil {
		t.Fatalf("DeleteVariable failed: %v", err)
	}
	if _, err := s.Evaluate(tbl, 4, 0); !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Errorf("expected undefined variable error, got %v", err)
	}
}

func TestDeleteVariable_DropsEmptyExtension(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")

	if err := s.DeleteVariable(tbl, "a"); err != nil {
		t.Fatalf("DeleteVariable failed: %v", err)
	}
	if s.Variables(tbl.ID()) != nil || s.ColumnCount(tbl) != 4 {
		t.Error("expected the extension to be gone")
	}
	if err := s.DeleteVariable(tbl, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRenameVariable(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "a + 1")

	if _, err := s.RenameVariable(tbl, "a", "q"); err != nil {
		t.Fatalf("RenameVariable failed: %v", err)
	}
	if s.IndexOf(tbl, "q") != 4 || s.IndexOf(tbl, "a") != -1 {
		t.Error("expected q at index 4")
	}
	if _, err := s.Evaluate(tbl, 5, 0); !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Errorf("expected b to lose its reference, got %v", err)
	}

	if _, err := s.RenameVariable(tbl, "q", "b"); !errors.Is(err, ErrNameConflict) {
		t.Errorf("expected conflict with b, got %v", err)
	}
	if _, err := s.RenameVariable(tbl, "q", "py"); !errors.Is(err, ErrNameConflict) {
		t.Errorf("expected conflict with column, got %v", err)
	}
	if _, err := s.RenameVariable(tbl, "zz", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRenameVariable_CycleRollsBack(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "q + 1")
	mustAdd(t, s, tbl, "b", "a * 2")

	if _, err := s.RenameVariable(tbl, "b", "q"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if name, _ := s.ColumnName(tbl, 5); name != "b" {
		t.Errorf("expected name b kept, got %q", name)
	}
	if _, err := s.Evaluate(tbl, 4, 0); !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Errorf("expected q unbound again, got %v", err)
	}
}

func TestEvaluate_NativeColumns(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "1")

	for col := 0; col < tbl.ColumnCount(); col++ {
		for row := 0; row < tbl.RowCount(); row++ {
			got, err := s.Evaluate(tbl, col, row)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if got != tbl.ReadColumn(col, row) {
				t.Errorf("col %d row %d: expected %v, got %v", col, row, tbl.ReadColumn(col, row), got)
			}
		}
	}

	if _, err := s.Evaluate(tbl, 5, 0); !errors.Is(err, ErrIndexRange) {
		t.Errorf("expected index error, got %v", err)
	}
	if _, err := s.Evaluate(tbl, -1, 0); !errors.Is(err, ErrIndexRange) {
		t.Errorf("expected index error, got %v", err)
	}
}

func TestEvaluate_RecomputesDependencies(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New(WithStats())
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "a + 1")
	mustAdd(t, s, tbl, "c", "a * 2")
	mustAdd(t, s, tbl, "d", "b + c")

	stats := s.Stats()
	before := stats.Executions

	got, err := s.Evaluate(tbl, s.IndexOf(tbl, "d"), 0)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 10 {
		t.Errorf("expected 10, got %v", got)
	}
	// a is reached through b and through c.
	if n := stats.Executions - before; n != 5 {
		t.Errorf("expected 5 executions, got %d", n)
	}

	_, _ = s.Evaluate(tbl, s.IndexOf(tbl, "d"), 0)
	if n := stats.Executions - before; n != 10 {
		t.Errorf("expected 10 executions after a second call, got %d", n)
	}
}

func TestTestOnData_ReportsRowError(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "r", "sqrt(px)")

	err := s.TestOnData(tbl, "r")
	var te *TestError
	if !errors.As(err, &te) {
		t.Fatalf("expected test error, got %v", err)
	}
	if te.Row != 1 || te.Variable != "r" {
		t.Errorf("expected row 1 of r, got row %d of %s", te.Row, te.Variable)
	}
	if !errors.Is(err, vm.ErrDomain) {
		t.Errorf("expected domain error, got %v", err)
	}
	if !strings.Contains(err.Error(), "sqrt argument out of domain") {
		t.Errorf("expected the row's message, got %q", err.Error())
	}
	if n, _ := s.Errors(); n != 0 {
		t.Errorf("expected TestOnData not to record errors, got %d", n)
	}

	mustAdd(t, s, tbl, "ok", "px * px")
	if err := s.TestOnData(tbl, "ok"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := s.TestOnData(tbl, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestWithTestOnAdd(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New(WithTestOnAdd())

	if _, err := s.AddVariable(tbl, "r", "1 / pz"); !errors.Is(err, vm.ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if s.Variables(tbl.ID()) != nil {
		t.Error("expected the failing variable rolled back")
	}
	mustAdd(t, s, tbl, "r", "1 / (pz + 1)")
}

func TestErrors_Sticky(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "inv", "1 / pz")

	values, valid, err := s.Column(tbl, 4)
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	if diff := cmp.Diff([]int{1}, valid.Invalid()); diff != "" {
		t.Errorf("invalid rows mismatch (-want +got):\n%s", diff)
	}
	if values[1] != 0 {
		t.Errorf("expected 0 for the failed row, got %v", values[1])
	}
	testutil.AssertFloat64Near(t, 0.2, values[2], 1e-12)

	n, last := s.Errors()
	if n != 1 || !errors.Is(last, vm.ErrDivisionByZero) {
		t.Errorf("expected one division by zero, got %d %v", n, last)
	}

	_, _ = s.Evaluate(tbl, 4, 0)
	if n, _ := s.Errors(); n != 1 {
		t.Errorf("expected successful rows not to clear errors, got %d", n)
	}

	s.ResetErrors()
	if n, last := s.Errors(); n != 0 || last != nil {
		t.Errorf("expected errors cleared, got %d %v", n, last)
	}
}

func TestValid(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "inv", "1 / pz")
	mustAdd(t, s, tbl, "lg", "log(px)")

	valid, err := s.Valid(tbl, []int{0, 4, 5})
	if err != nil {
		t.Fatalf("Valid failed: %v", err)
	}
	if valid.Len() != 4 || valid.PopCount() != 2 {
		t.Errorf("expected 2 of 4 rows valid, got %d of %d", valid.PopCount(), valid.Len())
	}
	if diff := cmp.Diff([]int{1, 2}, valid.Invalid()); diff != "" {
		t.Errorf("invalid rows mismatch (-want +got):\n%s", diff)
	}

	all, err := s.Valid(tbl, nil)
	if err != nil {
		t.Fatalf("Valid failed: %v", err)
	}
	if all.PopCount() != 4 {
		t.Errorf("expected every row valid without columns, got %d", all.PopCount())
	}

	if _, err := s.Valid(tbl, []int{9}); !errors.Is(err, ErrIndexRange) {
		t.Errorf("expected ErrIndexRange, got %v", err)
	}
}

func TestRange(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "twice", "px * 2")
	mustAdd(t, s, tbl, "inv", "1 / pz")
	mustAdd(t, s, tbl, "bad", "log(-1)")

	lo, hi, ok := s.Range(tbl, 4)
	if !ok || lo != -12 || hi != 6 {
		t.Errorf("expected [-12, 6], got [%v, %v] %v", lo, hi, ok)
	}

	lo, hi, ok = s.Range(tbl, 5)
	if !ok {
		t.Fatal("expected a range")
	}
	testutil.AssertFloat64Near(t, 1.0/12, lo, 1e-12)
	testutil.AssertFloat64Near(t, 0.2, hi, 1e-12)

	if _, _, ok := s.Range(tbl, 6); ok {
		t.Error("expected no range for a column that never evaluates")
	}

	lo, hi, ok = s.Range(tbl, 3)
	if !ok || lo != -1 || hi != 1 {
		t.Errorf("expected native range [-1, 1], got [%v, %v]", lo, hi)
	}
}

func TestColumnNames(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "pt", "sqrt(px^2 + py^2)")

	if diff := cmp.Diff([]string{"px", "py", "pz", "charge", "pt"}, s.ColumnNames(tbl)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if s.ColumnCount(tbl) != 5 {
		t.Errorf("expected 5 columns, got %d", s.ColumnCount(tbl))
	}
	if name, ok := s.ColumnName(tbl, 4); !ok || name != "pt" {
		t.Errorf("expected pt, got %q", name)
	}
	if _, ok := s.ColumnName(tbl, 5); ok {
		t.Error("expected no column at 5")
	}
	if s.IndexOf(tbl, "PT") != 4 || s.IndexOf(tbl, "Charge") != 3 || s.IndexOf(tbl, "nope") != -1 {
		t.Error("unexpected IndexOf results")
	}
}

func TestRef_SurvivesDeletion(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New()
	mustAdd(t, s, tbl, "a", "px")
	mustAdd(t, s, tbl, "b", "py")
	mustAdd(t, s, tbl, "c", "pz")

	refC, ok := s.Ref(tbl, 6)
	if !ok {
		t.Fatal("Ref failed")
	}
	refA, _ := s.Ref(tbl, 4)
	refPy, _ := s.Ref(tbl, 1)

	_ = s.DeleteVariable(tbl, "a")

	if i := s.IndexOfRef(tbl, refC); i != 5 {
		t.Errorf("expected c at 5, got %d", i)
	}
	if i := s.IndexOfRef(tbl, refA); i != -1 {
		t.Errorf("expected deleted a to resolve to -1, got %d", i)
	}
	if i := s.IndexOfRef(tbl, refPy); i != 1 {
		t.Errorf("expected py at 1, got %d", i)
	}
	if _, ok := s.Ref(tbl, 9); ok {
		t.Error("expected no ref past the last column")
	}
}

func TestWithFolding(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	s := New(WithFolding())
	mustAdd(t, s, tbl, "e5", "px * (2 + 3)")

	v, _ := s.Variable(tbl, "e5")
	if len(v.Program.Code) != 5 {
		t.Errorf("expected folded program, got:\n%s", vm.Disassemble(v.Program))
	}
	got, _ := s.Evaluate(tbl, 4, 1)
	if got != -30 {
		t.Errorf("expected -30, got %v", got)
	}
}

func TestWithSeed_Deterministic(t *testing.T) {
	tbl := testutil.MakeEventsTable(t)
	values := func() []float64 {
		s := New(WithSeed(42))
		mustAdd(t, s, tbl, "r", "rand(100)")
		col, _, err := s.Column(tbl, 4)
		if err != nil {
			t.Fatalf("Column failed: %v", err)
		}
		return col
	}

	if diff := cmp.Diff(values(), values()); diff != "" {
		t.Errorf("seeded runs differ (-first +second):\n%s", diff)
	}
}

func TestRebind_AfterReload(t *testing.T) {
	before := testutil.MakeTable(t, "ev", []string{"px"}, []float64{1, 2})
	s := New()
	missing, err := s.AddVariable(before, "a", "px + y")
	if err != nil {
		t.Fatalf("AddVariable failed: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("expected y unresolved, got %v", missing)
	}

	after := testutil.MakeTable(t, "ev", []string{"y", "px"}, []float64{10, 20}, []float64{1, 2})
	unresolved, err := s.Rebind(after)
	if err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}
	if len(unresolved) != 0 {
		t.Errorf("expected everything resolved, got %v", unresolved)
	}
	got, _ := s.Evaluate(after, 2, 1)
	if got != 22 {
		t.Errorf("expected 22, got %v", got)
	}
}

func TestRebind_BreaksNewCycle(t *testing.T) {
	narrow := testutil.MakeTable(t, "ev", []string{"px"}, []float64{1})
	wide := testutil.MakeTable(t, "ev", []string{"px", "x"}, []float64{1}, []float64{2})
	s := New()

	mustAdd(t, s, narrow, "x", "a")
	mustAdd(t, s, wide, "a", "x + 1")

	_, err := s.Rebind(narrow)
	var cycle *CycleError
	if !errors.As(err, &cycle) || cycle.Name != "x" {
		t.Fatalf("expected cycle through x, got %v", err)
	}
	if _, err := s.Evaluate(narrow, s.IndexOf(narrow, "a"), 0); !errors.Is(err, vm.ErrUndefinedVariable) {
		t.Errorf("expected the cycle unbound, got %v", err)
	}
}

func TestMoveExtension(t *testing.T) {
	src := testutil.MakeTable(t, "old", []string{"px"}, []float64{1})
	dst := testutil.MakeTable(t, "new", []string{"px"}, []float64{7})
	s := New()
	mustAdd(t, s, src, "a", "px * 2")

	if _, err := s.MoveExtension("old", dst); err != nil {
		t.Fatalf("MoveExtension failed: %v", err)
	}
	if s.Variables("old") != nil {
		t.Error("expected the old extension gone")
	}
	got, _ := s.Evaluate(dst, 1, 0)
	if got != 14 {
		t.Errorf("expected 14, got %v", got)
	}

	mustAdd(t, s, src, "b", "1")
	if _, err := s.MoveExtension("old", dst); !errors.Is(err, ErrExtensionExists) {
		t.Errorf("expected extension exists, got %v", err)
	}

	if !s.RemoveExtension("new") || s.RemoveExtension("new") {
		t.Error("expected RemoveExtension to succeed once")
	}
}
