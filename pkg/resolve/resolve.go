// Package resolve binds the external names of compiled programs to table
// columns and derived variables, and finds reference cycles between derived
// variables.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/vm"
)

// MaxListed caps the number of names a warning lists.
const MaxListed = 15

// ErrShadowed is returned when an expression assigns to a name that already
// denotes a column or derived variable of the table.
var ErrShadowed = errors.New("assignment shadows a column or variable")

// Unresolved lists the names left undefined after resolution, in first-use
// order.
type Unresolved []string

// Warning renders the list for users. known supplies candidate names for
// "did you mean" hints and may be nil. Returns "" when nothing is
// unresolved.
func (u Unresolved) Warning(known []string) string {
	if len(u) == 0 {
		return ""
	}

	var b strings.Builder
	if len(u) == 1 {
		b.WriteString("1 undefined symbol in expression:\n")
	} else {
		fmt.Fprintf(&b, "%d undefined symbols in expression:\n", len(u))
	}
	for i, name := range u {
		if i == MaxListed {
			b.WriteString(".\n.\n.\n")
			break
		}
		b.WriteString("  ")
		b.WriteString(name)
		if s := Suggest(name, known); s != "" {
			fmt.Fprintf(&b, " (did you mean %q?)", s)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Resolve rebinds every external symbol of p. Names are matched
// case-insensitively against columns first, then against variables; a
// variable at position i gets effective index len(columns)+i. Symbols that
// match nothing are reset to Undefined and returned.
func Resolve(p *vm.Program, columns, variables []string) Unresolved {
	var missing Unresolved
	for _, sym := range p.Externals {
		sym.Kind = symtab.Undefined
		sym.Index = 0
		sym.Value = 0

		if i := indexFold(columns, sym.Name); i >= 0 {
			sym.Kind = symtab.Column
			sym.Index = i
			continue
		}
		if i := indexFold(variables, sym.Name); i >= 0 {
			sym.Kind = symtab.Derived
			sym.Index = len(columns) + i
			continue
		}
		missing = append(missing, sym.Name)
	}
	return missing
}

// Shadowed reports the first name p assigns that is also a column or
// variable name.
func Shadowed(p *vm.Program, columns, variables []string) (string, bool) {
	for _, sym := range p.Locals {
		if sym.Kind != symtab.Local {
			continue
		}
		if indexFold(columns, sym.Name) >= 0 || indexFold(variables, sym.Name) >= 0 {
			return sym.Name, true
		}
	}
	return "", false
}

// References returns the positions (not effective indices) of the derived
// variables a resolved program reads, in first-use order.
func References(p *vm.Program, nColumns int) []int {
	var refs []int
	for _, sym := range p.Externals {
		if sym.Kind == symtab.Derived {
			refs = append(refs, sym.Index-nColumns)
		}
	}
	return refs
}

// DetectCycle walks the reference graph refs, where refs[i] lists the
// variables variable i reads. For each variable in order it runs a
// depth-first search with a fresh visited set and reports the first variable
// that can reach itself.
func DetectCycle(refs [][]int) (int, bool) {
	for v := range refs {
		visited := make([]bool, len(refs))
		if reaches(refs, v, v, visited) {
			return v, true
		}
	}
	return -1, false
}

func reaches(refs [][]int, target, from int, visited []bool) bool {
	for _, r := range refs[from] {
		if r < 0 || r >= len(refs) {
			continue
		}
		if r == target {
			return true
		}
		if visited[r] {
			continue
		}
		visited[r] = true
		if reaches(refs, target, r, visited) {
			return true
		}
	}
	return false
}

// Suggest returns the known name closest to name, or "". Near-typos by
// edit distance win; otherwise the tightest fuzzy subsequence match is used.
func Suggest(name string, known []string) string {
	if len(known) == 0 || name == "" {
		return ""
	}

	lower := strings.ToLower(name)
	best, bestDist := "", len(lower)/3+2
	for _, k := range known {
		d := fuzzy.LevenshteinDistance(lower, strings.ToLower(k))
		if d == 0 {
			continue
		}
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	if best != "" {
		return best
	}

	ranks := fuzzy.RankFindFold(name, known)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}

func indexFold(names []string, name string) int {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}
