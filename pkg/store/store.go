// Package store keeps the derived variables of each table and evaluates them.
//
// A table's effective column space is its native columns followed by its
// derived variables in definition order. A variable at position i has
// effective index ColumnCount()+i, and that is the index callers hold.
// Adding, replacing, renaming or deleting a variable recompiles and rebinds
// every variable of the table so the bindings always match the current
// layout; edits that would introduce a reference cycle are rolled back.
//
// Row evaluation never logs and never fails the whole scan. Runtime errors
// are returned to the caller and also remembered until ResetErrors, so batch
// callers can poll once per scan.
//
// A Store is not safe for concurrent use.
package store

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/segmentio/ksuid"

	"github.com/akhildatla/dervar/pkg/compiler"
	"github.com/akhildatla/dervar/pkg/optimizer"
	"github.com/akhildatla/dervar/pkg/resolve"
	"github.com/akhildatla/dervar/pkg/symtab"
	"github.com/akhildatla/dervar/pkg/table"
	"github.com/akhildatla/dervar/pkg/vm"
)

// Variable is one derived variable.
type Variable struct {
	ID      ksuid.KSUID
	Name    string
	Source  string
	Program *vm.Program
}

// Extension holds the derived variables of one table.
type Extension struct {
	TableID   string
	Variables []*Variable
}

func (e *Extension) index(name string) int {
	for i, v := range e.Variables {
		if strings.EqualFold(v.Name, name) {
			return i
		}
	}
	return -1
}

func (e *Extension) names() []string {
	names := make([]string, len(e.Variables))
	for i, v := range e.Variables {
		names[i] = v.Name
	}
	return names
}

// Store is the set of table extensions plus the machinery to compile and
// evaluate them.
type Store struct {
	exts      map[string]*Extension
	syms      *symtab.Table
	machine   *vm.VM
	opt       *optimizer.Optimizer
	consumers []Consumer
	log       logr.Logger
	testOnAdd bool

	vmOpts []vm.Option

	errCount int
	lastErr  error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for structural events. The default discards.
func WithLogger(l logr.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithFolding runs the optimizer over every compiled program.
func WithFolding() Option {
	return func(s *Store) {
		s.opt = optimizer.New(optimizer.WithAllOptimizations())
	}
}

// WithTestOnAdd evaluates every added or replaced variable over all rows
// and rejects the edit if any row fails.
func WithTestOnAdd() Option {
	return func(s *Store) {
		s.testOnAdd = true
	}
}

// WithSeed makes rand() deterministic.
func WithSeed(seed uint64) Option {
	return func(s *Store) {
		s.vmOpts = append(s.vmOpts, vm.WithSeed(seed))
	}
}

// WithStats enables VM execution statistics.
func WithStats() Option {
	return func(s *Store) {
		s.vmOpts = append(s.vmOpts, vm.WithStats())
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		exts: make(map[string]*Extension),
		syms: symtab.New(),
		log:  logr.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	s.machine = vm.NewVM(s.vmOpts...)
	return s
}

// Stats returns the VM execution statistics, or nil if WithStats was not
// given.
func (s *Store) Stats() *vm.ExecutionStats {
	return s.machine.Stats()
}

// Compile compiles source with the store's symbol table and optimizer
// settings. The program is not bound to any table.
func (s *Store) Compile(source string) (*vm.Program, error) {
	p, err := compiler.New(s.syms).Compile(source)
	if err != nil {
		return nil, err
	}
	if s.opt != nil {
		p = s.opt.Optimize(p)
	}
	return p, nil
}

// AddVariable defines name on t, or redefines it if it already exists. The
// names the expression uses but nothing defines are returned; they are not
// an error and evaluate as undefined until a column or variable of that name
// appears.
func (s *Store) AddVariable(t table.Table, name, source string) (resolve.Unresolved, error) {
	return s.define(t, name, source, false)
}

// ReplaceVariable redefines an existing variable. The previous definition
// stays in place if the new one is rejected.
func (s *Store) ReplaceVariable(t table.Table, name, source string) (resolve.Unresolved, error) {
	return s.define(t, name, source, true)
}

func (s *Store) define(t table.Table, name, source string, mustExist bool) (resolve.Unresolved, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, name)
	}
	if table.ColumnIndex(t, name) >= 0 {
		return nil, fmt.Errorf("%w: %s is a column of %s", ErrNameConflict, name, t.ID())
	}

	ext, created := s.exts[t.ID()], false
	if ext == nil {
		if mustExist {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		ext, created = &Extension{TableID: t.ID()}, true
	}
	pos := ext.index(name)
	if pos < 0 && mustExist {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	prog, err := s.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	var undo func()
	if pos >= 0 {
		v := ext.Variables[pos]
		oldSource, oldProg := v.Source, v.Program
		v.Source, v.Program = source, prog
		undo = func() { v.Source, v.Program = oldSource, oldProg }
	} else {
		ext.Variables = append(ext.Variables, &Variable{
			ID:      ksuid.New(),
			Name:    name,
			Source:  source,
			Program: prog,
		})
		if created {
			s.exts[t.ID()] = ext
		}
		undo = func() {
			ext.Variables = ext.Variables[:len(ext.Variables)-1]
			if created {
				delete(s.exts, t.ID())
			}
		}
	}

	missing, err := s.link(t, ext, name)
	if err == nil && s.testOnAdd {
		err = s.TestOnData(t, name)
	}
	if err != nil {
		undo()
		s.relink(t, ext)
		s.log.V(1).Info("variable rejected", "table", t.ID(), "name", name, "error", err.Error())
		return nil, err
	}

	verb := "variable added"
	if pos >= 0 {
		verb = "variable replaced"
	}
	s.log.V(1).Info(verb, "table", t.ID(), "name", name,
		"index", t.ColumnCount()+ext.index(name), "unresolved", len(missing))
	return missing, nil
}

// RenameVariable changes a variable's name. Expressions that used the old
// name stop resolving to it; expressions that used the new name start to.
func (s *Store) RenameVariable(t table.Table, oldName, newName string) (resolve.Unresolved, error) {
	ext := s.exts[t.ID()]
	pos := -1
	if ext != nil {
		pos = ext.index(oldName)
	}
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrEmptyName
	}
	if table.ColumnIndex(t, newName) >= 0 {
		return nil, fmt.Errorf("%w: %s is a column of %s", ErrNameConflict, newName, t.ID())
	}
	if i := ext.index(newName); i >= 0 && i != pos {
		return nil, fmt.Errorf("%w: %s", ErrNameConflict, newName)
	}

	v := ext.Variables[pos]
	old := v.Name
	v.Name = newName
	missing, err := s.link(t, ext, newName)
	if err != nil {
		v.Name = old
		s.relink(t, ext)
		return nil, err
	}
	s.log.V(1).Info("variable renamed", "table", t.ID(), "from", old, "to", newName)
	return missing, nil
}

// DeleteVariable removes a variable, tells every consumer that its effective
// index is gone and rebinds the remaining variables. Variables that used it
// become undefined.
func (s *Store) DeleteVariable(t table.Table, name string) error {
	ext := s.exts[t.ID()]
	pos := -1
	if ext != nil {
		pos = ext.index(strings.TrimSpace(name))
	}
	if pos < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	removed := t.ColumnCount() + pos
	ext.Variables = append(ext.Variables[:pos], ext.Variables[pos+1:]...)
	if len(ext.Variables) == 0 {
		delete(s.exts, t.ID())
	} else {
		s.relink(t, ext)
	}
	s.notifyRemoved(t.ID(), removed)

	s.log.V(1).Info("variable deleted", "table", t.ID(), "name", name, "index", removed)
	return nil
}

// Rebind re-resolves every variable of t, typically after its native columns
// changed. It returns the unresolved names per variable. A cycle the new
// layout creates is reported and broken by unbinding the variable's
// references to other variables.
func (s *Store) Rebind(t table.Table) (map[string]resolve.Unresolved, error) {
	ext := s.exts[t.ID()]
	if ext == nil {
		return nil, nil
	}
	missing, err := s.relink(t, ext)
	s.log.V(1).Info("table rebound", "table", t.ID(), "variables", len(ext.Variables))
	return missing, err
}

// RemoveExtension drops every variable of the table. Consumers are not
// notified; the table itself is assumed gone.
func (s *Store) RemoveExtension(tableID string) bool {
	if _, ok := s.exts[tableID]; !ok {
		return false
	}
	delete(s.exts, tableID)
	s.log.V(1).Info("extension removed", "table", tableID)
	return true
}

// MoveExtension moves the variables of table fromID to t and rebinds them.
func (s *Store) MoveExtension(fromID string, t table.Table) (map[string]resolve.Unresolved, error) {
	ext := s.exts[fromID]
	if ext == nil {
		return nil, nil
	}
	if fromID != t.ID() {
		if _, ok := s.exts[t.ID()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrExtensionExists, t.ID())
		}
		delete(s.exts, fromID)
		ext.TableID = t.ID()
		s.exts[t.ID()] = ext
		s.log.V(1).Info("extension moved", "from", fromID, "to", t.ID())
	}
	return s.Rebind(t)
}

// Variables returns the variables of a table in effective index order.
func (s *Store) Variables(tableID string) []*Variable {
	ext := s.exts[tableID]
	if ext == nil {
		return nil
	}
	return append([]*Variable(nil), ext.Variables...)
}

// Variable returns the named variable of t.
func (s *Store) Variable(t table.Table, name string) (*Variable, bool) {
	ext := s.exts[t.ID()]
	if ext == nil {
		return nil, false
	}
	if i := ext.index(name); i >= 0 {
		return ext.Variables[i], true
	}
	return nil, false
}

// ColumnCount returns the number of native columns plus derived variables.
func (s *Store) ColumnCount(t table.Table) int {
	n := t.ColumnCount()
	if ext := s.exts[t.ID()]; ext != nil {
		n += len(ext.Variables)
	}
	return n
}

// ColumnName returns the name at an effective index.
func (s *Store) ColumnName(t table.Table, index int) (string, bool) {
	n := t.ColumnCount()
	if index >= 0 && index < n {
		return t.ColumnName(index), true
	}
	ext := s.exts[t.ID()]
	if ext == nil || index < n || index-n >= len(ext.Variables) {
		return "", false
	}
	return ext.Variables[index-n].Name, true
}

// IndexOf returns the effective index of a column or variable name, matched
// case-insensitively with columns first, or -1.
func (s *Store) IndexOf(t table.Table, name string) int {
	if i := table.ColumnIndex(t, name); i >= 0 {
		return i
	}
	if ext := s.exts[t.ID()]; ext != nil {
		if i := ext.index(name); i >= 0 {
			return t.ColumnCount() + i
		}
	}
	return -1
}

// ColumnNames returns the full effective column list of t.
func (s *Store) ColumnNames(t table.Table) []string {
	names := table.ColumnNames(t)
	if ext := s.exts[t.ID()]; ext != nil {
		names = append(names, ext.names()...)
	}
	return names
}

// link binds every variable of ext against t. When target is non-empty the
// edit to that variable is checked for shadowing, and any cycle is returned
// as an error for the caller to roll back.
func (s *Store) link(t table.Table, ext *Extension, target string) (resolve.Unresolved, error) {
	columns := table.ColumnNames(t)
	names := ext.names()

	var missing resolve.Unresolved
	refs := make([][]int, len(ext.Variables))
	for i, v := range ext.Variables {
		u := resolve.Resolve(v.Program, columns, names)
		if strings.EqualFold(v.Name, target) {
			missing = u
			if shadow, ok := resolve.Shadowed(v.Program, columns, names); ok {
				return nil, fmt.Errorf("%s: %w: %s", v.Name, resolve.ErrShadowed, shadow)
			}
		}
		refs[i] = resolve.References(v.Program, len(columns))
		s.log.V(2).Info("variable resolved", "table", ext.TableID, "name", v.Name,
			"references", len(refs[i]), "unresolved", len(u))
	}

	if i, ok := resolve.DetectCycle(refs); ok {
		return nil, &CycleError{Name: ext.Variables[i].Name}
	}
	return missing, nil
}

// relink binds every variable of ext against t and breaks any cycle by
// unbinding the derived references of the variable found on it.
func (s *Store) relink(t table.Table, ext *Extension) (map[string]resolve.Unresolved, error) {
	columns := table.ColumnNames(t)
	names := ext.names()

	missing := make(map[string]resolve.Unresolved)
	refs := make([][]int, len(ext.Variables))
	for i, v := range ext.Variables {
		if u := resolve.Resolve(v.Program, columns, names); len(u) > 0 {
			missing[v.Name] = u
		}
		refs[i] = resolve.References(v.Program, len(columns))
	}

	var first error
	for {
		i, ok := resolve.DetectCycle(refs)
		if !ok {
			break
		}
		v := ext.Variables[i]
		for _, sym := range v.Program.Externals {
			if sym.Kind == symtab.Derived {
				sym.Kind = symtab.Undefined
				sym.Index = 0
				missing[v.Name] = append(missing[v.Name], sym.Name)
			}
		}
		refs[i] = nil
		if first == nil {
			first = &CycleError{Name: v.Name}
		}
		s.log.Info("reference cycle broken", "table", ext.TableID, "name", v.Name)
	}
	return missing, first
}
