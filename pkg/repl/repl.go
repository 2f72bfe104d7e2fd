// Package repl is an interactive shell for defining derived variables over
// loaded tables and inspecting their values.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/akhildatla/dervar/pkg/loader"
	"github.com/akhildatla/dervar/pkg/resolve"
	"github.com/akhildatla/dervar/pkg/store"
	"github.com/akhildatla/dervar/pkg/table"
	"github.com/akhildatla/dervar/pkg/vm"
)

const (
	prompt     = "dervar> "
	promptCont = "...> "

	defaultRows   = 10
	defaultHeight = 10
)

// REPL provides an interactive Read-Eval-Print Loop.
type REPL struct {
	store   *store.Store
	vm      *vm.VM
	tables  map[string]table.Table
	current table.Table
	row     int
	watch   *store.IndexSet
	log     logr.Logger

	history     []string
	multiline   strings.Builder
	inMultiline bool
	quit        bool
}

// Option configures a REPL.
type Option func(*REPL)

// WithStore uses s instead of a fresh store.
func WithStore(s *store.Store) Option {
	return func(r *REPL) {
		r.store = s
	}
}

// WithLogger sets the logger for load events.
func WithLogger(l logr.Logger) Option {
	return func(r *REPL) {
		r.log = l
	}
}

// New creates a new REPL instance.
func New(opts ...Option) *REPL {
	r := &REPL{
		tables: make(map[string]table.Table),
		watch:  &store.IndexSet{},
		log:    logr.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.store == nil {
		r.store = store.New(store.WithLogger(r.log))
	}
	r.vm = vm.NewVM()
	r.store.Subscribe(r.watch)
	return r
}

// AddTable makes t available and selects it. A table that replaces one
// with the same ID keeps its derived variables, rebound to the new columns.
func (r *REPL) AddTable(t table.Table, out io.Writer) {
	_, reload := r.tables[t.ID()]
	r.tables[t.ID()] = t
	r.use(t)

	if !reload {
		return
	}
	missing, err := r.store.Rebind(t)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	for name, u := range missing {
		fmt.Fprintf(out, "%s: %s", name, u.Warning(r.store.ColumnNames(t)))
	}
}

func (r *REPL) use(t table.Table) {
	if r.current == nil || r.current.ID() != t.ID() {
		r.watch.TableID = t.ID()
		r.watch.Indices = nil
		r.row = 0
	}
	r.current = t
}

// Start starts the REPL loop. Prompts are only written when in is a
// terminal.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}

	fmt.Fprintln(out, "dervar REPL - derived variables")
	fmt.Fprintln(out, "Type 'help' for available commands, 'quit' to exit")

	for !r.quit {
		if interactive {
			if r.inMultiline {
				fmt.Fprint(out, promptCont)
			} else {
				fmt.Fprint(out, prompt)
			}
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		// Handle multiline input
		if r.inMultiline {
			if cont := strings.HasSuffix(line, "\\"); cont {
				r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
				r.multiline.WriteString("\n")
				continue
			}
			r.multiline.WriteString(line)
			r.inMultiline = false
			input := r.multiline.String()
			r.multiline.Reset()
			r.dispatch(input, out)
			continue
		}

		// Check for multiline start (ends with \)
		if strings.HasSuffix(line, "\\") {
			r.inMultiline = true
			r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
			r.multiline.WriteString("\n")
			continue
		}

		r.dispatch(line, out)
	}
}

func (r *REPL) dispatch(input string, out io.Writer) {
	if strings.TrimSpace(input) == "" {
		return
	}
	r.history = append(r.history, input)
	if r.handleCommand(input, out) {
		return
	}
	r.eval(input, out)
}

func (r *REPL) handleCommand(line string, out io.Writer) bool {
	trimmed := strings.TrimSpace(line)
	parts := strings.Fields(trimmed)

	if len(parts) == 0 {
		return true
	}

	switch parts[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Goodbye!")
		r.quit = true

	case "help", "h", "?":
		r.printHelp(out)

	case "load":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: load <path>")
			break
		}
		r.load(parts[1], out)

	case "use":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: use <table>")
			break
		}
		t, ok := r.tables[parts[1]]
		if !ok {
			fmt.Fprintf(out, "Unknown table %s\n", parts[1])
			break
		}
		r.use(t)
		fmt.Fprintf(out, "Using %s\n", t.ID())

	case "tables":
		r.listTables(out)

	case "let":
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "let"))
		name, expr, ok := strings.Cut(rest, "=")
		if !ok {
			fmt.Fprintln(out, "Usage: let <name> = <expression>")
			break
		}
		r.define(name, expr, out)

	case "del":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: del <name>")
			break
		}
		if t := r.table(out); t != nil {
			if err := r.store.DeleteVariable(t, parts[1]); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "Deleted %s\n", parts[1])
		}

	case "rename":
		if len(parts) != 3 {
			fmt.Fprintln(out, "Usage: rename <old> <new>")
			break
		}
		if t := r.table(out); t != nil {
			missing, err := r.store.RenameVariable(t, parts[1], parts[2])
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "Renamed %s to %s\n", parts[1], parts[2])
			fmt.Fprint(out, missing.Warning(r.store.ColumnNames(t)))
		}

	case "vars":
		r.listVariables(out)

	case "row":
		if len(parts) != 2 {
			fmt.Fprintf(out, "Row %d\n", r.row)
			break
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			fmt.Fprintln(out, "Usage: row <n>")
			break
		}
		r.row = n

	case "watch":
		r.setWatch(parts[1:], out)

	case "show":
		n := defaultRows
		if len(parts) > 1 {
			if v, err := strconv.Atoi(parts[1]); err == nil && v > 0 {
				n = v
			}
		}
		r.show(n, out)

	case "range":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: range <column>")
			break
		}
		r.printRange(parts[1], out)

	case "test":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: test <name>")
			break
		}
		if t := r.table(out); t != nil {
			if err := r.store.TestOnData(t, parts[1]); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "%s evaluates on all %d rows\n", parts[1], t.RowCount())
		}

	case "errors":
		n, last := r.store.Errors()
		if n == 0 {
			fmt.Fprintln(out, "No errors")
			break
		}
		fmt.Fprintf(out, "%d errors, last: %v\n", n, last)
		r.store.ResetErrors()

	case "plot":
		if len(parts) < 2 {
			fmt.Fprintln(out, "Usage: plot <column> [height]")
			break
		}
		height := defaultHeight
		if len(parts) > 2 {
			if v, err := strconv.Atoi(parts[2]); err == nil && v > 0 {
				height = v
			}
		}
		r.plot(parts[1], height, out)

	case "disasm":
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "disasm"))
		r.disasm(rest, out)

	case "history":
		for i, cmd := range r.history {
			fmt.Fprintf(out, "%3d: %s\n", i+1, cmd)
		}

	default:
		return false
	}

	return true
}

func (r *REPL) table(out io.Writer) table.Table {
	if r.current == nil {
		fmt.Fprintln(out, "No table loaded. Use 'load <path>' first")
	}
	return r.current
}

func (r *REPL) load(path string, out io.Writer) {
	t, err := loader.LoadTable(context.Background(), path)
	if err != nil {
		fmt.Fprintf(out, "Error loading %s: %v\n", path, err)
		return
	}
	r.AddTable(t, out)
	r.log.V(1).Info("table loaded", "table", t.ID(), "path", path, "rows", t.RowCount())
	fmt.Fprintf(out, "Loaded table '%s' from %s (%d rows, %d columns)\n",
		t.ID(), path, t.RowCount(), t.ColumnCount())
}

func (r *REPL) define(name, expr string, out io.Writer) {
	t := r.table(out)
	if t == nil {
		return
	}
	missing, err := r.store.AddVariable(t, name, expr)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	name = strings.TrimSpace(name)
	fmt.Fprintf(out, "%s = column %d\n", name, r.store.IndexOf(t, name))
	fmt.Fprint(out, missing.Warning(r.store.ColumnNames(t)))
}

// eval evaluates a one-off expression against the current row of the
// current table.
func (r *REPL) eval(input string, out io.Writer) {
	p, err := r.store.Compile(input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	var columns []string
	if r.current != nil {
		columns = r.store.ColumnNames(r.current)
	}
	if missing := resolve.Resolve(p, columns, nil); len(missing) > 0 {
		fmt.Fprint(out, missing.Warning(columns))
		return
	}
	for _, sym := range p.Externals {
		v, err := r.store.Evaluate(r.current, sym.Index, r.row)
		if err != nil {
			fmt.Fprintf(out, "Error: %s: %v\n", sym.Name, err)
			return
		}
		sym.Value = v
	}

	result, err := r.vm.Execute(p)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "=> %v\n", result)
}

func (r *REPL) setWatch(names []string, out io.Writer) {
	t := r.table(out)
	if t == nil {
		return
	}
	if len(names) == 0 {
		r.watch.Indices = nil
		fmt.Fprintln(out, "Watching all columns")
		return
	}
	indices := make([]int, 0, len(names))
	for _, name := range names {
		idx := r.store.IndexOf(t, name)
		if idx < 0 {
			fmt.Fprintf(out, "Unknown column %s\n", name)
			return
		}
		indices = append(indices, idx)
	}
	r.watch.Indices = indices
}

// columns returns the watched columns that still exist, or all columns.
func (r *REPL) columns(t table.Table) []int {
	var cols []int
	for _, idx := range r.watch.Indices {
		if idx >= 0 {
			cols = append(cols, idx)
		}
	}
	if len(cols) > 0 {
		return cols
	}
	cols = make([]int, r.store.ColumnCount(t))
	for i := range cols {
		cols[i] = i
	}
	return cols
}

func (r *REPL) show(n int, out io.Writer) {
	t := r.table(out)
	if t == nil {
		return
	}
	cols := r.columns(t)

	header := make([]string, 0, len(cols)+1)
	header = append(header, "row")
	for _, idx := range cols {
		name, _ := r.store.ColumnName(t, idx)
		header = append(header, name)
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader(header)
	for row := 0; row < n && row < t.RowCount(); row++ {
		rec := make([]string, 0, len(cols)+1)
		rec = append(rec, strconv.Itoa(row))
		for _, idx := range cols {
			v, err := r.store.Evaluate(t, idx, row)
			if err != nil {
				rec = append(rec, "error")
				continue
			}
			rec = append(rec, strconv.FormatFloat(v, 'g', 6, 64))
		}
		tw.Append(rec)
	}
	tw.Render()
}

func (r *REPL) printRange(name string, out io.Writer) {
	t := r.table(out)
	if t == nil {
		return
	}
	idx := r.store.IndexOf(t, name)
	if idx < 0 {
		fmt.Fprintf(out, "Unknown column %s\n", name)
		return
	}
	lo, hi, ok := r.store.Range(t, idx)
	if !ok {
		fmt.Fprintf(out, "%s has no values\n", name)
		return
	}
	fmt.Fprintf(out, "%s: [%g, %g]\n", name, lo, hi)
}

func (r *REPL) plot(name string, height int, out io.Writer) {
	t := r.table(out)
	if t == nil {
		return
	}
	idx := r.store.IndexOf(t, name)
	if idx < 0 {
		fmt.Fprintf(out, "Unknown column %s\n", name)
		return
	}
	values, valid, err := r.store.Column(t, idx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	data := make([]float64, 0, len(values))
	for row, v := range values {
		if valid.IsSet(row) {
			data = append(data, v)
		}
	}
	if len(data) == 0 {
		fmt.Fprintf(out, "%s has no values\n", name)
		return
	}
	fmt.Fprintln(out, asciigraph.Plot(data, asciigraph.Height(height), asciigraph.Caption(name)))
}

func (r *REPL) disasm(arg string, out io.Writer) {
	if arg == "" {
		fmt.Fprintln(out, "Usage: disasm <name|expression>")
		return
	}
	if r.current != nil {
		if v, ok := r.store.Variable(r.current, arg); ok {
			fmt.Fprint(out, vm.Disassemble(v.Program))
			return
		}
	}
	p, err := r.store.Compile(arg)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(out, vm.Disassemble(p))
}

func (r *REPL) listTables(out io.Writer) {
	if len(r.tables) == 0 {
		fmt.Fprintln(out, "No tables loaded")
		return
	}

	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(out, "Loaded tables:")
	for _, id := range ids {
		t := r.tables[id]
		marker := " "
		if r.current != nil && r.current.ID() == id {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %s: %d rows, %d columns, %d variables\n",
			marker, id, t.RowCount(), t.ColumnCount(), len(r.store.Variables(id)))
	}
}

func (r *REPL) listVariables(out io.Writer) {
	t := r.current
	if t == nil || len(r.store.Variables(t.ID())) == 0 {
		fmt.Fprintln(out, "No variables defined")
		return
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Index", "Name", "Expression"})
	for _, v := range r.store.Variables(t.ID()) {
		tw.Append([]string{
			strconv.Itoa(r.store.IndexOf(t, v.Name)),
			v.Name,
			strings.ReplaceAll(v.Source, "\n", "; "),
		})
	}
	tw.Render()
}

func (r *REPL) printHelp(out io.Writer) {
	help := `
dervar REPL Commands:
  help, h, ?             Show this help message
  quit, exit, q          Exit the REPL
  load <path>            Load a CSV, JSON or Parquet file as a table
  use <table>            Select a loaded table
  tables                 List loaded tables
  let <name> = <expr>    Define or redefine a derived variable
  del <name>             Delete a derived variable
  rename <old> <new>     Rename a derived variable
  vars                   List derived variables of the table
  row [n]                Show or set the row used for expressions
  watch [cols...]        Choose the columns 'show' prints (none: all)
  show [n]               Print the first n rows
  range <col>            Print the minimum and maximum of a column
  test <name>            Evaluate a variable on every row
  errors                 Report and reset evaluation errors
  plot <col> [height]    Plot a column
  disasm <name|expr>     Show compiled bytecode
  history                Show command history

Anything else is evaluated as an expression on the current row.

Examples:
  load events.csv
  let pt = sqrt(px^2 + py^2)
  let fast = pt > 5
  pt * 2

Tips:
  - End a line with \ to continue a definition on the next line
`
	fmt.Fprint(out, help)
}

var errNoTable = errors.New("no table loaded")

// Table returns the selected table.
func (r *REPL) Table() (table.Table, error) {
	if r.current == nil {
		return nil, errNoTable
	}
	return r.current, nil
}
