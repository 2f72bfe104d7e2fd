// Package main provides the CLI entry point for dervar, derived variables
// over tabular data.
//
// Usage:
//
//	dervar run -config defs.yaml           # Evaluate a definitions file and print rows
//	dervar check -config defs.yaml         # Test every definition on every row
//	dervar eval "sqrt(2) * pi"             # Evaluate a constant expression
//	dervar disasm -O "2 * pi * r"          # Show compiled bytecode
//	dervar repl -data events.csv           # Interactive shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/akhildatla/dervar/pkg/config"
	"github.com/akhildatla/dervar/pkg/embed"
	"github.com/akhildatla/dervar/pkg/loader"
	"github.com/akhildatla/dervar/pkg/repl"
	"github.com/akhildatla/dervar/pkg/store"
	"github.com/akhildatla/dervar/pkg/table"
	"github.com/akhildatla/dervar/pkg/vm"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var errChecksFailed = errors.New("definitions failed on data")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out, errOut io.Writer) error {
	if len(args) < 1 {
		return printUsage(out)
	}

	cmd := args[0]

	switch cmd {
	case "run":
		return runCommand(args[1:], out, errOut)
	case "check":
		return checkCommand(args[1:], out, errOut)
	case "eval":
		return evalCommand(args[1:], out, errOut)
	case "disasm":
		return disasmCommand(args[1:], out, errOut)
	case "repl":
		return replCommand(args[1:], in, out, errOut)
	case "version":
		fmt.Fprintf(out, "dervar version %s\n", version)
		if commit != "none" {
			fmt.Fprintf(out, "  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Fprintf(out, "  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage(out)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// newLogger returns a zap-backed logger writing to w. Verbosity v enables
// logr levels up to V(v).
func newLogger(w io.Writer, v int) logr.Logger {
	if v <= 0 {
		return logr.Discard()
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(zapcore.Level(-v)))
	return zapr.NewLogger(zap.New(core))
}

// session is a definitions file applied to its data.
type session struct {
	cfg   *config.Config
	store *store.Store
	table table.Table
}

func openSession(path string, dataPath string, log logr.Logger, errOut io.Writer) (*session, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataPath != "" {
		cfg.Source = dataPath
	}
	if cfg.Source == "" {
		return nil, fmt.Errorf("%s: no data source", path)
	}

	df, err := loader.Load(context.Background(), cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.Source, err)
	}
	t, err := table.NewFrame(cfg.TableID(), df)
	if err != nil {
		return nil, err
	}
	log.V(1).Info("table loaded", "table", t.ID(), "rows", t.RowCount(), "columns", t.ColumnCount())

	s := store.New(append(cfg.StoreOptions(), store.WithLogger(log))...)
	missing, err := cfg.Apply(s, t)
	for name, u := range missing {
		fmt.Fprintf(errOut, "warning: %s: %s", name, u.Warning(s.ColumnNames(t)))
	}
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, store: s, table: t}, nil
}

func runCommand(args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "definitions file (YAML)")
	dataPath := fs.String("data", "", "data file (overrides the config's source)")
	rows := fs.Int("rows", 10, "rows to print (0: all)")
	verbose := fs.Int("v", 0, "log verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("usage: dervar run -config <defs.yaml> [-data file] [-rows N] [-v N]")
	}

	sess, err := openSession(*configPath, *dataPath, newLogger(errOut, *verbose), errOut)
	if err != nil {
		return err
	}
	cols, err := sess.cfg.OutputColumns(sess.store, sess.table)
	if err != nil {
		return err
	}

	n := sess.table.RowCount()
	if *rows > 0 && *rows < n {
		n = *rows
	}
	printRows(out, sess.store, sess.table, cols, n)

	valid, err := sess.store.Valid(sess.table, cols)
	if err != nil {
		return err
	}
	if failed := valid.Len() - valid.PopCount(); failed > 0 {
		_, last := sess.store.Errors()
		fmt.Fprintf(errOut, "%d of %d rows failed to evaluate (rows %s), last error: %v\n",
			failed, valid.Len(), formatRows(valid.Invalid()), last)
	}
	return nil
}

// formatRows lists row numbers, eliding all but the first few.
func formatRows(rows []int) string {
	const shown = 10
	parts := make([]string, 0, shown+1)
	for i, row := range rows {
		if i == shown {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, strconv.Itoa(row))
	}
	return strings.Join(parts, ", ")
}

func printRows(out io.Writer, s *store.Store, t table.Table, cols []int, n int) {
	header := make([]string, len(cols))
	for i, idx := range cols {
		header[i], _ = s.ColumnName(t, idx)
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader(header)
	for row := 0; row < n; row++ {
		rec := make([]string, len(cols))
		for i, idx := range cols {
			v, err := s.Evaluate(t, idx, row)
			if err != nil {
				rec[i] = "error"
				continue
			}
			rec[i] = strconv.FormatFloat(v, 'g', 6, 64)
		}
		tw.Append(rec)
	}
	tw.Render()
}

func checkCommand(args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "definitions file (YAML)")
	dataPath := fs.String("data", "", "data file (overrides the config's source)")
	verbose := fs.Int("v", 0, "log verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("usage: dervar check -config <defs.yaml> [-data file]")
	}

	sess, err := openSession(*configPath, *dataPath, newLogger(errOut, *verbose), errOut)
	if err != nil {
		return err
	}

	failed := 0
	vars := sess.store.Variables(sess.table.ID())
	for _, v := range vars {
		if err := sess.store.TestOnData(sess.table, v.Name); err != nil {
			_, valid, cerr := sess.store.Column(sess.table, sess.store.IndexOf(sess.table, v.Name))
			if cerr != nil {
				return cerr
			}
			fmt.Fprintf(out, "FAIL %v (%d of %d rows, rows %s)\n",
				err, valid.Len()-valid.PopCount(), valid.Len(), formatRows(valid.Invalid()))
			failed++
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", v.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errChecksFailed, failed, len(vars))
	}
	return nil
}

func evalCommand(args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(errOut)
	seed := fs.Uint64("seed", 0, "seed for rand()")
	fold := fs.Bool("O", false, "fold constant sub-expressions")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dervar eval [-seed N] [-O] <expression>")
	}

	var opts []embed.Option
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts = append(opts, embed.WithSeed(*seed))
		}
	})
	if *fold {
		opts = append(opts, embed.WithFolding())
	}

	result, err := embed.Eval(strings.Join(fs.Args(), " "), opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%.6g\n", result)
	return nil
}

func disasmCommand(args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(errOut)
	optimize := fs.Bool("O", false, "enable optimizations (constant folding, dead code elimination)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dervar disasm [-O] <expression>")
	}

	var opts []store.Option
	if *optimize {
		opts = append(opts, store.WithFolding())
	}
	program, err := store.New(opts...).Compile(strings.Join(fs.Args(), " "))
	if err != nil {
		return fmt.Errorf("compiling: %w", err)
	}

	fmt.Fprint(out, vm.Disassemble(program))
	return nil
}

func replCommand(args []string, in io.Reader, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dataPath := fs.String("data", "", "data file to load")
	verbose := fs.Int("v", 0, "log verbosity")

	if err := fs.Parse(args); err != nil {
		return err
	}

	r := repl.New(repl.WithLogger(newLogger(errOut, *verbose)))

	if *dataPath != "" {
		t, err := loader.LoadTable(context.Background(), *dataPath)
		if err != nil {
			return fmt.Errorf("loading %s: %w", *dataPath, err)
		}
		r.AddTable(t, out)
	}

	r.Start(in, out)
	return nil
}

func printUsage(out io.Writer) error {
	fmt.Fprintln(out, `dervar - derived variables over tabular data

Usage:
  dervar <command> [arguments]

Commands:
  run -config <file>    Apply a definitions file to its data and print rows
  check -config <file>  Evaluate every definition on every row
  eval <expr>           Evaluate an expression that uses no columns
  disasm <expr>         Show the compiled bytecode of an expression
  repl                  Start interactive REPL
  version               Print version information
  help                  Show this help message

Run Options:
  -config <file>        Definitions file (YAML)
  -data <file>          Data file, overriding the definitions' source
  -rows <n>             Rows to print (default 10, 0 for all)
  -v <n>                Log verbosity

Check Options:
  -config <file>        Definitions file (YAML)
  -data <file>          Data file, overriding the definitions' source

Eval Options:
  -seed <n>             Seed for rand()
  -O                    Fold constant sub-expressions

Disasm Options:
  -O                    Enable optimizations (constant folding, dead code elimination)

REPL Options:
  -data <file>          Load a CSV, JSON or Parquet file at startup
  -v <n>                Log verbosity

Examples:
  dervar run -config cuts.yaml -rows 20
  dervar check -config cuts.yaml
  dervar eval "2^10 - 1"
  dervar disasm -O "sqrt(px^2 + py^2) * 2 * pi"
  dervar repl -data events.csv`)
	return nil
}
