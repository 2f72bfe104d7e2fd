// Package embed provides a small API for using derived variables from Go
// programs without managing a store.
//
// Pass a string, get a result:
//
//	v, err := embed.Eval("x = 3\nx^2 + 1")
//
// With a DataFrame:
//
//	df := dataframe.NewDataFrame(
//	    dataframe.NewSeriesFloat64("px", nil, 3.0, -6.0),
//	    dataframe.NewSeriesFloat64("py", nil, 4.0, 8.0),
//	)
//
//	out, err := embed.Extend(df, []embed.Definition{
//	    {Name: "pt", Expr: "sqrt(px^2 + py^2)"},
//	    {Name: "fast", Expr: "pt > 5"},
//	})
package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/dervar/pkg/resolve"
	"github.com/akhildatla/dervar/pkg/store"
	"github.com/akhildatla/dervar/pkg/table"
	"github.com/akhildatla/dervar/pkg/vm"
)

// Common errors
var (
	ErrTimeout    = errors.New("execution timeout exceeded")
	ErrUnresolved = errors.New("undefined names")
)

// frameID is the table ID given to frames passed in by callers.
const frameID = "frame"

// checkEvery is how many rows are evaluated between context checks.
const checkEvery = 1024

// Definition is a derived column to add to a frame.
type Definition struct {
	Name string
	Expr string
}

// Options configures evaluation.
type Options struct {
	// Seed makes rand() deterministic when set.
	Seed *uint64

	// Fold enables constant folding.
	Fold bool

	// Logger receives store events. Defaults to logr.Discard().
	Logger logr.Logger

	// Timeout sets maximum evaluation time. Zero means no timeout.
	Timeout time.Duration

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring evaluation.
type Option func(*Options)

// WithSeed makes rand() deterministic.
func WithSeed(seed uint64) Option {
	return func(o *Options) {
		o.Seed = &seed
	}
}

// WithFolding enables constant folding.
func WithFolding() Option {
	return func(o *Options) {
		o.Fold = true
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithTimeout sets evaluation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

func buildOptions(opts []Option) *Options {
	options := &Options{
		Context: context.Background(),
		Logger:  logr.Discard(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (o *Options) store() *store.Store {
	sopts := []store.Option{store.WithLogger(o.Logger)}
	if o.Seed != nil {
		sopts = append(sopts, store.WithSeed(*o.Seed))
	}
	if o.Fold {
		sopts = append(sopts, store.WithFolding())
	}
	return store.New(sopts...)
}

// Eval compiles and runs an expression that uses no columns.
func Eval(expr string, opts ...Option) (float64, error) {
	options := buildOptions(opts)
	s := options.store()

	p, err := s.Compile(expr)
	if err != nil {
		return 0, err
	}
	if u := resolve.Resolve(p, nil, nil); len(u) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(u, ", "))
	}

	var vmOpts []vm.Option
	if options.Seed != nil {
		vmOpts = append(vmOpts, vm.WithSeed(*options.Seed))
	}
	return vm.NewVM(vmOpts...).Execute(p)
}

// EvalFile reads an expression from a file and evaluates it.
func EvalFile(path string, opts ...Option) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return Eval(string(data), opts...)
}

// EvaluateColumn evaluates expr for every row of df. Rows that failed hold
// 0 and are clear in the returned bitmap.
func EvaluateColumn(df *dataframe.DataFrame, expr string, opts ...Option) ([]float64, *table.Bitmap, error) {
	options := buildOptions(opts)
	t, err := table.NewFrame(frameID, df)
	if err != nil {
		return nil, nil, err
	}
	s := options.store()

	name := uniqueName(s, t, "value")
	if err := define(s, t, name, expr); err != nil {
		return nil, nil, err
	}

	ctx, cancel := options.context()
	defer cancel()
	return column(ctx, s, t, s.IndexOf(t, name))
}

// Extend returns a copy of df with one float64 column per definition, in
// order. Later definitions may use earlier ones. Rows that fail to evaluate
// are nil.
func Extend(df *dataframe.DataFrame, defs []Definition, opts ...Option) (*dataframe.DataFrame, error) {
	options := buildOptions(opts)
	t, err := table.NewFrame(frameID, df)
	if err != nil {
		return nil, err
	}
	s := options.store()

	for _, d := range defs {
		if err := define(s, t, d.Name, d.Expr); err != nil {
			return nil, err
		}
	}

	ctx, cancel := options.context()
	defer cancel()

	series := make([]dataframe.Series, 0, len(df.Series)+len(defs))
	for _, src := range df.Series {
		series = append(series, src.Copy())
	}
	for _, v := range s.Variables(t.ID()) {
		values, valid, err := column(ctx, s, t, s.IndexOf(t, v.Name))
		if err != nil {
			return nil, err
		}
		vals := make([]interface{}, len(values))
		for row, x := range values {
			if valid.IsSet(row) {
				vals[row] = x
			}
		}
		series = append(series, dataframe.NewSeriesFloat64(v.Name, nil, vals...))
	}
	return dataframe.NewDataFrame(series...), nil
}

func (o *Options) context() (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(o.Context, o.Timeout)
	}
	return context.WithCancel(o.Context)
}

func define(s *store.Store, t table.Table, name, expr string) error {
	u, err := s.AddVariable(t, name, expr)
	if err != nil {
		return err
	}
	if len(u) > 0 {
		return fmt.Errorf("%s: %w: %s", name, ErrUnresolved, strings.Join(u, ", "))
	}
	return nil
}

func column(ctx context.Context, s *store.Store, t table.Table, index int) ([]float64, *table.Bitmap, error) {
	rows := t.RowCount()
	values := make([]float64, rows)
	valid := table.NewAllSetBitmap(rows)
	for row := 0; row < rows; row++ {
		if row%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, nil, ErrTimeout
				}
				return nil, nil, err
			}
		}
		v, err := s.Evaluate(t, index, row)
		if err != nil {
			valid.Clear(row)
			continue
		}
		values[row] = v
	}
	return values, valid, nil
}

func uniqueName(s *store.Store, t table.Table, base string) string {
	name := base
	for i := 1; s.IndexOf(t, name) >= 0; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}
