// Package table defines the row/column accessor the engine reads native data
// through, with an in-memory implementation and one backed by a dataframe.
package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	dataframe "github.com/rocketlaunchr/dataframe-go"
)

// Error definitions
var (
	ErrColumnLength = errors.New("column length mismatch")
	ErrColumnCount  = errors.New("column count mismatch")
	ErrDuplicate    = errors.New("duplicate column name")
)

// Table is read-only access to a table's native columns. Values that are
// missing or not numeric read as NaN.
type Table interface {
	ID() string
	ColumnCount() int
	ColumnName(i int) string
	ReadColumn(i, row int) float64
	RowCount() int
}

// ColumnNames returns the native column names of t in order.
func ColumnNames(t Table) []string {
	names := make([]string, t.ColumnCount())
	for i := range names {
		names[i] = t.ColumnName(i)
	}
	return names
}

// ColumnIndex returns the index of the column named name (case-insensitive),
// or -1.
func ColumnIndex(t Table, name string) int {
	for i := 0; i < t.ColumnCount(); i++ {
		if strings.EqualFold(t.ColumnName(i), name) {
			return i
		}
	}
	return -1
}

// Memory is a Table held as float64 columns.
type Memory struct {
	id      string
	names   []string
	columns [][]float64
	rows    int
}

// NewMemory creates a table from equally long columns.
func NewMemory(id string, names []string, columns ...[]float64) (*Memory, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("%w: %d names, %d columns", ErrColumnCount, len(names), len(columns))
	}
	rows := 0
	for i, c := range columns {
		if i == 0 {
			rows = len(c)
		} else if len(c) != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrColumnLength, names[i], len(c), rows)
		}
	}
	for i, n := range names {
		for _, prev := range names[:i] {
			if strings.EqualFold(prev, n) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicate, n)
			}
		}
	}
	return &Memory{id: id, names: names, columns: columns, rows: rows}, nil
}

func (m *Memory) ID() string              { return m.id }
func (m *Memory) ColumnCount() int        { return len(m.names) }
func (m *Memory) ColumnName(i int) string { return m.names[i] }
func (m *Memory) RowCount() int           { return m.rows }

func (m *Memory) ReadColumn(i, row int) float64 {
	if i < 0 || i >= len(m.columns) || row < 0 || row >= m.rows {
		return math.NaN()
	}
	return m.columns[i][row]
}

// Frame adapts a dataframe to Table. Columns are converted to float64 once
// at construction so per-row reads are plain slice lookups.
type Frame struct {
	*Memory
	df *dataframe.DataFrame
}

// NewFrame converts every series of df: numbers as-is, bools as 1/0, times
// as Unix seconds, numeric strings parsed, anything else NaN.
func NewFrame(id string, df *dataframe.DataFrame) (*Frame, error) {
	names := make([]string, len(df.Series))
	columns := make([][]float64, len(df.Series))
	rows := 0
	if len(df.Series) > 0 {
		rows = df.NRows()
	}
	for i, s := range df.Series {
		names[i] = s.Name()
		col := make([]float64, rows)
		for r := 0; r < rows; r++ {
			col[r] = toFloat(s.Value(r))
		}
		columns[i] = col
	}

	mem, err := NewMemory(id, names, columns...)
	if err != nil {
		return nil, err
	}
	return &Frame{Memory: mem, df: df}, nil
}

// DataFrame returns the frame the table was built from.
func (f *Frame) DataFrame() *dataframe.DataFrame {
	return f.df
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return float64(x.Unix())
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
