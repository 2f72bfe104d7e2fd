package loader

import (
	"context"
	"errors"
	"fmt"
	"os"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
)

// ErrEmptyFile is returned for a CSV file without columns.
var ErrEmptyFile = errors.New("empty CSV file")

// LoadCSV reads a CSV file and returns a DataFrame using dataframe-go.
// - First row is header (column names)
// - Auto-detects column types (int64, float64, bool, string)
// - Empty values become nil
func LoadCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	empty := ""
	df, err := imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes: true,
		NilValue:       &empty,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyFile
	}

	return df, nil
}
