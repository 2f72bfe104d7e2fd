// Package loader reads data files into dataframes and tables.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/dervar/pkg/table"
)

// ErrUnsupportedFormat is returned for file extensions no loader handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Load reads a CSV, JSON-lines or Parquet file, chosen by extension.
func Load(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(ctx, path)
	case ".json", ".jsonl":
		return LoadJSON(ctx, path)
	case ".parquet":
		return LoadParquet(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadTable loads path and wraps it as a table. The table ID is the file's
// base name without extension.
func LoadTable(ctx context.Context, path string) (*table.Frame, error) {
	df, err := Load(ctx, path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	return table.NewFrame(strings.TrimSuffix(base, filepath.Ext(base)), df)
}
