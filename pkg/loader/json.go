package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
)

// ErrEmptyJSON is returned for a JSON file without records.
var ErrEmptyJSON = errors.New("empty JSON file")

// LoadJSON reads a file of JSON objects, one record per object:
// {"col1": val1, "col2": val2} {"col1": ...}
// The first record fixes the columns. Columns are ordered by name since
// objects carry no order.
func LoadJSON(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyJSON
	}

	df, err := imports.LoadFromJSON(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyJSON
	}

	names := df.Names()
	sort.Strings(names)
	if err := df.ReorderColumns(names); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return df, nil
}
