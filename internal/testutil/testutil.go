// Package testutil provides testing utilities for dervar tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/dervar/pkg/table"
)

// TempCSV creates a temporary CSV file and returns its path.
// The file is automatically cleaned up when the test finishes.
func TempCSV(t *testing.T, content string) string {
	t.Helper()
	return TempFile(t, content, ".csv")
}

// TempFile creates a temporary file with the given content and extension.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// TempConfig writes a definitions file next to a data file and returns the
// config path. dataName is the data file's base name as referenced by the
// config's source key.
func TempConfig(t *testing.T, config, dataName, data string) string {
	t.Helper()
	tmpDir := t.TempDir()
	if dataName != "" {
		if err := os.WriteFile(filepath.Join(tmpDir, dataName), []byte(data), 0644); err != nil {
			t.Fatalf("failed to write temp data: %v", err)
		}
	}
	path := filepath.Join(tmpDir, "defs.yaml")
	if err := os.WriteFile(path, []byte(config), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

// EventsCSV returns standard test CSV content: four particle events.
func EventsCSV() string {
	return `px,py,pz,charge
3,4,12,1
-6,8,0,-1
0,0,5,1
1.5,-2,6,-1`
}

// MakeEventsFrame creates the EventsCSV data as a dataframe.
func MakeEventsFrame() *dataframe.DataFrame {
	return dataframe.NewDataFrame(
		dataframe.NewSeriesFloat64("px", nil, 3.0, -6.0, 0.0, 1.5),
		dataframe.NewSeriesFloat64("py", nil, 4.0, 8.0, 0.0, -2.0),
		dataframe.NewSeriesFloat64("pz", nil, 12.0, 0.0, 5.0, 6.0),
		dataframe.NewSeriesInt64("charge", nil, 1, -1, 1, -1),
	)
}

// MakeEventsTable creates the EventsCSV data as an in-memory table.
func MakeEventsTable(t *testing.T) *table.Memory {
	t.Helper()
	return MakeTable(t, "events",
		[]string{"px", "py", "pz", "charge"},
		[]float64{3, -6, 0, 1.5},
		[]float64{4, 8, 0, -2},
		[]float64{12, 0, 5, 6},
		[]float64{1, -1, 1, -1},
	)
}

// MakeTable creates an in-memory table or fails the test.
func MakeTable(t *testing.T, id string, names []string, columns ...[]float64) *table.Memory {
	t.Helper()
	m, err := table.NewMemory(id, names, columns...)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	return m
}

// AssertFloat64Near checks if two float64 values are approximately equal.
func AssertFloat64Near(t *testing.T, expected, actual, tolerance float64) {
	t.Helper()
	if actual < expected-tolerance || actual > expected+tolerance {
		t.Errorf("expected %.6f, got %.6f (tolerance: %.6f)", expected, actual, tolerance)
	}
}
