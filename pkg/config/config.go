// Package config reads derived variable definitions from YAML.
//
// A definitions file names a data source and the variables to derive from
// it, in order:
//
//	source: events.csv
//	seed: 7
//	fold: true
//	columns: [px, pt]
//	variables:
//	  - name: pt
//	    expr: sqrt(px^2 + py^2)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/akhildatla/dervar/pkg/resolve"
	"github.com/akhildatla/dervar/pkg/store"
	"github.com/akhildatla/dervar/pkg/table"
)

// Error definitions
var (
	ErrNoVariables   = errors.New("no variables defined")
	ErrInvalidEntry  = errors.New("invalid variable entry")
	ErrDuplicateName = errors.New("duplicate variable name")
)

// Variable is one definition.
type Variable struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Config is a definitions file.
type Config struct {
	Table     string     `yaml:"table,omitempty"`
	Source    string     `yaml:"source,omitempty"`
	Seed      *uint64    `yaml:"seed,omitempty"`
	Fold      bool       `yaml:"fold,omitempty"`
	TestOnAdd bool       `yaml:"test_on_add,omitempty"`
	Columns   []string   `yaml:"columns,omitempty"`
	Variables []Variable `yaml:"variables"`
}

// Load reads and validates a definitions file. A relative source path is
// taken relative to the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Source != "" && !filepath.IsAbs(cfg.Source) {
		cfg.Source = filepath.Join(filepath.Dir(path), cfg.Source)
	}
	return cfg, nil
}

// Parse decodes and validates a definitions document. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every variable has a name and an expression and that
// names are unique ignoring case.
func (c *Config) Validate() error {
	if len(c.Variables) == 0 {
		return ErrNoVariables
	}
	seen := make(map[string]bool, len(c.Variables))
	for i, v := range c.Variables {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidEntry, i+1)
		}
		if strings.TrimSpace(v.Expr) == "" {
			return fmt.Errorf("%w: %s has no expression", ErrInvalidEntry, name)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		seen[key] = true
	}
	return nil
}

// TableID is the configured table name, or the source file's base name.
func (c *Config) TableID() string {
	if c.Table != "" {
		return c.Table
	}
	base := filepath.Base(c.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StoreOptions translates the file's settings into store options.
func (c *Config) StoreOptions() []store.Option {
	var opts []store.Option
	if c.Seed != nil {
		opts = append(opts, store.WithSeed(*c.Seed))
	}
	if c.Fold {
		opts = append(opts, store.WithFolding())
	}
	if c.TestOnAdd {
		opts = append(opts, store.WithTestOnAdd())
	}
	return opts
}

// Apply adds every variable to s in file order and stops at the first one
// rejected. It returns the names still unresolved per variable once every
// accepted definition is in place, so a later definition can satisfy an
// earlier one.
func (c *Config) Apply(s *store.Store, t table.Table) (map[string]resolve.Unresolved, error) {
	for _, v := range c.Variables {
		if _, err := s.AddVariable(t, v.Name, v.Expr); err != nil {
			missing, _ := s.Rebind(t)
			return missing, fmt.Errorf("variable %s: %w", v.Name, err)
		}
	}
	return s.Rebind(t)
}

// OutputColumns returns the effective indices of the selected columns, or
// every column when none are selected.
func (c *Config) OutputColumns(s *store.Store, t table.Table) ([]int, error) {
	if len(c.Columns) == 0 {
		all := make([]int, s.ColumnCount(t))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	indices := make([]int, len(c.Columns))
	for i, name := range c.Columns {
		idx := s.IndexOf(t, name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: column %s", store.ErrNotFound, name)
		}
		indices[i] = idx
	}
	return indices, nil
}
