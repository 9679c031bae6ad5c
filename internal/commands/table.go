// Package commands holds the operator command table and runs rendered commands.
package commands

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml
var defaultTable []byte

var (
	// ErrUnsupportedType is returned when no commands exist for a construct type.
	ErrUnsupportedType = errors.New("no commands are currently available for this resource type")
	// ErrUnknownCommand is returned when a construct type has no command of the given name.
	ErrUnknownCommand = errors.New("unknown command")
)

// Table maps construct FQNs to named command templates. Shared commands apply to every
// type that has an entry of its own.
type Table struct {
	shared map[string]string
	types  map[string]map[string]string
}

type tableFile struct {
	Shared map[string]string            `yaml:"shared"`
	Types  map[string]map[string]string `yaml:"types"`
}

// Default returns the built-in command table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Parse reads a table from YAML.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse command table: %w", err)
	}
	t := &Table{
		shared: make(map[string]string),
		types:  make(map[string]map[string]string),
	}
	for name, cmd := range f.Shared {
		t.shared[name] = cmd
	}
	for fqn, cmds := range f.Types {
		t.types[fqn] = make(map[string]string, len(cmds))
		for name, cmd := range cmds {
			t.types[fqn][name] = cmd
		}
	}
	return t, nil
}

// LoadFile reads a table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read command table: %w", err)
	}
	return Parse(data)
}

// Merge overlays other onto t. Commands in other replace commands of the same name.
func (t *Table) Merge(other *Table) {
	for name, cmd := range other.shared {
		t.shared[name] = cmd
	}
	for fqn, cmds := range other.types {
		if t.types[fqn] == nil {
			t.types[fqn] = make(map[string]string, len(cmds))
		}
		for name, cmd := range cmds {
			t.types[fqn][name] = cmd
		}
	}
}

// Commands returns the sorted command names available for fqn.
func (t *Table) Commands(fqn string) ([]string, error) {
	cmds, ok := t.types[fqn]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fqn)
	}
	seen := make(map[string]struct{}, len(cmds)+len(t.shared))
	for name := range cmds {
		seen[name] = struct{}{}
	}
	for name := range t.shared {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Lookup returns the command template called name for fqn.
func (t *Table) Lookup(fqn, name string) (string, error) {
	cmds, ok := t.types[fqn]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fqn)
	}
	if cmd, ok := cmds[name]; ok {
		return cmd, nil
	}
	if cmd, ok := t.shared[name]; ok {
		return cmd, nil
	}
	return "", fmt.Errorf("%w %q for %s", ErrUnknownCommand, name, fqn)
}
