// Package tools decides whether an LLM-requested tool call may run.
package tools

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed essential_tools.yaml
var essentialYAML []byte

type registryFile struct {
	Version string  `yaml:"version"`
	Tools   []Entry `yaml:"tools"`
}

// Registry is an immutable, ordered set of tool entries. Declaration order
// breaks ties in partial name matching.
type Registry struct {
	version string
	order   []string
	entries map[string]Entry
}

// NewRegistry validates entries and rejects duplicate ids.
func NewRegistry(version string, entries []Entry) (*Registry, error) {
	r := &Registry{
		version: version,
		order:   make([]string, 0, len(entries)),
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("NewRegistry: %w", err)
		}
		if _, dup := r.entries[e.ToolID]; dup {
			return nil, fmt.Errorf("NewRegistry: duplicate tool_id %q", e.ToolID)
		}
		r.order = append(r.order, e.ToolID)
		r.entries[e.ToolID] = e
	}
	return r, nil
}

// ParseRegistry decodes a registry YAML document.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseRegistry: %w", err)
	}
	return NewRegistry(f.Version, f.Tools)
}

// LoadEssential returns the registry shipped with the binary.
func LoadEssential() (*Registry, error) {
	return ParseRegistry(essentialYAML)
}

// Version is the registry content version.
func (r *Registry) Version() string { return r.version }

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.order) }

// Get returns the entry for an exact id.
func (r *Registry) Get(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Entries returns all entries in declaration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}
