package toolset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Parameter defines a single tool parameter.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool defines a tool's metadata and handler.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Set is a named bundle of tools available to an agent.
type Set struct {
	Name        string
	Description string
	tools       map[string]*Tool
}

// Tools returns the set's tools sorted by name.
func (s *Set) Tools() []*Tool {
	out := make([]*Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tool returns a tool by name.
func (s *Set) Tool(name string) (*Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Registry holds the supported tool sets. The supported set names are fixed;
// a manifest can only adjust tools within them.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*Set
}

// NewRegistry creates a registry populated with the builtin tool sets.
func NewRegistry() *Registry {
	r := &Registry{}
	r.sets = builtinSets()
	return r
}

// Supported returns the supported tool set names, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether a tool set name is supported.
func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sets[name]
	return ok
}

// Get returns a tool set by name.
func (r *Registry) Get(name string) (*Set, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sets[name]
	return s, ok
}

// Reload rebuilds the registry from the builtin sets and applies the manifest
// at path. An empty path resets to builtins only. The swap is atomic with
// respect to Get.
func (r *Registry) Reload(path string) error {
	sets := builtinSets()

	if path != "" {
		manifest, err := LoadManifest(path)
		if err != nil {
			return fmt.Errorf("failed to load toolset manifest: %w", err)
		}
		if err := applyManifest(sets, manifest); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.sets = sets
	r.mu.Unlock()

	log.Info().Str("manifest", path).Msg("Tool sets reloaded")
	return nil
}

// applyManifest applies description overrides and tool disabling to sets.
func applyManifest(sets map[string]*Set, m *Manifest) error {
	for _, ms := range m.ToolSets {
		set, ok := sets[ms.Name]
		if !ok {
			return fmt.Errorf("manifest references unknown tool set: %s", ms.Name)
		}
		for _, mt := range ms.Tools {
			tool, ok := set.tools[mt.Name]
			if !ok {
				return fmt.Errorf("manifest references unknown tool %s in set %s", mt.Name, ms.Name)
			}
			if mt.Disabled {
				delete(set.tools, mt.Name)
				continue
			}
			if mt.Description != "" {
				tool.Description = mt.Description
			}
		}
	}
	return nil
}
