// Package capability maps agent names to capability descriptors. A capability
// bundles the executor adapter for a concrete agent with the declarative
// metadata the coordinator needs for policy decisions: idempotency (retry
// eligibility), the handoff allow-list and a priority used by the GroupChat
// priority manager.
package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/planmesh/core"
)

// Capability describes one named agent the coordinator can dispatch to.
type Capability struct {
	// Name is the external identifier steps refer to.
	Name string
	// Description documents what the agent does.
	Description string
	// Executor performs the actual agent call.
	Executor core.Executor
	// Idempotent declares the call safe to retry on execution errors.
	Idempotent bool
	// Handoffs is the static allow-list of agents this capability may name as
	// its successor under the Handoff pattern.
	Handoffs []string
	// Priority orders speaker selection for the GroupChat priority manager
	// (lower values speak first).
	Priority int
}

// CanHandoffTo reports whether target is in the capability's allow-list.
func (c *Capability) CanHandoffTo(target string) bool {
	for _, allowed := range c.Handoffs {
		if allowed == target {
			return true
		}
	}
	return false
}

// Registry is a thread-safe name-keyed capability registry. Registering a
// name twice replaces the previous descriptor.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]*Capability
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]*Capability)}
}

// Register adds (or replaces) a capability descriptor.
func (r *Registry) Register(c *Capability) error {
	if c.Name == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if c.Executor == nil {
		return fmt.Errorf("capability %s has no executor", c.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Name] = c
	return nil
}

// Resolve looks up a capability by name.
func (r *Registry) Resolve(name string) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[name]
	return c, ok
}

// Names returns all registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
