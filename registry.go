package minimact

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/minimact/minimact-sub002/internal/memory"
	"github.com/minimact/minimact-sub002/internal/metrics"
)

// TemplateLoader fetches a component type's template map from wherever the
// build step published it (a document store, a file, an embedded asset).
type TemplateLoader func(ctx context.Context, component string) (*TemplateMap, error)

// Registry holds one template map per component type, shared by every
// instance of that type. Maps load lazily on first request and are replaced
// wholesale on hot reload; readers always see either the old complete map
// or the new complete map.
type Registry struct {
	loader  TemplateLoader
	metrics *metrics.Collector
	memory  *memory.Manager

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	current atomic.Pointer[TemplateMap]
	ready   chan struct{} // closed once the first load attempt finishes
	loadErr error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLoader sets the loader used for lazy template map loads.
func WithLoader(loader TemplateLoader) RegistryOption {
	return func(r *Registry) { r.loader = loader }
}

// WithMetrics wires a metrics collector into the registry.
func WithMetrics(collector *metrics.Collector) RegistryOption {
	return func(r *Registry) { r.metrics = collector }
}

// WithMemoryManager wires template map sizes into a memory budget.
func WithMemoryManager(manager *memory.Manager) RegistryOption {
	return func(r *Registry) { r.memory = manager }
}

// NewRegistry creates a registry. Without a loader, maps must arrive
// through Put or Swap.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{entries: make(map[string]*registryEntry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the component's template map, loading it on first request.
// Concurrent callers during a load all wait on the same attempt. A state
// change arriving before the map is ready should be treated as a miss by
// the caller, not block rendering; pass a short-deadline context for that.
func (r *Registry) Get(ctx context.Context, component string) (*TemplateMap, error) {
	r.mu.Lock()
	entry, exists := r.entries[component]
	if !exists {
		entry = &registryEntry{ready: make(chan struct{})}
		r.entries[component] = entry
		if r.loader == nil {
			entry.loadErr = fmt.Errorf("component %q: %w", component, ErrNoTemplateMap)
			close(entry.ready)
		} else {
			go r.load(entry, component)
		}
	}
	r.mu.Unlock()

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for template map of %q: %w", component, ctx.Err())
	}

	if tm := entry.current.Load(); tm != nil {
		return tm, nil
	}
	return nil, entry.loadErr
}

// Lookup returns the map only if it is already loaded. It never blocks.
func (r *Registry) Lookup(component string) (*TemplateMap, bool) {
	r.mu.Lock()
	entry, exists := r.entries[component]
	r.mu.Unlock()
	if !exists {
		return nil, false
	}
	tm := entry.current.Load()
	return tm, tm != nil
}

// Put installs a template map directly, bypassing the loader.
func (r *Registry) Put(tm *TemplateMap) {
	r.mu.Lock()
	entry, exists := r.entries[tm.Component]
	if !exists {
		entry = &registryEntry{ready: make(chan struct{})}
		r.entries[tm.Component] = entry
		close(entry.ready)
	}
	r.mu.Unlock()

	old := entry.current.Swap(tm)
	r.account(tm, old)
}

// Swap atomically replaces a component's template map and returns the
// previous one, nil if this is the first. Hot reload calls this after
// planning invalidation against the old map.
func (r *Registry) Swap(tm *TemplateMap) *TemplateMap {
	r.mu.Lock()
	entry, exists := r.entries[tm.Component]
	if !exists {
		entry = &registryEntry{ready: make(chan struct{})}
		r.entries[tm.Component] = entry
		close(entry.ready)
	}
	r.mu.Unlock()

	old := entry.current.Swap(tm)
	r.account(tm, old)
	slog.Info("template map swapped",
		"component", tm.Component,
		"version", tm.Version,
		"templates", tm.Len())
	return old
}

// Remove drops a component's map and releases its memory budget.
func (r *Registry) Remove(component string) {
	r.mu.Lock()
	_, exists := r.entries[component]
	delete(r.entries, component)
	r.mu.Unlock()

	if exists && r.memory != nil {
		r.memory.Deallocate("templates:" + component)
	}
}

// Components returns the component types with a loaded map.
func (r *Registry) Components() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, entry := range r.entries {
		if entry.current.Load() != nil {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) load(entry *registryEntry, component string) {
	defer close(entry.ready)

	tm, err := r.loader(context.Background(), component)
	if err != nil {
		entry.loadErr = fmt.Errorf("loading template map for %q: %w", component, err)
		slog.Warn("template map load failed", "component", component, "error", err)
		return
	}
	entry.current.Store(tm)
	r.account(tm, nil)
}

func (r *Registry) account(tm, old *TemplateMap) {
	if r.metrics != nil {
		r.metrics.IncrementTemplateMapLoaded()
	}
	if r.memory == nil {
		return
	}
	ownerID := "templates:" + tm.Component
	if old != nil {
		if err := r.memory.UpdateUsage(ownerID, tm.estimateSize()); err != nil {
			slog.Warn("template map over memory budget", "component", tm.Component, "error", err)
		}
		return
	}
	if err := r.memory.Allocate(ownerID, tm.estimateSize()); err != nil {
		slog.Warn("template map over memory budget", "component", tm.Component, "error", err)
	}
}
