package minimact

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/minimact/minimact-sub002/internal/memory"
	"github.com/minimact/minimact-sub002/internal/metrics"
)

// PatchSink receives the patch batches an instance emits. Typically a feed
// broadcaster; nil sinks are allowed for headless use.
type PatchSink func(batch PatchBatch)

// Instance is one live occurrence of a component type: its state snapshot,
// its current render tree and the pipeline that turns state changes into
// patches. All template knowledge is shared through the registry; the
// instance owns only per-occurrence state.
//
// An instance is single-writer: state changes and authoritative patches
// serialize on an internal mutex, so patch batches are emitted in the order
// the changes were accepted.
type Instance struct {
	ID        string
	Component string

	registry *Registry
	render   RenderFunc
	sink     PatchSink
	metrics  *metrics.Collector
	memory   *memory.Manager

	mu       sync.Mutex
	snapshot StateSnapshot
	tree     *VNode
	closed   bool
}

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// WithPatchSink sets where emitted patch batches go.
func WithPatchSink(sink PatchSink) InstanceOption {
	return func(in *Instance) { in.sink = sink }
}

// WithInstanceMetrics wires the prediction and patch counters.
func WithInstanceMetrics(collector *metrics.Collector) InstanceOption {
	return func(in *Instance) { in.metrics = collector }
}

// WithInstanceMemory accounts the instance's tree and snapshot against a
// memory budget.
func WithInstanceMemory(manager *memory.Manager) InstanceOption {
	return func(in *Instance) { in.memory = manager }
}

// NewInstance mounts a component occurrence: renders the initial tree from
// the initial snapshot and registers it for patching. The render function
// is the authoritative full renderer the reconciler falls back to.
func NewInstance(component string, registry *Registry, render RenderFunc, initial StateSnapshot, opts ...InstanceOption) (*Instance, error) {
	if render == nil {
		return nil, errors.New("instance requires a render function")
	}
	in := &Instance{
		ID:        newInstanceID(),
		Component: component,
		registry:  registry,
		render:    render,
		snapshot:  initial.Clone(),
	}
	for _, opt := range opts {
		opt(in)
	}

	tree, err := render(in.snapshot)
	if err != nil {
		return nil, fmt.Errorf("initial render of %q: %w", component, err)
	}
	in.tree = tree

	if in.metrics != nil {
		in.metrics.IncrementInstanceCreated()
	}
	if in.memory != nil {
		if err := in.memory.Allocate("instance:"+in.ID, tree.estimateSize()); err != nil {
			slog.Warn("instance over memory budget", "component", component, "error", err)
		}
	}
	return in, nil
}

// Tree returns a copy of the current render tree.
func (in *Instance) Tree() *VNode {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tree.Clone()
}

// Snapshot returns a copy of the current state snapshot.
func (in *Instance) Snapshot() StateSnapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.snapshot.Clone()
}

// OnStateChange runs one state-change batch through the pipeline: predict
// against the shared template map, fall back to a full re-render and diff
// on a miss. Either way the emitted batch is applied to the instance's own
// tree, so the tree always mirrors what a subscriber that applied every
// batch would hold.
func (in *Instance) OnStateChange(changes map[string]any) (PatchBatch, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, errors.New("instance is closed")
	}

	var tm *TemplateMap
	if in.registry != nil {
		tm, _ = in.registry.Lookup(in.Component)
	}

	batch, err := Predict(tm, in.snapshot, changes)
	if err == nil {
		in.snapshot.Apply(changes)
		result := Apply(in.tree, batch)
		in.recordApply(result)
		if in.metrics != nil {
			in.metrics.IncrementPredictionHit()
		}
		in.accountTree()
		in.emit(batch)
		return batch, nil
	}
	if !errors.Is(err, ErrMiss) {
		return nil, err
	}
	slog.Debug("prediction miss, reconciling",
		"component", in.Component,
		"instance", in.ID,
		"reason", err)
	if in.metrics != nil {
		in.metrics.IncrementPredictionMiss()
	}

	in.snapshot.Apply(changes)
	newTree, err := in.render(in.snapshot)
	if err != nil {
		return nil, fmt.Errorf("fallback render of %q: %w", in.Component, err)
	}
	batch = Diff(in.tree, newTree)
	in.tree = newTree
	if in.metrics != nil {
		in.metrics.IncrementReconciliation()
	}
	in.accountTree()
	in.emit(batch)
	return batch, nil
}

// OnAuthoritativePatches applies a batch computed elsewhere, a hot-reload
// refresh for example, on top of the current tree unconditionally and
// forwards it to the sink.
func (in *Instance) OnAuthoritativePatches(batch PatchBatch) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	result := Apply(in.tree, batch)
	in.recordApply(result)
	in.accountTree()
	in.emit(batch)
}

// Remount discards the current tree and re-renders from the snapshot. Hot
// reload calls this when a template edit changed a region's structural
// shape. The fresh tree is returned for the host to replace wholesale.
func (in *Instance) Remount() (*VNode, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, errors.New("instance is closed")
	}

	tree, err := in.render(in.snapshot)
	if err != nil {
		return nil, fmt.Errorf("remount render of %q: %w", in.Component, err)
	}
	in.tree = tree
	if in.metrics != nil {
		in.metrics.IncrementRemount()
	}
	in.accountTree()
	return tree.Clone(), nil
}

// ApplyReload executes a hot-reload plan against this instance: patches
// when the plan has them, a remount when it demands one.
func (in *Instance) ApplyReload(plan *ReloadPlan) (*VNode, error) {
	if plan.Remount {
		return in.Remount()
	}
	if in.metrics != nil {
		in.metrics.IncrementHotReload()
	}
	in.OnAuthoritativePatches(plan.Patches)
	return nil, nil
}

// Close tears the instance down and releases its memory budget.
func (in *Instance) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	if in.metrics != nil {
		in.metrics.IncrementInstanceClosed()
	}
	if in.memory != nil {
		in.memory.Deallocate("instance:" + in.ID)
	}
}

func (in *Instance) emit(batch PatchBatch) {
	if in.sink != nil && len(batch) > 0 {
		in.sink(batch)
	}
}

func (in *Instance) recordApply(result ApplyResult) {
	if in.metrics != nil {
		in.metrics.RecordPatchApplication(int64(result.Applied), int64(result.Skipped))
	}
}

func (in *Instance) accountTree() {
	if in.memory == nil {
		return
	}
	if err := in.memory.UpdateUsage("instance:"+in.ID, in.tree.estimateSize()); err != nil {
		slog.Warn("instance over memory budget", "component", in.Component, "error", err)
	}
}

func newInstanceID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
