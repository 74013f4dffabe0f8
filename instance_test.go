package minimact

import (
	"errors"
	"testing"

	"github.com/minimact/minimact-sub002/internal/memory"
	"github.com/minimact/minimact-sub002/internal/metrics"
)

func newTodoInstance(t *testing.T, opts ...InstanceOption) (*Instance, *Registry) {
	t.Helper()
	r := NewRegistry()
	r.Put(mustExtract(t, todoSource).Map)
	in, err := NewInstance("Todo", r, SourceRenderer(mustParse(t, todoSource)), todoSnapshot(), opts...)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	t.Cleanup(in.Close)
	return in, r
}

func TestInstancePredictedChange(t *testing.T) {
	collector := metrics.NewCollector()
	var emitted []PatchBatch
	in, _ := newTodoInstance(t,
		WithInstanceMetrics(collector),
		WithPatchSink(func(batch PatchBatch) { emitted = append(emitted, batch) }))

	batch, err := in.OnStateChange(map[string]any{"title": "Renamed"})
	if err != nil {
		t.Fatalf("OnStateChange: %v", err)
	}
	if len(batch) != 1 || batch[0].Op != OpUpdateText {
		t.Fatalf("batch = %s", batch)
	}

	m := collector.GetMetrics()
	if m.PredictionHits != 1 || m.PredictionMisses != 0 || m.Reconciliations != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if len(emitted) != 1 {
		t.Fatalf("emitted = %v", emitted)
	}

	// The instance's own tree took the patch too.
	node, err := in.Tree().Resolve(mustPath(t, "0.0.0"))
	if err != nil || node.Text != "Renamed" {
		t.Errorf("tree text = %+v, %v", node, err)
	}
	if got := in.Snapshot()["title"]; got != "Renamed" {
		t.Errorf("snapshot title = %v", got)
	}
}

func TestInstanceMissFallsBackToReconcile(t *testing.T) {
	collector := metrics.NewCollector()
	in, _ := newTodoInstance(t, WithInstanceMetrics(collector))

	// No template owns this key, so the predictor refuses the batch and the
	// full render pipeline takes over. The change is opaque to templates but
	// must still land in the snapshot.
	batch, err := in.OnStateChange(map[string]any{"untracked": 1})
	if err != nil {
		t.Fatalf("OnStateChange: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("batch = %s", batch)
	}

	m := collector.GetMetrics()
	if m.PredictionMisses != 1 || m.Reconciliations != 1 || m.PredictionHits != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if got := in.Snapshot()["untracked"]; got != 1 {
		t.Errorf("snapshot untracked = %v", got)
	}
}

func TestInstanceWithoutRegistryAlwaysReconciles(t *testing.T) {
	collector := metrics.NewCollector()
	in, err := NewInstance("Todo", nil, SourceRenderer(mustParse(t, todoSource)), todoSnapshot(),
		WithInstanceMetrics(collector))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	defer in.Close()

	if _, err := in.OnStateChange(map[string]any{"title": "x"}); err != nil {
		t.Fatalf("OnStateChange: %v", err)
	}
	if m := collector.GetMetrics(); m.PredictionMisses != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestInstanceTreeMatchesFullRenderAcrossJourney(t *testing.T) {
	in, _ := newTodoInstance(t)
	regions := mustParse(t, todoSource)

	steps := []map[string]any{
		{"title": "Day two"},
		{"todos": []any{
			map[string]any{"id": "b", "text": "ship"},
			map[string]any{"id": "a", "text": "write tests"},
			map[string]any{"id": "c", "text": "rest"},
		}},
		{"showDone": false},
		{"todos.1.text": "write better tests"},
		{"count": 9001},
		{"untracked": true},
	}
	for i, changes := range steps {
		if _, err := in.OnStateChange(changes); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		want, err := RenderSource(regions, in.Snapshot())
		if err != nil {
			t.Fatalf("step %d render: %v", i, err)
		}
		if in.Tree().Fingerprint() != want.Fingerprint() {
			t.Fatalf("step %d: tree diverged on %v\ngot:  %s\nwant: %s",
				i, changes, in.Tree().Render(), want.Render())
		}
	}
}

func TestInstancePredictedChangeUpdatesMemoryAccounting(t *testing.T) {
	manager := memory.NewManager(memory.DefaultConfig())
	in, _ := newTodoInstance(t, WithInstanceMemory(manager))

	before, ok := manager.GetOwnerUsage("instance:" + in.ID)
	if !ok {
		t.Fatal("instance not registered with the memory manager")
	}

	// A predicted hit mutates the tree, so the accounted size must track it
	// just like the reconcile path does.
	if _, err := in.OnStateChange(map[string]any{"title": "a much longer title than before"}); err != nil {
		t.Fatalf("OnStateChange: %v", err)
	}
	after, _ := manager.GetOwnerUsage("instance:" + in.ID)
	if after == before {
		t.Errorf("usage stayed %d after the tree grew", after)
	}
}

func TestInstanceAuthoritativePatches(t *testing.T) {
	var emitted []PatchBatch
	in, _ := newTodoInstance(t, WithPatchSink(func(batch PatchBatch) { emitted = append(emitted, batch) }))

	in.OnAuthoritativePatches(PatchBatch{UpdateTextPatch(mustPath(t, "0.0.0"), "from reload")})
	node, err := in.Tree().Resolve(mustPath(t, "0.0.0"))
	if err != nil || node.Text != "from reload" {
		t.Errorf("tree = %+v, %v", node, err)
	}
	if len(emitted) != 1 {
		t.Errorf("emitted = %v", emitted)
	}
}

func TestInstanceEmptyBatchNotEmitted(t *testing.T) {
	emitted := 0
	in, _ := newTodoInstance(t, WithPatchSink(func(PatchBatch) { emitted++ }))

	if _, err := in.OnStateChange(map[string]any{"title": "Todos"}); err != nil {
		t.Fatalf("OnStateChange: %v", err)
	}
	if emitted != 0 {
		t.Errorf("no-op change emitted %d batches", emitted)
	}
}

func TestInstanceHotReloadPatchPath(t *testing.T) {
	collector := metrics.NewCollector()
	in, r := newTodoInstance(t, WithInstanceMetrics(collector))

	edited := mustExtract(t, todoSource).Map
	// Simulate an edit by planning against an altered copy: swap the title
	// template for a fixed string.
	tm2 := mustExtract(t, `<div class="app"><h1>pinned</h1><p>Count: {{count|number}}</p>{{if showDone}}<span>shown</span>{{else}}<em>hidden</em>{{end}}<ul>{{range todos as todo key todo.id}}<li>{{todo.text}}</li>{{end}}</ul></div>`).Map
	tm2.Version = "2"

	plan := DiffTemplateMaps(edited, tm2, in.Snapshot())
	if plan.Remount {
		t.Fatalf("remount: %s", plan.Reason)
	}
	r.Swap(tm2)
	if _, err := in.ApplyReload(plan); err != nil {
		t.Fatalf("ApplyReload: %v", err)
	}

	node, err := in.Tree().Resolve(mustPath(t, "0.0.0"))
	if err != nil || node.Text != "pinned" {
		t.Errorf("tree = %+v, %v", node, err)
	}
	if m := collector.GetMetrics(); m.HotReloads != 1 || m.Remounts != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestInstanceHotReloadRemountPath(t *testing.T) {
	collector := metrics.NewCollector()
	in, _ := newTodoInstance(t, WithInstanceMetrics(collector))

	plan := &ReloadPlan{Component: "Todo", Remount: true, Reason: "shape changed"}
	tree, err := in.ApplyReload(plan)
	if err != nil {
		t.Fatalf("ApplyReload: %v", err)
	}
	if tree == nil {
		t.Fatal("remount returned no tree")
	}
	if m := collector.GetMetrics(); m.Remounts != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestInstanceClosedRejectsChanges(t *testing.T) {
	in, _ := newTodoInstance(t)
	in.Close()
	if _, err := in.OnStateChange(map[string]any{"title": "x"}); err == nil {
		t.Fatal("closed instance accepted a state change")
	}
	in.Close() // second close is a no-op
}

func TestInstanceRequiresRenderFunc(t *testing.T) {
	_, err := NewInstance("Todo", nil, nil, StateSnapshot{})
	if err == nil {
		t.Fatal("nil render function should be rejected")
	}
}

func TestInstanceRenderErrorSurfaces(t *testing.T) {
	boom := errors.New("render exploded")
	calls := 0
	render := func(snapshot StateSnapshot) (*VNode, error) {
		calls++
		if calls > 1 {
			return nil, boom
		}
		return Fragment(Text("ok")), nil
	}
	in, err := NewInstance("Todo", nil, render, StateSnapshot{"x": 1})
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	defer in.Close()

	if _, err := in.OnStateChange(map[string]any{"x": 2}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want render error", err)
	}
}
