package minimact

import "testing"

func TestSnapshotGet(t *testing.T) {
	s := StateSnapshot{
		"count": 5,
		"cart":  map[string]any{"total": 12.5, "items": []any{map[string]any{"sku": "x1"}}},
	}

	cases := []struct {
		binding string
		want    any
		ok      bool
	}{
		{"count", 5, true},
		{"cart.total", 12.5, true},
		{"cart.items.0.sku", "x1", true},
		{"cart.missing", nil, false},
		{"cart.items.3.sku", nil, false},
		{"cart.total.deeper", nil, false},
	}
	for _, tc := range cases {
		got, ok := s.Get(tc.binding)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("Get(%q) = %v, %v; want %v, %v", tc.binding, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSnapshotSetNested(t *testing.T) {
	s := StateSnapshot{}
	s.Set("user.address.city", "Oslo")
	if v, ok := s.Get("user.address.city"); !ok || v != "Oslo" {
		t.Fatalf("Get after Set = %v, %v", v, ok)
	}
}

func TestSnapshotSetSliceElement(t *testing.T) {
	s := StateSnapshot{
		"todos": []any{
			map[string]any{"id": "a", "text": "one"},
			map[string]any{"id": "b", "text": "two"},
		},
	}
	s.Set("todos.1.text", "edited")

	if v, _ := s.Get("todos.1.text"); v != "edited" {
		t.Fatalf("slice element not edited: %v", v)
	}
	// The array must survive a nested write.
	if arr, ok := s["todos"].([]any); !ok || len(arr) != 2 {
		t.Fatalf("todos no longer an array: %T", s["todos"])
	}
	// Out-of-range writes drop instead of corrupting.
	s.Set("todos.9.text", "nope")
	if arr := s["todos"].([]any); len(arr) != 2 {
		t.Fatal("out-of-range write changed the array")
	}
}

func TestSnapshotCloneIsolation(t *testing.T) {
	s := StateSnapshot{
		"todos": []any{map[string]any{"id": "a", "text": "one"}},
	}
	c := s.Clone()
	c.Set("todos.0.text", "changed")
	if v, _ := s.Get("todos.0.text"); v != "one" {
		t.Fatal("clone mutation leaked into the original")
	}
}

func TestSnapshotApply(t *testing.T) {
	s := StateSnapshot{"count": 1, "title": "old"}
	s.Apply(map[string]any{"count": 2, "user.name": "amy"})
	if v, _ := s.Get("count"); v != 2 {
		t.Error("count not applied")
	}
	if v, _ := s.Get("user.name"); v != "amy" {
		t.Error("nested change not applied")
	}
	if v, _ := s.Get("title"); v != "old" {
		t.Error("untouched key changed")
	}
}

func TestScopeLoopVariables(t *testing.T) {
	snapshot := StateSnapshot{"todos": []any{}, "label": "outer"}
	sc := newScope(snapshot)
	item := sc.child(map[string]any{"todo": map[string]any{"id": "a", "done": true}, "i": 0})

	if v, ok := item.resolve("todo.id"); !ok || v != "a" {
		t.Errorf("todo.id = %v, %v", v, ok)
	}
	if v, ok := item.resolve("i"); !ok || v != 0 {
		t.Errorf("i = %v, %v", v, ok)
	}
	// Loop scope falls through to the snapshot.
	if v, ok := item.resolve("label"); !ok || v != "outer" {
		t.Errorf("label = %v, %v", v, ok)
	}
	// Nested scopes shadow outer variables.
	inner := item.child(map[string]any{"todo": map[string]any{"id": "z"}})
	if v, _ := inner.resolve("todo.id"); v != "z" {
		t.Errorf("shadowed todo.id = %v", v)
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"x", true},
		{0.0, false},
		{1.5, true},
		{0, false},
		{3, true},
		{[]any{}, false},
		{[]any{1}, true},
		{map[string]any{}, false},
		{map[string]any{"k": 1}, true},
	}
	for _, tc := range cases {
		if got := truthy(tc.v); got != tc.want {
			t.Errorf("truthy(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestStringifyValue(t *testing.T) {
	cases := []struct {
		v    any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{3.0, "3"},
		{3.25, "3.25"},
		{7, "7"},
	}
	for _, tc := range cases {
		if got := stringifyValue(tc.v); got != tc.want {
			t.Errorf("stringifyValue(%v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}
