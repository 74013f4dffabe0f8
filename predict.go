package minimact

import (
	"log/slog"
	"sort"
)

// Predict attempts to compute the same patch batch a full re-render plus
// Diff would produce for a state-change batch, touching only the template
// entries whose binding sets intersect the changed keys. The snapshot is
// the pre-change state; changes carry the new values.
//
// On any condition that could make prediction unsafe — a changed key with
// no owning template, a touched Opaque region, a binding that fails to
// resolve — the whole batch is a miss (an error wrapping ErrMiss) and the
// caller falls back to reconciliation. Prediction is never partial.
func Predict(tm *TemplateMap, snapshot StateSnapshot, changes map[string]any) (PatchBatch, error) {
	if tm == nil {
		return nil, missf("no template map")
	}

	touched := make(map[string]bool)
	for key := range changes {
		entries := tm.touchedBy(key)
		if len(entries) == 0 {
			return nil, missf("state key %q has no owning template", key)
		}
		for _, e := range entries {
			touched[e] = true
		}
	}

	keys := make([]string, 0, len(touched))
	for e := range touched {
		keys = append(keys, e)
	}
	sort.Strings(keys)

	for _, key := range keys {
		t, _ := tm.Get(key)
		if t.isOpaque() {
			return nil, missf("template at %q is opaque", key)
		}
	}

	oldScope := newScope(snapshot)
	next := snapshot.Clone()
	next.Apply(changes)
	newScope := newScope(next)

	var patches PatchBatch
	for _, key := range keys {
		t, _ := tm.Get(key)
		path, target, err := splitEntryKey(key)
		if err != nil {
			return nil, missf("bad template key %q: %v", key, err)
		}
		if err := predictEntry(t, path, target, oldScope, newScope, &patches); err != nil {
			slog.Debug("prediction fell through", "component", tm.Component, "entry", key, "error", err)
			return nil, missf("entry %q: %v", key, err)
		}
	}
	return patches, nil
}

// predictEntry emits the patches for one touched template entry.
func predictEntry(t *Template, path Path, target string, oldScope, newScope *scope, patches *PatchBatch) error {
	switch t.Kind {
	case TemplateStatic:
		// Zero bindings; nothing a state change can affect.
		return nil

	case TemplateDynamic:
		oldContent, err := t.renderString(oldScope)
		if err != nil {
			return err
		}
		newContent, err := t.renderString(newScope)
		if err != nil {
			return err
		}
		if oldContent == newContent {
			return nil
		}
		if target == "" {
			*patches = append(*patches, UpdateTextPatch(path, newContent))
		} else {
			*patches = append(*patches, UpdatePropPatch(path, target, newContent))
		}
		return nil

	case TemplateConditional, TemplateLoop:
		// Localized re-render of just this region under both states, then a
		// scoped diff rebased at the region's path. Conditional branch
		// switches come out as Remove+Create, loop reorders as keyed moves,
		// in-branch and in-item value changes as recursive updates.
		oldNode, err := renderTemplate(t, oldScope)
		if err != nil {
			return err
		}
		newNode, err := renderTemplate(t, newScope)
		if err != nil {
			return err
		}
		diffNode(oldNode, newNode, path, patches)
		return nil
	}
	return missf("template kind %q is not predictable", t.Kind)
}
