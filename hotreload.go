package minimact

import (
	"log/slog"
	"reflect"
	"sort"
)

// ReloadPlan is the outcome of comparing two template map versions for a
// live instance. Either the edit is expressible as patches against the
// instance's current state, or the shape changed and the instance must be
// torn down and re-rendered from scratch.
type ReloadPlan struct {
	Component   string
	FromVersion string
	ToVersion   string

	// Remount reports that at least one region changed structural shape.
	// Patches is empty when Remount is set.
	Remount bool
	Reason  string

	Patches PatchBatch
}

// DiffTemplateMaps compares a component's old and new template maps and
// plans how to bring a running instance with the given state forward. Edits
// confined to template content, text or attribute values, branch bodies,
// loop items, become patches rendered against the instance's current state.
// Any entry added, dropped or moved across structural kinds forces a
// remount.
func DiffTemplateMaps(old, new *TemplateMap, snapshot StateSnapshot) *ReloadPlan {
	plan := &ReloadPlan{Component: new.Component, ToVersion: new.Version}
	if old == nil {
		plan.Remount = true
		plan.Reason = "no previous template map"
		return plan
	}
	plan.FromVersion = old.Version

	keys := unionPaths(old, new)
	sc := newScope(snapshot)

	for _, key := range keys {
		oldT, hadOld := old.Get(key)
		newT, hasNew := new.Get(key)
		switch {
		case !hadOld:
			return remount(plan, "region added at "+key)
		case !hasNew:
			return remount(plan, "region removed at "+key)
		case reflect.DeepEqual(oldT, newT):
			continue
		case oldT.structuralKind() != newT.structuralKind():
			return remount(plan, "region at "+key+" changed from "+oldT.structuralKind()+" to "+newT.structuralKind())
		}

		path, target, err := splitEntryKey(key)
		if err != nil {
			return remount(plan, "unparseable template key "+key)
		}

		switch newT.structuralKind() {
		case "text":
			content, err := newT.renderString(sc)
			if err != nil {
				return remount(plan, "cannot render edited region at "+key+" against current state")
			}
			if target == "" {
				plan.Patches = append(plan.Patches, UpdateTextPatch(path, content))
			} else {
				plan.Patches = append(plan.Patches, UpdatePropPatch(path, target, content))
			}
		case string(TemplateOpaque):
			// An opaque region changed in ways we cannot model.
			return remount(plan, "opaque region edited at "+key)
		default:
			oldNode, errOld := renderTemplate(oldT, sc)
			newNode, errNew := renderTemplate(newT, sc)
			if errOld != nil || errNew != nil {
				return remount(plan, "cannot render edited region at "+key+" against current state")
			}
			diffNode(oldNode, newNode, path, &plan.Patches)
		}
	}

	slog.Debug("hot reload planned",
		"component", plan.Component,
		"from", plan.FromVersion,
		"to", plan.ToVersion,
		"patches", len(plan.Patches))
	return plan
}

func remount(plan *ReloadPlan, reason string) *ReloadPlan {
	plan.Remount = true
	plan.Reason = reason
	plan.Patches = nil
	slog.Debug("hot reload requires remount", "component", plan.Component, "reason", reason)
	return plan
}

func unionPaths(old, new *TemplateMap) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, p := range old.Paths() {
		if !seen[p] {
			seen[p] = true
			keys = append(keys, p)
		}
	}
	for _, p := range new.Paths() {
		if !seen[p] {
			seen[p] = true
			keys = append(keys, p)
		}
	}
	sort.Strings(keys)
	return keys
}
