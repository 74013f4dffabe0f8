package minimact

// Diff compares two concrete render trees and produces the ordered patch
// batch that transforms the old tree into the new one. It is the fallback
// for every prediction miss, the first-mount path, and the oracle the
// predictor must stay behaviorally equivalent to.
//
// Nodes are matched by tag and stable key when one is declared, by position
// otherwise. Patches address nodes with the same structural paths the
// predictor uses, so the application engine has a single consumer contract.
func Diff(old, new *VNode) PatchBatch {
	var patches PatchBatch
	diffNode(old, new, RootPath(), &patches)
	return patches
}

func diffNode(old, new *VNode, path Path, patches *PatchBatch) {
	if old == nil && new == nil {
		return
	}
	if old == nil {
		*patches = append(*patches, CreatePatch(path, new.Clone()))
		return
	}
	if new == nil {
		*patches = append(*patches, RemovePatch(path))
		return
	}
	if old.Equal(new) {
		return
	}

	// Different variants or different tags replace the whole subtree.
	if old.Kind != new.Kind || old.Tag != new.Tag {
		*patches = append(*patches, RemovePatch(path), CreatePatch(path, new.Clone()))
		return
	}

	switch old.Kind {
	case KindText:
		if old.Text != new.Text {
			*patches = append(*patches, UpdateTextPatch(path, new.Text))
		}

	case KindElement:
		diffAttrs(old, new, path, patches)
		diffChildren(old, new, path, patches)

	case KindFragment:
		diffChildren(old, new, path, patches)
	}
}

// diffAttrs emits one UpdateProp per changed attribute. Style attributes
// are diffed per property so a single width change does not rewrite the
// whole declaration list.
func diffAttrs(old, new *VNode, path Path, patches *PatchBatch) {
	oldStyle, oldHasStyle := old.Attr("style")
	newStyle, newHasStyle := new.Attr("style")
	if oldHasStyle && newHasStyle && oldStyle != newStyle {
		oldProps := parseStyle(oldStyle)
		newProps := parseStyle(newStyle)
		for prop, value := range newProps {
			if oldProps[prop] != value {
				*patches = append(*patches, UpdatePropPatch(path, "style."+prop, value))
			}
		}
		for prop := range oldProps {
			if _, kept := newProps[prop]; !kept {
				*patches = append(*patches, UpdatePropPatch(path, "style."+prop, ""))
			}
		}
	}

	for _, a := range new.Attrs {
		if a.Name == "style" && oldHasStyle && newHasStyle {
			continue
		}
		if oldValue, ok := old.Attr(a.Name); !ok || oldValue != a.Value {
			*patches = append(*patches, UpdatePropPatch(path, a.Name, a.Value))
		}
	}
	for _, a := range old.Attrs {
		if a.Name == "style" && newHasStyle {
			continue
		}
		if _, kept := new.Attr(a.Name); !kept {
			// Empty value removes the attribute.
			*patches = append(*patches, UpdatePropPatch(path, a.Name, ""))
		}
	}
}

func diffChildren(old, new *VNode, path Path, patches *PatchBatch) {
	// Keyed reconciliation requires every child to carry a key; a mixed
	// list degrades to positional matching.
	if allKeyed(old) && allKeyed(new) && (len(old.Children) > 0 || len(new.Children) > 0) {
		diffKeyedChildren(old.Children, new.Children, path, patches)
		return
	}
	diffPositionalChildren(old.Children, new.Children, path, patches)
}

func allKeyed(n *VNode) bool {
	for _, ch := range n.Children {
		if ch.Key == "" {
			return false
		}
	}
	return true
}

// diffPositionalChildren pairs children by index. Extra old children are
// removed in descending order so earlier removals do not shift the indices
// of later ones; extra new children are created in ascending order.
func diffPositionalChildren(oldChildren, newChildren []*VNode, path Path, patches *PatchBatch) {
	common := len(oldChildren)
	if len(newChildren) < common {
		common = len(newChildren)
	}
	for i := len(oldChildren) - 1; i >= common; i-- {
		*patches = append(*patches, RemovePatch(path.Child(i)))
	}
	for i := 0; i < common; i++ {
		diffNode(oldChildren[i], newChildren[i], path.Child(i), patches)
	}
	for i := common; i < len(newChildren); i++ {
		*patches = append(*patches, CreatePatch(path.Child(i), newChildren[i].Clone()))
	}
}

// diffKeyedChildren matches children by stable key, never by position.
// Emission order is removes (descending), creates (ascending), moves
// (minimal, computed from the longest increasing subsequence over the
// post-create child list), then recursion into matched pairs at their new
// paths. The applier processes the batch in order, so each phase sees the
// child list the previous phase produced. Creates come before moves so that
// every move target is an index in the FINAL list; on a replayed batch the
// create equality guard fires and every move finds its key already at the
// target, keeping application idempotent.
func diffKeyedChildren(oldChildren, newChildren []*VNode, path Path, patches *PatchBatch) {
	oldIndexByKey := make(map[string]int, len(oldChildren))
	for i, ch := range oldChildren {
		if ch.Key != "" {
			oldIndexByKey[ch.Key] = i
		}
	}
	newIndexByKey := make(map[string]int, len(newChildren))
	for i, ch := range newChildren {
		if ch.Key != "" {
			newIndexByKey[ch.Key] = i
		}
	}

	// Vanished keys, descending old index. The key rides along so the
	// applier can verify it removes the node it was aimed at.
	for i := len(oldChildren) - 1; i >= 0; i-- {
		key := oldChildren[i].Key
		if key == "" {
			continue
		}
		if _, kept := newIndexByKey[key]; !kept {
			remove := RemovePatch(path.Child(i))
			remove.FromKey = key
			*patches = append(*patches, remove)
		}
	}

	// New keys, ascending new index. Each insertion index is valid at
	// application time: every survivor is still present and every earlier
	// new key already sits left of it.
	for i, ch := range newChildren {
		if ch.Key == "" {
			continue
		}
		if _, existed := oldIndexByKey[ch.Key]; !existed {
			*patches = append(*patches, CreatePatch(path.Child(i), ch.Clone()))
		}
	}

	// Replay the create phase on the survivor list to get the order the
	// applier sees when the moves run, then reorder it into the target.
	var current []string
	for _, ch := range oldChildren {
		if ch.Key == "" {
			continue
		}
		if _, kept := newIndexByKey[ch.Key]; kept {
			current = append(current, ch.Key)
		}
	}
	for i, ch := range newChildren {
		if ch.Key == "" {
			continue
		}
		if _, existed := oldIndexByKey[ch.Key]; !existed {
			current = append(current, "")
			copy(current[i+1:], current[i:])
			current[i] = ch.Key
		}
	}
	finalOrder := make([]string, 0, len(newChildren))
	for _, ch := range newChildren {
		if ch.Key != "" {
			finalOrder = append(finalOrder, ch.Key)
		}
	}
	appendMoves(path, current, finalOrder, patches)

	// Value updates inside matched keys, addressed at their new positions.
	for i, ch := range newChildren {
		if ch.Key == "" {
			continue
		}
		if oldIdx, existed := oldIndexByKey[ch.Key]; existed {
			diffNode(oldChildren[oldIdx], ch, path.Child(i), patches)
		}
	}
}

// appendMoves emits the minimal move set that reorders oldOrder into
// newOrder: keys on the longest increasing subsequence of old positions
// stay put, everything else moves once. O(moved elements), not O(n).
func appendMoves(path Path, oldOrder, newOrder []string, patches *PatchBatch) {
	if len(oldOrder) != len(newOrder) {
		return
	}
	oldPos := make(map[string]int, len(oldOrder))
	for i, key := range oldOrder {
		oldPos[key] = i
	}
	positions := make([]int, len(newOrder))
	for i, key := range newOrder {
		positions[i] = oldPos[key]
	}

	stable := longestIncreasingSet(positions)
	for i, key := range newOrder {
		if !stable[i] {
			*patches = append(*patches, MovePatch(path, key, i))
		}
	}
}

// longestIncreasingSet marks the indices of newOrder that participate in a
// longest increasing subsequence of positions.
func longestIncreasingSet(positions []int) []bool {
	n := len(positions)
	stable := make([]bool, n)
	if n == 0 {
		return stable
	}

	// Patience sorting with predecessor links.
	tails := make([]int, 0, n) // indices into positions
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}
	for i, p := range positions {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if positions[tails[mid]] < p {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}
	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		stable[i] = true
	}
	return stable
}
