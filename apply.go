package minimact

import (
	"fmt"
	"log/slog"
	"strings"
)

// ApplyResult summarizes one batch application.
type ApplyResult struct {
	Applied int
	Skipped int
}

// Apply mutates a live tree in place by applying an ordered patch batch.
// Each path resolves by child-index traversal. A patch that fails to
// resolve is a recoverable per-patch error: it is skipped and logged, and
// the rest of the batch continues — one bad patch never aborts the
// remainder.
//
// Application is idempotent: replaying a captured batch leaves the tree in
// the same state. Creates skip when an equal node already sits at the
// target, keyed removes verify the key they remove, moves no-op when the
// key already sits at the target index.
func Apply(root *VNode, batch PatchBatch) ApplyResult {
	var result ApplyResult
	for _, p := range batch {
		if err := applyPatch(root, p); err != nil {
			result.Skipped++
			slog.Warn("patch skipped", "patch", p.String(), "error", err)
			continue
		}
		result.Applied++
	}
	return result
}

func applyPatch(root *VNode, p Patch) error {
	switch p.Op {
	case OpUpdateText:
		node, err := root.Resolve(p.Path)
		if err != nil {
			return err
		}
		if !node.IsText() {
			return fmt.Errorf("updateText target at %q is %s, not text", p.Path.String(), node.Kind)
		}
		node.Text = p.Content
		return nil

	case OpUpdateProp:
		node, err := root.Resolve(p.Path)
		if err != nil {
			return err
		}
		if !node.IsElement() {
			return fmt.Errorf("updateProp target at %q is %s, not an element", p.Path.String(), node.Kind)
		}
		applyProp(node, p.Name, p.Value)
		return nil

	case OpCreate:
		return applyCreate(root, p)

	case OpRemove:
		return applyRemove(root, p)

	case OpMove:
		return applyMove(root, p)
	}
	return fmt.Errorf("unknown patch op %q", p.Op)
}

// applyProp sets or removes one attribute. Names of the form "style.width"
// address a single property inside the style attribute; an empty value
// removes the attribute or style property.
func applyProp(node *VNode, name, value string) {
	if prop, isStyle := strings.CutPrefix(name, "style."); isStyle {
		style, _ := node.Attr("style")
		props := parseStyle(style)
		if value == "" {
			delete(props, prop)
		} else {
			props[prop] = value
		}
		if len(props) == 0 {
			node.RemoveAttr("style")
			return
		}
		node.SetAttr("style", renderStyle(props))
		return
	}
	if value == "" {
		node.RemoveAttr(name)
		return
	}
	node.SetAttr(name, value)
}

func applyCreate(root *VNode, p Patch) error {
	parentPath, ok := p.Path.Parent()
	if !ok {
		return fmt.Errorf("create cannot target the root")
	}
	parent, err := root.Resolve(parentPath)
	if err != nil {
		return err
	}
	idx := p.Path.Last()
	if idx < 0 || idx > len(parent.Children) {
		return &PathError{Path: p.Path, Depth: len(p.Path) - 1}
	}
	// Replay guard: an equal node already in place means this create ran.
	if idx < len(parent.Children) && parent.Children[idx].Equal(p.Node) {
		return nil
	}
	node := p.Node.Clone()
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[idx+1:], parent.Children[idx:])
	parent.Children[idx] = node
	return nil
}

func applyRemove(root *VNode, p Patch) error {
	parentPath, ok := p.Path.Parent()
	if !ok {
		return fmt.Errorf("remove cannot target the root")
	}
	parent, err := root.Resolve(parentPath)
	if err != nil {
		return err
	}
	idx := p.Path.Last()
	if idx < 0 || idx >= len(parent.Children) {
		return &PathError{Path: p.Path, Depth: len(p.Path) - 1}
	}
	// Keyed removes verify identity so a replayed batch cannot take out a
	// neighbor that shifted into the index.
	if p.FromKey != "" && parent.Children[idx].Key != p.FromKey {
		return fmt.Errorf("remove at %q expected key %q, found %q", p.Path.String(), p.FromKey, parent.Children[idx].Key)
	}
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	return nil
}

func applyMove(root *VNode, p Patch) error {
	parent, err := root.Resolve(p.Path)
	if err != nil {
		return err
	}
	from := -1
	for i, ch := range parent.Children {
		if ch.Key == p.FromKey {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("move: key %q not found under %q", p.FromKey, p.Path.String())
	}
	if p.ToIndex < 0 || p.ToIndex >= len(parent.Children) {
		return fmt.Errorf("move: target index %d out of range under %q", p.ToIndex, p.Path.String())
	}
	if from == p.ToIndex {
		return nil
	}
	node := parent.Children[from]
	parent.Children = append(parent.Children[:from], parent.Children[from+1:]...)
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[p.ToIndex+1:], parent.Children[p.ToIndex:])
	parent.Children[p.ToIndex] = node
	return nil
}
