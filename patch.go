package minimact

import (
	"fmt"
	"strings"
)

// PatchOp identifies the mutation a Patch performs.
type PatchOp string

const (
	// OpCreate inserts Node at Path (the last path segment is the insertion
	// index within the parent's children).
	OpCreate PatchOp = "create"
	// OpRemove deletes the node at Path.
	OpRemove PatchOp = "remove"
	// OpUpdateText replaces the content of the text node at Path.
	OpUpdateText PatchOp = "updateText"
	// OpUpdateProp sets one attribute on the element at Path. A Name of the
	// form "style.width" addresses a single property inside the style
	// attribute. An empty Value removes the attribute or style property.
	OpUpdateProp PatchOp = "updateProp"
	// OpMove relocates the keyed child FromKey of the element at Path to
	// child index ToIndex.
	OpMove PatchOp = "move"
)

// Patch is one atomic tree mutation. It is the single output vocabulary of
// both the predictor and the reconciler, and the single input vocabulary of
// the application engine.
type Patch struct {
	Op      PatchOp `json:"type"`
	Path    Path    `json:"path"`
	Node    *VNode  `json:"node,omitempty"`
	Content string  `json:"content,omitempty"`
	Name    string  `json:"name,omitempty"`
	Value   string  `json:"value,omitempty"`
	FromKey string  `json:"fromKey,omitempty"`
	ToIndex int     `json:"toIndex,omitempty"`
}

// CreatePatch builds an OpCreate patch.
func CreatePatch(path Path, node *VNode) Patch {
	return Patch{Op: OpCreate, Path: path, Node: node}
}

// RemovePatch builds an OpRemove patch.
func RemovePatch(path Path) Patch {
	return Patch{Op: OpRemove, Path: path}
}

// UpdateTextPatch builds an OpUpdateText patch.
func UpdateTextPatch(path Path, content string) Patch {
	return Patch{Op: OpUpdateText, Path: path, Content: content}
}

// UpdatePropPatch builds an OpUpdateProp patch.
func UpdatePropPatch(path Path, name, value string) Patch {
	return Patch{Op: OpUpdateProp, Path: path, Name: name, Value: value}
}

// MovePatch builds an OpMove patch.
func MovePatch(parent Path, fromKey string, toIndex int) Patch {
	return Patch{Op: OpMove, Path: parent, FromKey: fromKey, ToIndex: toIndex}
}

// String renders a compact human-readable form for logs and test failures.
func (p Patch) String() string {
	switch p.Op {
	case OpCreate:
		return fmt.Sprintf("Create(%s)", p.Path)
	case OpRemove:
		return fmt.Sprintf("Remove(%s)", p.Path)
	case OpUpdateText:
		return fmt.Sprintf("UpdateText(%s, %q)", p.Path, p.Content)
	case OpUpdateProp:
		return fmt.Sprintf("UpdateProp(%s, %s=%q)", p.Path, p.Name, p.Value)
	case OpMove:
		return fmt.Sprintf("Move(%s, key=%s, to=%d)", p.Path, p.FromKey, p.ToIndex)
	}
	return fmt.Sprintf("Patch(%s)", p.Op)
}

// PatchBatch is an ordered patch list produced by one update cycle.
type PatchBatch []Patch

// String joins the batch for diagnostics.
func (b PatchBatch) String() string {
	parts := make([]string, len(b))
	for i, p := range b {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// CountOp returns how many patches in the batch carry the given op.
func (b PatchBatch) CountOp(op PatchOp) int {
	count := 0
	for _, p := range b {
		if p.Op == op {
			count++
		}
	}
	return count
}
