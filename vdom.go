package minimact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NodeKind discriminates the render tree node variants.
type NodeKind string

const (
	KindElement  NodeKind = "element"
	KindText     NodeKind = "text"
	KindFragment NodeKind = "fragment"
)

// Attr is a single named attribute on an element. Attribute order is
// preserved because it is part of the rendered output.
type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// VNode is a node in a concrete render tree: an element with ordered
// attributes and children, a text node, or a fragment (ordered children
// without a wrapper). Sibling order is significant; structural paths are
// child-index sequences into this tree.
type VNode struct {
	Kind     NodeKind `json:"type"`
	Tag      string   `json:"tag,omitempty"`
	Attrs    []Attr   `json:"attrs,omitempty"`
	Text     string   `json:"text,omitempty"`
	Children []*VNode `json:"children,omitempty"`

	// Key is the stable identity used for loop reconciliation. Empty for
	// unkeyed nodes.
	Key string `json:"key,omitempty"`
}

// Element creates an element node.
func Element(tag string, attrs []Attr, children ...*VNode) *VNode {
	return &VNode{Kind: KindElement, Tag: tag, Attrs: attrs, Children: children}
}

// KeyedElement creates an element node with a stable key.
func KeyedElement(tag, key string, attrs []Attr, children ...*VNode) *VNode {
	return &VNode{Kind: KindElement, Tag: tag, Key: key, Attrs: attrs, Children: children}
}

// Text creates a text node.
func Text(content string) *VNode {
	return &VNode{Kind: KindText, Text: content}
}

// Fragment creates a fragment node wrapping ordered children.
func Fragment(children ...*VNode) *VNode {
	return &VNode{Kind: KindFragment, Children: children}
}

// IsText reports whether the node is a text node.
func (n *VNode) IsText() bool { return n != nil && n.Kind == KindText }

// IsElement reports whether the node is an element node.
func (n *VNode) IsElement() bool { return n != nil && n.Kind == KindElement }

// Attr returns the value of the named attribute and whether it is present.
func (n *VNode) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets the named attribute in place, preserving the position of an
// existing attribute and appending a new one.
func (n *VNode) SetAttr(name, value string) {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes the named attribute if present.
func (n *VNode) RemoveAttr(name string) {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// ChildCount returns the number of children.
func (n *VNode) ChildCount() int {
	if n == nil {
		return 0
	}
	return len(n.Children)
}

// Clone returns a deep copy of the node and its subtree.
func (n *VNode) Clone() *VNode {
	if n == nil {
		return nil
	}
	c := &VNode{Kind: n.Kind, Tag: n.Tag, Text: n.Text, Key: n.Key}
	if n.Attrs != nil {
		c.Attrs = make([]Attr, len(n.Attrs))
		copy(c.Attrs, n.Attrs)
	}
	if n.Children != nil {
		c.Children = make([]*VNode, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Equal reports deep equality of two subtrees, including attribute order.
func (n *VNode) Equal(o *VNode) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Kind != o.Kind || n.Tag != o.Tag || n.Text != o.Text || n.Key != o.Key {
		return false
	}
	if len(n.Attrs) != len(o.Attrs) || len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Attrs {
		if n.Attrs[i] != o.Attrs[i] {
			return false
		}
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Resolve walks the subtree by child indices and returns the addressed node.
func (n *VNode) Resolve(path Path) (*VNode, error) {
	cur := n
	for depth, idx := range path {
		if cur == nil || idx < 0 || idx >= len(cur.Children) {
			return nil, &PathError{Path: path, Depth: depth}
		}
		cur = cur.Children[idx]
	}
	return cur, nil
}

// countNodes returns the total node count of the subtree, used for tree
// limit checks and memory estimates.
func (n *VNode) countNodes() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, ch := range n.Children {
		total += ch.countNodes()
	}
	return total
}

// depth returns the maximum depth of the subtree.
func (n *VNode) depth() int {
	if n == nil {
		return 0
	}
	max := 0
	for _, ch := range n.Children {
		if d := ch.depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// CheckLimits verifies the subtree stays within the configured depth and
// node-count caps. Hosts run this on freshly rendered trees before mounting
// them; a violation means the render output cannot be safely addressed.
func (n *VNode) CheckLimits(maxDepth, maxNodes int) error {
	if d := n.depth(); maxDepth > 0 && d > maxDepth {
		return fmt.Errorf("tree depth %d exceeds limit %d", d, maxDepth)
	}
	if c := n.countNodes(); maxNodes > 0 && c > maxNodes {
		return fmt.Errorf("tree has %d nodes, exceeds limit %d", c, maxNodes)
	}
	return nil
}

// estimateSize approximates the in-memory footprint of the subtree in bytes.
func (n *VNode) estimateSize() int64 {
	if n == nil {
		return 0
	}
	size := int64(64) // struct overhead
	size += int64(len(n.Tag) + len(n.Text) + len(n.Key))
	for _, a := range n.Attrs {
		size += int64(len(a.Name) + len(a.Value) + 16)
	}
	for _, ch := range n.Children {
		size += ch.estimateSize()
	}
	return size
}

// Render writes the subtree as HTML-ish markup. Used for diagnostics and for
// byte-for-byte tree comparison in tests.
func (n *VNode) Render() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *VNode) render(b *strings.Builder) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindText:
		b.WriteString(n.Text)
	case KindFragment:
		for _, ch := range n.Children {
			ch.render(b)
		}
	case KindElement:
		b.WriteString("<")
		b.WriteString(n.Tag)
		for _, a := range n.Attrs {
			fmt.Fprintf(b, " %s=%q", a.Name, a.Value)
		}
		b.WriteString(">")
		for _, ch := range n.Children {
			ch.render(b)
		}
		b.WriteString("</")
		b.WriteString(n.Tag)
		b.WriteString(">")
	}
}

// Fingerprint returns a canonical JSON encoding of the subtree, suitable for
// equality assertions across independently produced trees.
func (n *VNode) Fingerprint() string {
	data, err := json.Marshal(n)
	if err != nil {
		return ""
	}
	return string(data)
}

// StyleValue returns the value of one property inside a style attribute,
// e.g. StyleValue("width") on style="width: 40%; color: red" returns "40%".
func (n *VNode) StyleValue(prop string) (string, bool) {
	style, ok := n.Attr("style")
	if !ok {
		return "", false
	}
	props := parseStyle(style)
	v, ok := props[prop]
	return v, ok
}

// parseStyle splits an inline style attribute into property/value pairs.
func parseStyle(style string) map[string]string {
	props := make(map[string]string)
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		name, value, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		props[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return props
}

// renderStyle joins property/value pairs back into an inline style string
// with deterministic property order.
func renderStyle(props map[string]string) string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+props[name])
	}
	return strings.Join(parts, "; ")
}
