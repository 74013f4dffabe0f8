package minimact

import (
	"fmt"
	"log/slog"
	"sort"
)

// RenderSource materializes a render-output description against a snapshot
// into a concrete tree. The root is a fragment holding one child per
// top-level region, so rendered child indices line up with extracted
// template paths. This is the reference renderer: hosts with their own
// render function may substitute it, but both must produce identical trees
// for template-covered content.
//
// Opaque expressions cannot be evaluated here; they render as empty text
// with a debug diagnostic.
func RenderSource(regions []*SourceNode, snapshot StateSnapshot) (*VNode, error) {
	ex := &extractor{templates: make(map[string]*Template)}
	sc := newScope(snapshot)
	children := make([]*VNode, 0, len(regions))
	for _, region := range regions {
		t, err := ex.buildSubTemplate(RootPath(), region)
		if err != nil {
			return nil, err
		}
		node, err := renderTemplate(t, sc)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	return Fragment(children...), nil
}

// RenderFunc produces a full render tree from a snapshot. The reconciler
// fallback re-renders through it on every prediction miss.
type RenderFunc func(StateSnapshot) (*VNode, error)

// SourceRenderer adapts a parsed source description into a RenderFunc.
func SourceRenderer(regions []*SourceNode) RenderFunc {
	return func(snapshot StateSnapshot) (*VNode, error) {
		return RenderSource(regions, snapshot)
	}
}

// renderTemplate materializes one template as exactly one node. Conditional
// and loop templates become fragments so a whole block keeps occupying a
// single child index regardless of how many nodes the active branch or the
// array produce.
func renderTemplate(t *Template, sc *scope) (*VNode, error) {
	switch t.Kind {
	case TemplateStatic:
		return Text(t.TemplateStr), nil

	case TemplateDynamic:
		content, err := t.renderString(sc)
		if err != nil {
			return nil, err
		}
		return Text(content), nil

	case TemplateOpaque:
		slog.Debug("rendering opaque region as empty text")
		return Text(""), nil

	case TemplateConditional:
		branch := t.Cond.False
		if v, ok := sc.resolve(t.Cond.Binding); ok && truthy(v) {
			branch = t.Cond.True
		}
		children, err := renderBranch(branch, sc)
		if err != nil {
			return nil, err
		}
		return Fragment(children...), nil

	case TemplateLoop:
		items, err := renderLoopItems(t.Loop, sc)
		if err != nil {
			return nil, err
		}
		return Fragment(items...), nil

	case TemplateElement:
		return renderElementTemplate(t.Elem, sc)
	}
	return nil, fmt.Errorf("render: unknown template kind %q", t.Kind)
}

// renderBranch renders a branch sub-template into the child list of its
// containing fragment. A fragment element template (empty tag) contributes
// its children directly; any other template contributes one node.
func renderBranch(t *Template, sc *scope) ([]*VNode, error) {
	if t.Kind == TemplateElement && t.Elem.Tag == "" {
		children := make([]*VNode, 0, len(t.Elem.Children))
		for _, child := range t.Elem.Children {
			node, err := renderTemplate(child, sc)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
		return children, nil
	}
	if t.Kind == TemplateStatic && t.TemplateStr == "" {
		// Empty branch renders no nodes at all.
		return nil, nil
	}
	node, err := renderTemplate(t, sc)
	if err != nil {
		return nil, err
	}
	return []*VNode{node}, nil
}

// renderLoopItems renders one keyed node per array element.
func renderLoopItems(loop *LoopTemplate, sc *scope) ([]*VNode, error) {
	arr, err := resolveArray(loop.ArrayBinding, sc)
	if err != nil {
		return nil, err
	}
	items := make([]*VNode, 0, len(arr))
	for i, elem := range arr {
		itemScope := loopItemScope(loop, sc, elem, i)
		key, ok := itemScope.resolveString(loop.KeyBinding)
		if !ok {
			return nil, fmt.Errorf("render: key binding %q missing on element %d of %q", loop.KeyBinding, i, loop.ArrayBinding)
		}
		node, err := renderTemplate(loop.Item, itemScope)
		if err != nil {
			return nil, err
		}
		node.Key = key
		items = append(items, node)
	}
	return items, nil
}

// loopItemScope layers one array element's loop variables over a scope.
func loopItemScope(loop *LoopTemplate, sc *scope, elem any, index int) *scope {
	vars := map[string]any{loop.ItemVar: elem}
	if loop.IndexVar != "" {
		vars[loop.IndexVar] = index
	}
	return sc.child(vars)
}

// resolveArray resolves an array binding to its elements.
func resolveArray(binding string, sc *scope) ([]any, error) {
	v, ok := sc.resolve(binding)
	if !ok {
		return nil, fmt.Errorf("render: array binding %q not found in state", binding)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("render: binding %q is %T, not an array", binding, v)
	}
	return arr, nil
}

func renderElementTemplate(et *ElementTemplate, sc *scope) (*VNode, error) {
	if et.Tag == "" {
		children := make([]*VNode, 0, len(et.Children))
		for _, child := range et.Children {
			node, err := renderTemplate(child, sc)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
		return Fragment(children...), nil
	}

	node := &VNode{Kind: KindElement, Tag: et.Tag}
	for _, name := range sortedAttrNames(et.Attrs) {
		value, err := et.Attrs[name].renderString(sc)
		if err != nil {
			return nil, err
		}
		node.Attrs = append(node.Attrs, Attr{Name: name, Value: value})
	}
	for _, child := range et.Children {
		rendered, err := renderTemplate(child, sc)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, rendered)
	}
	return node, nil
}

// sortedAttrNames gives element template attributes a deterministic render
// order, since the template stores them in a map.
func sortedAttrNames(attrs map[string]*Template) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
