package minimact

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TemplateKind discriminates the closed template variant set. The matcher
// switches exhaustively over these; there is no open polymorphism.
type TemplateKind string

const (
	// TemplateStatic is a fixed string with zero bindings.
	TemplateStatic TemplateKind = "static"
	// TemplateDynamic is a template string with numbered {0} slots, one
	// binding per slot and an optional pure transform per slot.
	TemplateDynamic TemplateKind = "dynamic"
	// TemplateConditional has one discriminant binding and exactly two
	// branch sub-templates.
	TemplateConditional TemplateKind = "conditional"
	// TemplateLoop renders an array binding through a recursive item
	// template, matched across updates by a stable key binding.
	TemplateLoop TemplateKind = "loop"
	// TemplateElement describes an element subtree inside a branch or loop
	// item: tag, attribute templates and child templates.
	TemplateElement TemplateKind = "element"
	// TemplateOpaque marks a region the extractor could not classify. It has
	// zero bindings and always forces a prediction miss; it is recorded only
	// so the matcher can fast-reject without re-deriving the shape.
	TemplateOpaque TemplateKind = "opaque"
)

// Template is a parameterized description of one content region, keyed in a
// TemplateMap by the region's structural path.
type Template struct {
	Kind TemplateKind `json:"type"`

	// Static / Dynamic text form.
	TemplateStr string   `json:"template,omitempty"`
	Bindings    []string `json:"bindings,omitempty"`
	Transforms  []string `json:"transforms,omitempty"`

	// Target distinguishes text regions from attribute values. Empty means
	// text content; otherwise the attribute name, with "style.width" style
	// naming for composite style properties.
	Target string `json:"target,omitempty"`

	Cond *ConditionalTemplate `json:"conditional,omitempty"`
	Loop *LoopTemplate        `json:"loop,omitempty"`
	Elem *ElementTemplate     `json:"element,omitempty"`
}

// ConditionalTemplate is a two-branch template switched by one discriminant
// binding. Branches are independently any template kind.
type ConditionalTemplate struct {
	Binding string    `json:"binding"`
	True    *Template `json:"true"`
	False   *Template `json:"false"`
}

// LoopTemplate renders one item template per element of an array binding.
// KeyBinding is mandatory: loop items are matched across updates by stable
// key, never by position.
type LoopTemplate struct {
	ArrayBinding string    `json:"array"`
	ItemVar      string    `json:"item"`
	IndexVar     string    `json:"index,omitempty"`
	KeyBinding   string    `json:"key"`
	Item         *Template `json:"template"`
}

// ElementTemplate describes an element subtree: its tag, per-attribute
// templates and ordered child templates.
type ElementTemplate struct {
	Tag      string               `json:"tag"`
	Attrs    map[string]*Template `json:"attrs,omitempty"`
	Children []*Template          `json:"children,omitempty"`
}

// StaticTemplate builds a fixed-string template.
func StaticTemplate(s string) *Template {
	return &Template{Kind: TemplateStatic, TemplateStr: s}
}

// DynamicTemplate builds a slot template. bindings[i] fills slot {i};
// transforms may be nil for plain stringification.
func DynamicTemplate(tmpl string, bindings []string, transforms []string) *Template {
	if transforms == nil {
		transforms = make([]string, len(bindings))
	}
	return &Template{Kind: TemplateDynamic, TemplateStr: tmpl, Bindings: bindings, Transforms: transforms}
}

// OpaqueTemplate records an unclassifiable region.
func OpaqueTemplate() *Template {
	return &Template{Kind: TemplateOpaque}
}

// renderString fills the numbered slots of a Dynamic template from a scope.
func (t *Template) renderString(sc *scope) (string, error) {
	if t.Kind == TemplateStatic {
		return t.TemplateStr, nil
	}
	out := t.TemplateStr
	for i, binding := range t.Bindings {
		v, ok := sc.resolve(binding)
		if !ok {
			return "", fmt.Errorf("binding %q not found in state", binding)
		}
		transform := ""
		if i < len(t.Transforms) {
			transform = t.Transforms[i]
		}
		rendered, err := applyTransform(transform, v)
		if err != nil {
			return "", err
		}
		out = strings.ReplaceAll(out, "{"+strconv.Itoa(i)+"}", rendered)
	}
	return out, nil
}

// bindings appends every binding reachable from the template, including
// discriminants, array bindings and nested sub-templates. Loop item and
// index variables are excluded: they are scoped, not state keys.
func (t *Template) bindings(out []string) []string {
	if t == nil {
		return out
	}
	switch t.Kind {
	case TemplateDynamic:
		out = append(out, t.Bindings...)
	case TemplateConditional:
		out = append(out, t.Cond.Binding)
		out = t.Cond.True.bindings(out)
		out = t.Cond.False.bindings(out)
	case TemplateLoop:
		// Item-scoped bindings resolve through the array, so the array
		// binding alone covers the loop for change intersection.
		out = append(out, t.Loop.ArrayBinding)
	case TemplateElement:
		for _, attr := range t.Elem.Attrs {
			out = attr.bindings(out)
		}
		for _, child := range t.Elem.Children {
			out = child.bindings(out)
		}
	}
	return out
}

// isOpaque reports whether the template or any reachable sub-template is
// Opaque. A touched opaque region forces a whole-batch miss.
func (t *Template) isOpaque() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TemplateOpaque:
		return true
	case TemplateConditional:
		return t.Cond.True.isOpaque() || t.Cond.False.isOpaque()
	case TemplateLoop:
		return t.Loop.Item.isOpaque()
	case TemplateElement:
		for _, attr := range t.Elem.Attrs {
			if attr.isOpaque() {
				return true
			}
		}
		for _, child := range t.Elem.Children {
			if child.isOpaque() {
				return true
			}
		}
	}
	return false
}

// structuralKind groups template kinds by the tree shape they mount. Hot
// reload can patch within one shape; crossing shapes (say Static to Loop)
// requires a remount.
func (t *Template) structuralKind() string {
	switch t.Kind {
	case TemplateStatic, TemplateDynamic:
		return "text"
	default:
		return string(t.Kind)
	}
}

// TemplateMap is the immutable per-component-type table of templates keyed
// by structural path. Every instance of the type shares one map; hot reload
// replaces the whole map atomically, never mutates it in place.
type TemplateMap struct {
	Component   string
	Version     string
	GeneratedAt time.Time

	templates map[string]*Template // structural path -> template
	byBinding map[string][]string  // state key -> paths touching it
}

// NewTemplateMap builds a map from path-keyed templates and precomputes the
// binding index the predictor uses for change intersection.
func NewTemplateMap(component, version string, templates map[string]*Template) *TemplateMap {
	tm := &TemplateMap{
		Component:   component,
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		templates:   templates,
		byBinding:   make(map[string][]string),
	}
	for path, t := range templates {
		for _, b := range t.bindings(nil) {
			tm.byBinding[b] = append(tm.byBinding[b], path)
		}
	}
	return tm
}

// Get returns the template at a structural path.
func (tm *TemplateMap) Get(path string) (*Template, bool) {
	t, ok := tm.templates[path]
	return t, ok
}

// Len returns the number of template entries.
func (tm *TemplateMap) Len() int { return len(tm.templates) }

// Paths returns all template paths. The order is unspecified.
func (tm *TemplateMap) Paths() []string {
	paths := make([]string, 0, len(tm.templates))
	for p := range tm.templates {
		paths = append(paths, p)
	}
	return paths
}

// touchedBy returns the set of template paths whose binding set intersects a
// changed state key, directly or through a containing conditional or loop.
func (tm *TemplateMap) touchedBy(changedKey string) []string {
	seen := make(map[string]bool)
	var paths []string
	for binding, bound := range tm.byBinding {
		if !bindingTouched(binding, changedKey) {
			continue
		}
		for _, p := range bound {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// bindingTouched reports whether a changed state key affects a binding.
// A change to "cart" touches "cart.total"; a change to "cart.total" touches
// a template bound to "cart". Matches respect dot boundaries.
func bindingTouched(binding, changedKey string) bool {
	if binding == changedKey {
		return true
	}
	if strings.HasPrefix(binding, changedKey+".") {
		return true
	}
	return strings.HasPrefix(changedKey, binding+".")
}

// estimateSize approximates the map's memory footprint for the memory
// manager's accounting.
func (tm *TemplateMap) estimateSize() int64 {
	var size int64
	for path, t := range tm.templates {
		size += int64(len(path)) + t.estimateSize()
	}
	return size
}

func (t *Template) estimateSize() int64 {
	if t == nil {
		return 0
	}
	size := int64(48 + len(t.TemplateStr) + len(t.Target))
	for _, b := range t.Bindings {
		size += int64(len(b))
	}
	switch t.Kind {
	case TemplateConditional:
		size += int64(len(t.Cond.Binding)) + t.Cond.True.estimateSize() + t.Cond.False.estimateSize()
	case TemplateLoop:
		size += int64(len(t.Loop.ArrayBinding)+len(t.Loop.KeyBinding)) + t.Loop.Item.estimateSize()
	case TemplateElement:
		size += int64(len(t.Elem.Tag))
		for name, attr := range t.Elem.Attrs {
			size += int64(len(name)) + attr.estimateSize()
		}
		for _, child := range t.Elem.Children {
			size += child.estimateSize()
		}
	}
	return size
}
