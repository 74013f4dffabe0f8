package minimact

import (
	"fmt"
	"strings"
)

// ExtractResult is the extractor's output: the template map plus the build
// warnings accumulated while walking the description.
type ExtractResult struct {
	Map      *TemplateMap
	Warnings []ExtractWarning
}

// entryKey joins a structural path with an optional attribute target. Text
// regions are keyed by the bare path; attribute templates share the path of
// their element with an "@name" suffix so both can coexist at one position.
func entryKey(path Path, target string) string {
	if target == "" {
		return path.String()
	}
	return path.String() + "@" + target
}

// splitEntryKey reverses entryKey.
func splitEntryKey(key string) (Path, string, error) {
	pathStr, target, _ := strings.Cut(key, "@")
	path, err := ParsePath(pathStr)
	if err != nil {
		return nil, "", err
	}
	return path, target, nil
}

// extractor walks one component's render-output description and produces a
// path-indexed table of parameterized templates. Pure and offline: it holds
// no runtime state beyond the accumulating output.
type extractor struct {
	templates map[string]*Template
	warnings  []ExtractWarning
}

// Extract analyzes a component's render-output description. Classification
// per region: pure literal is Static; expressions (with or without adjacent
// literal text) collapse into exactly ONE Dynamic entry at ONE structural
// path with one slot per expression in source order; if blocks become
// Conditional; range blocks become Loop (a stable key binding is mandatory
// and its absence is a hard error); every other expression shape is Opaque.
// Attribute values, including per-property style maps, follow the same
// rules.
func Extract(component string, regions []*SourceNode) (*ExtractResult, error) {
	ex := &extractor{templates: make(map[string]*Template)}
	if err := ex.walkRegions(RootPath(), regions); err != nil {
		return nil, err
	}
	return &ExtractResult{
		Map:      NewTemplateMap(component, "1", ex.templates),
		Warnings: ex.warnings,
	}, nil
}

// ExtractSource parses and extracts in one step.
func ExtractSource(component, src string) (*ExtractResult, error) {
	regions, err := ParseSource(src)
	if err != nil {
		return nil, err
	}
	return Extract(component, regions)
}

func (ex *extractor) warnf(path Path, format string, args ...any) {
	ex.warnings = append(ex.warnings, ExtractWarning{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (ex *extractor) record(path Path, target string, t *Template) {
	t.Target = target
	ex.templates[entryKey(path, target)] = t
}

// walkRegions assigns one child index per region and records templates for
// every classifiable content region.
func (ex *extractor) walkRegions(parent Path, regions []*SourceNode) error {
	for i, region := range regions {
		path := parent.Child(i)
		switch region.Kind {
		case SourceText:
			ex.record(path, "", classifyTextRegion(region.Raw))

		case SourceElement:
			if err := ex.walkElement(path, region); err != nil {
				return err
			}

		case SourceIf:
			t, err := ex.buildConditional(path, region)
			if err != nil {
				return err
			}
			ex.record(path, "", t)

		case SourceRange:
			t, err := ex.buildLoop(path, region)
			if err != nil {
				return err
			}
			ex.record(path, "", t)
		}
	}
	return nil
}

func (ex *extractor) walkElement(path Path, elem *SourceNode) error {
	for _, attr := range elem.Attrs {
		ex.extractAttr(path, attr)
	}
	return ex.walkRegions(path, elem.Children)
}

// extractAttr records templates for attribute values. Style attributes are
// decomposed into per-property templates so a single property can be
// hot-patched without rewriting the whole attribute.
func (ex *extractor) extractAttr(path Path, attr SourceAttr) {
	if attr.Name == "style" {
		for _, decl := range strings.Split(attr.Raw, ";") {
			decl = strings.TrimSpace(decl)
			if decl == "" {
				continue
			}
			prop, value, found := strings.Cut(decl, ":")
			if !found {
				continue
			}
			target := "style." + strings.TrimSpace(prop)
			t := classifyTextRegion(strings.TrimSpace(value))
			if t.Kind == TemplateOpaque {
				ex.warnf(path, "style property %q has an unclassifiable expression; it will never be hot-patched", target)
			}
			ex.record(path, target, t)
		}
		return
	}

	t := classifyTextRegion(attr.Raw)
	if t.Kind == TemplateOpaque {
		ex.warnf(path, "attribute %q has an unclassifiable expression; it will never be hot-patched", attr.Name)
	}
	ex.record(path, attr.Name, t)
}

// classifyTextRegion turns one raw content region into a Static, Dynamic or
// Opaque template. Mixed literal and expression content yields exactly one
// Dynamic entry with one slot per expression in source order.
func classifyTextRegion(raw string) *Template {
	segs := lexExpressions(raw)

	hasExpr := false
	for _, seg := range segs {
		if seg.expr != "" {
			hasExpr = true
			break
		}
	}
	if !hasExpr {
		return StaticTemplate(raw)
	}

	var tmpl strings.Builder
	var bindings, transformNames []string
	slot := 0
	for _, seg := range segs {
		if seg.expr == "" {
			tmpl.WriteString(seg.literal)
			continue
		}
		binding, transform, ok := classifyExpr(seg.expr)
		if !ok {
			// One unclassifiable expression poisons the region: guessing a
			// template here would silently corrupt displayed content.
			return OpaqueTemplate()
		}
		fmt.Fprintf(&tmpl, "{%d}", slot)
		bindings = append(bindings, binding)
		transformNames = append(transformNames, transform)
		slot++
	}
	return DynamicTemplate(tmpl.String(), bindings, transformNames)
}

// buildConditional extracts an if block. The discriminant must be a plain
// binding; a compound condition makes the whole region Opaque rather than a
// guessed template.
func (ex *extractor) buildConditional(path Path, node *SourceNode) (*Template, error) {
	if !bindingRe.MatchString(node.CondRaw) {
		ex.warnf(path, "conditional %q is not a plain binding; region is opaque", node.CondRaw)
		return OpaqueTemplate(), nil
	}

	thenT, err := ex.buildBranch(path, node.Then)
	if err != nil {
		return nil, err
	}
	elseT, err := ex.buildBranch(path, node.Else)
	if err != nil {
		return nil, err
	}
	return &Template{
		Kind: TemplateConditional,
		Cond: &ConditionalTemplate{Binding: node.CondRaw, True: thenT, False: elseT},
	}, nil
}

// buildLoop extracts a range block. Extraction fails loudly without a key
// binding: positional diffing of reordered loops produces incorrect
// patches, so silent positional indexing is never an acceptable default.
func (ex *extractor) buildLoop(path Path, node *SourceNode) (*Template, error) {
	if node.KeyBinding == "" {
		return nil, &ExtractError{Path: path, Err: fmt.Errorf("%w: range over %q", ErrNoKeyBinding, node.ArrayBinding)}
	}
	if !strings.HasPrefix(node.KeyBinding, node.ItemVar+".") && node.KeyBinding != node.ItemVar {
		return nil, &ExtractError{Path: path, Err: fmt.Errorf("key binding %q is not scoped to loop item %q", node.KeyBinding, node.ItemVar)}
	}

	item, err := ex.buildBranch(path, node.Body)
	if err != nil {
		return nil, err
	}
	return &Template{
		Kind: TemplateLoop,
		Loop: &LoopTemplate{
			ArrayBinding: node.ArrayBinding,
			ItemVar:      node.ItemVar,
			IndexVar:     node.IndexVar,
			KeyBinding:   node.KeyBinding,
			Item:         item,
		},
	}, nil
}

// buildBranch turns a region list into one sub-template. A single region
// maps directly; multiple regions wrap into a fragment element template
// (empty tag) so the branch stays a single recursively defined template.
func (ex *extractor) buildBranch(path Path, regions []*SourceNode) (*Template, error) {
	if len(regions) == 0 {
		return StaticTemplate(""), nil
	}
	if len(regions) == 1 {
		return ex.buildSubTemplate(path, regions[0])
	}
	children := make([]*Template, 0, len(regions))
	for _, region := range regions {
		t, err := ex.buildSubTemplate(path, region)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	return &Template{Kind: TemplateElement, Elem: &ElementTemplate{Tag: "", Children: children}}, nil
}

// buildSubTemplate extracts one region nested inside a branch or loop body.
// Nested regions are part of the containing entry, not separate top-level
// paths.
func (ex *extractor) buildSubTemplate(path Path, region *SourceNode) (*Template, error) {
	switch region.Kind {
	case SourceText:
		return classifyTextRegion(region.Raw), nil

	case SourceIf:
		return ex.buildConditional(path, region)

	case SourceRange:
		return ex.buildLoop(path, region)

	case SourceElement:
		elem := &ElementTemplate{Tag: region.Tag}
		for _, attr := range region.Attrs {
			t := classifyTextRegion(attr.Raw)
			if t.Kind == TemplateOpaque {
				ex.warnf(path, "attribute %q inside block has an unclassifiable expression", attr.Name)
			}
			if elem.Attrs == nil {
				elem.Attrs = make(map[string]*Template)
			}
			t.Target = attr.Name
			elem.Attrs[attr.Name] = t
		}
		for _, child := range region.Children {
			t, err := ex.buildSubTemplate(path, child)
			if err != nil {
				return nil, err
			}
			elem.Children = append(elem.Children, t)
		}
		return &Template{Kind: TemplateElement, Elem: elem}, nil
	}
	return nil, &ExtractError{Path: path, Err: fmt.Errorf("unknown region kind %q", region.Kind)}
}

// CheckStructure verifies the atomicity contract between a template map and
// a rendered tree: every text-region entry must resolve to exactly one text
// node at its structural path. A downstream tree builder that splits a
// mixed literal+expression region into multiple siblings is a defect this
// check exists to catch.
func CheckStructure(tm *TemplateMap, root *VNode) error {
	for _, key := range tm.Paths() {
		path, target, err := splitEntryKey(key)
		if err != nil {
			return err
		}
		t, _ := tm.Get(key)
		node, err := root.Resolve(path)
		if err != nil {
			return fmt.Errorf("template %q: %w", key, err)
		}
		if target != "" {
			if !node.IsElement() {
				return fmt.Errorf("template %q targets attribute %q of a non-element node", key, target)
			}
			continue
		}
		switch t.Kind {
		case TemplateStatic, TemplateDynamic:
			if !node.IsText() {
				return fmt.Errorf("template %q: expected one text node, found %s", key, node.Kind)
			}
		case TemplateConditional, TemplateLoop:
			if node.Kind != KindFragment {
				return fmt.Errorf("template %q: expected fragment node, found %s", key, node.Kind)
			}
		}
	}
	return nil
}
