package minimact

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SourceKind discriminates the nodes of a component's render-output
// description, the input of the template extractor.
type SourceKind string

const (
	SourceElement SourceKind = "element"
	SourceText    SourceKind = "text"
	SourceIf      SourceKind = "if"
	SourceRange   SourceKind = "range"
)

// SourceAttr is a raw attribute from the source description. The value may
// contain expression tokens.
type SourceAttr struct {
	Name string
	Raw  string
}

// SourceNode is one region of a render-output description. Each node
// occupies exactly one child index in its parent: a contiguous run of
// literal text and inline expressions is ONE text region, and an if or
// range block (however many elements it spans) is one region too. This is
// what makes extracted template paths line up with rendered tree paths.
type SourceNode struct {
	Kind SourceKind

	// SourceElement
	Tag      string
	Attrs    []SourceAttr
	Children []*SourceNode

	// SourceText: literal text interleaved with {{...}} tokens.
	Raw string

	// SourceIf: raw condition text plus both branch region lists.
	CondRaw string
	Then    []*SourceNode
	Else    []*SourceNode

	// SourceRange: raw loop header fields.
	ArrayBinding string
	ItemVar      string
	IndexVar     string
	KeyBinding   string
	Body         []*SourceNode
}

var (
	ifOpenRe    = regexp.MustCompile(`^if\s+(.+)$`)
	rangeOpenRe = regexp.MustCompile(`^range\s+([A-Za-z_][\w.]*)\s+as\s+([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))?(?:\s+key\s+([A-Za-z_][\w.]*))?$`)
	bindingRe   = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)
	pipeExprRe  = regexp.MustCompile(`^([A-Za-z_][\w.]*)\s*\|\s*([A-Za-z_]\w*)$`)
)

// ParseSource parses an annotated HTML fragment into a render-output
// description. Supported expression shapes inside {{...}} tokens:
//
//	{{count}} {{cart.total}}        binding reference
//	{{count|number}}                binding through a whitelisted transform
//	{{if done}}...{{else}}...{{end}} two-branch conditional block
//	{{range todos as todo key todo.id}}...{{end}} keyed loop block
//
// Anything else stays raw and is classified Opaque at extraction time. The
// source is whitespace-normalized first so paths do not depend on
// formatting.
func ParseSource(src string) ([]*SourceNode, error) {
	normalized := normalizeSource(src)

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(normalized), container)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}

	items := flattenNodes(nodes)
	regions, rest, err := buildRegions(items, "")
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("parse source: unbalanced block near %q", describeItem(rest[0]))
	}
	return regions, nil
}

// streamItem is one entry of the flattened child stream: either an element,
// a literal text segment, or a control token split out of a text node.
type streamItem struct {
	elem *html.Node
	text string // literal text, possibly with inline expression tokens
	ctrl string // control token body: "if ...", "range ...", "else", "end"
}

func describeItem(it streamItem) string {
	switch {
	case it.elem != nil:
		return "<" + it.elem.Data + ">"
	case it.ctrl != "":
		return "{{" + it.ctrl + "}}"
	default:
		return it.text
	}
}

// flattenNodes splits a sibling list into a stream where control tokens are
// first-class items, so blocks spanning element boundaries can be matched.
func flattenNodes(nodes []*html.Node) []streamItem {
	var items []streamItem
	for _, n := range nodes {
		switch n.Type {
		case html.ElementNode:
			items = append(items, streamItem{elem: n})
		case html.TextNode:
			items = append(items, splitControlTokens(n.Data)...)
		}
	}
	return items
}

// splitControlTokens breaks a text run around if/else/end/range tokens while
// leaving value expressions ({{count}}) inline in their text segments.
func splitControlTokens(text string) []streamItem {
	var items []streamItem
	var cur strings.Builder
	rest := text
	for {
		loc := exprToken.FindStringIndex(rest)
		if loc == nil {
			break
		}
		body := strings.TrimSpace(rest[loc[0]+2 : loc[1]-2])
		if isControlToken(body) {
			cur.WriteString(rest[:loc[0]])
			if cur.Len() > 0 {
				items = append(items, streamItem{text: cur.String()})
				cur.Reset()
			}
			items = append(items, streamItem{ctrl: body})
		} else {
			cur.WriteString(rest[:loc[1]])
		}
		rest = rest[loc[1]:]
	}
	cur.WriteString(rest)
	if cur.Len() > 0 {
		items = append(items, streamItem{text: cur.String()})
	}
	return items
}

func isControlToken(body string) bool {
	return body == "else" || body == "end" ||
		strings.HasPrefix(body, "if ") || strings.HasPrefix(body, "range ")
}

// buildRegions parses a stream into region nodes until it hits a terminator
// ("else" or "end" when inside a block). It returns the unconsumed tail.
func buildRegions(items []streamItem, terminators string) ([]*SourceNode, []streamItem, error) {
	var regions []*SourceNode
	var textRun strings.Builder
	flushText := func() {
		if textRun.Len() > 0 {
			if t := textRun.String(); strings.TrimSpace(t) != "" || exprToken.MatchString(t) {
				regions = append(regions, &SourceNode{Kind: SourceText, Raw: t})
			}
			textRun.Reset()
		}
	}

	i := 0
	for i < len(items) {
		it := items[i]
		switch {
		case it.elem != nil:
			flushText()
			elem, err := convertElement(it.elem)
			if err != nil {
				return nil, nil, err
			}
			regions = append(regions, elem)
			i++

		case it.ctrl == "else" || it.ctrl == "end":
			if terminators == "" {
				return nil, nil, fmt.Errorf("parse source: unexpected {{%s}}", it.ctrl)
			}
			flushText()
			return regions, items[i:], nil

		case strings.HasPrefix(it.ctrl, "if "):
			flushText()
			node, rest, err := parseIfBlock(it.ctrl, items[i+1:])
			if err != nil {
				return nil, nil, err
			}
			regions = append(regions, node)
			items = rest
			i = 0

		case strings.HasPrefix(it.ctrl, "range "):
			flushText()
			node, rest, err := parseRangeBlock(it.ctrl, items[i+1:])
			if err != nil {
				return nil, nil, err
			}
			regions = append(regions, node)
			items = rest
			i = 0

		default:
			textRun.WriteString(it.text)
			i++
		}
	}
	flushText()
	return regions, nil, nil
}

func parseIfBlock(header string, items []streamItem) (*SourceNode, []streamItem, error) {
	m := ifOpenRe.FindStringSubmatch(header)
	if m == nil {
		return nil, nil, fmt.Errorf("parse source: malformed if header %q", header)
	}
	node := &SourceNode{Kind: SourceIf, CondRaw: strings.TrimSpace(m[1])}

	thenRegions, rest, err := buildRegions(items, "block")
	if err != nil {
		return nil, nil, err
	}
	node.Then = thenRegions
	if len(rest) == 0 {
		return nil, nil, fmt.Errorf("parse source: unterminated {{if %s}}", node.CondRaw)
	}

	if rest[0].ctrl == "else" {
		elseRegions, rest2, err := buildRegions(rest[1:], "block")
		if err != nil {
			return nil, nil, err
		}
		node.Else = elseRegions
		rest = rest2
		if len(rest) == 0 {
			return nil, nil, fmt.Errorf("parse source: unterminated else in {{if %s}}", node.CondRaw)
		}
	}
	if rest[0].ctrl != "end" {
		return nil, nil, fmt.Errorf("parse source: expected {{end}} for {{if %s}}", node.CondRaw)
	}
	return node, rest[1:], nil
}

func parseRangeBlock(header string, items []streamItem) (*SourceNode, []streamItem, error) {
	m := rangeOpenRe.FindStringSubmatch(header)
	if m == nil {
		return nil, nil, fmt.Errorf("parse source: malformed range header %q", header)
	}
	node := &SourceNode{
		Kind:         SourceRange,
		ArrayBinding: m[1],
		ItemVar:      m[2],
		IndexVar:     m[3],
		KeyBinding:   m[4],
	}

	body, rest, err := buildRegions(items, "block")
	if err != nil {
		return nil, nil, err
	}
	node.Body = body
	if len(rest) == 0 || rest[0].ctrl != "end" {
		return nil, nil, fmt.Errorf("parse source: unterminated {{range %s}}", node.ArrayBinding)
	}
	return node, rest[1:], nil
}

func convertElement(n *html.Node) (*SourceNode, error) {
	elem := &SourceNode{Kind: SourceElement, Tag: n.Data}
	for _, a := range n.Attr {
		elem.Attrs = append(elem.Attrs, SourceAttr{Name: a.Key, Raw: a.Val})
	}

	var childNodes []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		childNodes = append(childNodes, c)
	}
	items := flattenNodes(childNodes)
	children, rest, err := buildRegions(items, "")
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("parse source: unbalanced block inside <%s>", n.Data)
	}
	elem.Children = children
	return elem, nil
}

// expressionSegment is one lexed piece of a text region or attribute value:
// either literal text or an expression token body.
type expressionSegment struct {
	literal string
	expr    string
}

// lexExpressions splits raw content into literal and expression segments in
// source order.
func lexExpressions(raw string) []expressionSegment {
	var segs []expressionSegment
	rest := raw
	for {
		loc := exprToken.FindStringIndex(rest)
		if loc == nil {
			break
		}
		if loc[0] > 0 {
			segs = append(segs, expressionSegment{literal: rest[:loc[0]]})
		}
		segs = append(segs, expressionSegment{expr: strings.TrimSpace(rest[loc[0]+2 : loc[1]-2])})
		rest = rest[loc[1]:]
	}
	if rest != "" {
		segs = append(segs, expressionSegment{literal: rest})
	}
	return segs
}

// classifyExpr recognizes the two extractable value-expression shapes:
// a plain binding reference and a binding through a whitelisted transform.
// Everything else is opaque.
func classifyExpr(expr string) (binding, transform string, ok bool) {
	if bindingRe.MatchString(expr) {
		return expr, "", true
	}
	if m := pipeExprRe.FindStringSubmatch(expr); m != nil && knownTransform(m[2]) {
		return m[1], m[2], true
	}
	return "", "", false
}
