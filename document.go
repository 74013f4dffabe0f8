package minimact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TemplateDocument is the persisted form of a component's template map: the
// artifact the build-time extractor writes and the runtime loads. The wire
// shape is stable JSON so build tooling in other languages can produce it.
type TemplateDocument struct {
	Component   string               `json:"component" validate:"required"`
	Version     string               `json:"version" validate:"required"`
	GeneratedAt time.Time            `json:"generated_at"`
	Templates   map[string]*Template `json:"templates" validate:"required,min=1"`
}

var docValidate = validator.New()

// ToDocument converts a template map to its persisted form.
func ToDocument(tm *TemplateMap) *TemplateDocument {
	doc := &TemplateDocument{
		Component:   tm.Component,
		Version:     tm.Version,
		GeneratedAt: tm.GeneratedAt,
		Templates:   make(map[string]*Template, tm.Len()),
	}
	for _, key := range tm.Paths() {
		t, _ := tm.Get(key)
		doc.Templates[key] = t
	}
	return doc
}

// FromDocument validates a persisted document and builds the runtime map.
// Validation is strict: a malformed document is rejected whole rather than
// loaded with entries that would silently force prediction misses.
func FromDocument(doc *TemplateDocument) (*TemplateMap, error) {
	if err := docValidate.Struct(doc); err != nil {
		return nil, fmt.Errorf("template document for %q: %w", doc.Component, ValidationToMultiError(err))
	}
	for key, t := range doc.Templates {
		if _, _, err := splitEntryKey(key); err != nil {
			return nil, fmt.Errorf("template document for %q: bad key %q: %w", doc.Component, key, err)
		}
		if err := checkTemplate(key, t); err != nil {
			return nil, fmt.Errorf("template document for %q: %w", doc.Component, err)
		}
	}
	tm := NewTemplateMap(doc.Component, doc.Version, doc.Templates)
	if !doc.GeneratedAt.IsZero() {
		tm.GeneratedAt = doc.GeneratedAt
	}
	return tm, nil
}

// MarshalDocument encodes a document as indented JSON.
func MarshalDocument(doc *TemplateDocument) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalDocument decodes and validates a persisted document into a
// runtime template map.
func UnmarshalDocument(data []byte) (*TemplateMap, error) {
	var doc TemplateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding template document: %w", err)
	}
	return FromDocument(&doc)
}

// checkTemplate verifies the semantic constraints the JSON schema cannot
// express: slot and binding arity, transform names, mandatory loop keys.
func checkTemplate(key string, t *Template) error {
	if t == nil {
		return fmt.Errorf("entry %q: nil template", key)
	}
	switch t.Kind {
	case TemplateStatic:
		if len(t.Bindings) != 0 {
			return fmt.Errorf("entry %q: static template with bindings", key)
		}
	case TemplateDynamic:
		if len(t.Bindings) == 0 {
			return fmt.Errorf("entry %q: dynamic template without bindings", key)
		}
		for i := range t.Bindings {
			slot := fmt.Sprintf("{%d}", i)
			if !strings.Contains(t.TemplateStr, slot) {
				return fmt.Errorf("entry %q: slot %s missing from template string", key, slot)
			}
		}
		if len(t.Transforms) != 0 && len(t.Transforms) != len(t.Bindings) {
			return fmt.Errorf("entry %q: %d transforms for %d bindings", key, len(t.Transforms), len(t.Bindings))
		}
		for _, name := range t.Transforms {
			// "" means plain stringification, no transform.
			if name != "" && !knownTransform(name) {
				return fmt.Errorf("entry %q: unknown transform %q", key, name)
			}
		}
	case TemplateConditional:
		if t.Cond == nil || t.Cond.Binding == "" {
			return fmt.Errorf("entry %q: conditional without a discriminant binding", key)
		}
		if t.Cond.True == nil || t.Cond.False == nil {
			return fmt.Errorf("entry %q: conditional must carry both branches", key)
		}
		if err := checkTemplate(key, t.Cond.True); err != nil {
			return err
		}
		if err := checkTemplate(key, t.Cond.False); err != nil {
			return err
		}
	case TemplateLoop:
		if t.Loop == nil || t.Loop.ArrayBinding == "" {
			return fmt.Errorf("entry %q: loop without an array binding", key)
		}
		if t.Loop.ItemVar == "" {
			return fmt.Errorf("entry %q: loop without an item variable", key)
		}
		if t.Loop.KeyBinding == "" {
			return fmt.Errorf("entry %q: %w", key, ErrNoKeyBinding)
		}
		if t.Loop.Item == nil {
			return fmt.Errorf("entry %q: loop without an item template", key)
		}
		if err := checkTemplate(key, t.Loop.Item); err != nil {
			return err
		}
	case TemplateElement:
		if t.Elem == nil {
			return fmt.Errorf("entry %q: element template without a body", key)
		}
		for _, attr := range t.Elem.Attrs {
			if err := checkTemplate(key, attr); err != nil {
				return err
			}
		}
		for _, child := range t.Elem.Children {
			if err := checkTemplate(key, child); err != nil {
				return err
			}
		}
	case TemplateOpaque:
		// Nothing to check; carries no data.
	default:
		return fmt.Errorf("entry %q: unknown template kind %q", key, t.Kind)
	}
	return nil
}
