package minimact

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minimact/minimact-sub002/internal/store"
)

func TestDocumentRoundTrip(t *testing.T) {
	tm := mustExtract(t, todoSource).Map

	data, err := MarshalDocument(ToDocument(tm))
	if err != nil {
		t.Fatalf("MarshalDocument: %v", err)
	}

	got, err := UnmarshalDocument(data)
	if err != nil {
		t.Fatalf("UnmarshalDocument: %v", err)
	}

	if got.Component != tm.Component || got.Version != tm.Version || got.Len() != tm.Len() {
		t.Fatalf("got %s/%s with %d entries", got.Component, got.Version, got.Len())
	}
	for _, key := range tm.Paths() {
		want, _ := tm.Get(key)
		loaded, ok := got.Get(key)
		if !ok {
			t.Fatalf("entry %q lost in round trip", key)
		}
		if loaded.Kind != want.Kind || loaded.TemplateStr != want.TemplateStr {
			t.Errorf("entry %q = %+v, want %+v", key, loaded, want)
		}
	}
	if !got.GeneratedAt.Equal(tm.GeneratedAt) {
		t.Errorf("generated at = %v, want %v", got.GeneratedAt, tm.GeneratedAt)
	}
}

func TestDocumentBindingIndexRebuilt(t *testing.T) {
	tm := mustExtract(t, todoSource).Map
	data, err := MarshalDocument(ToDocument(tm))
	if err != nil {
		t.Fatalf("MarshalDocument: %v", err)
	}
	got, err := UnmarshalDocument(data)
	if err != nil {
		t.Fatalf("UnmarshalDocument: %v", err)
	}

	// The loaded map must answer change intersection exactly like the
	// freshly extracted one.
	if touched := got.touchedBy("todos"); len(touched) != 1 || touched[0] != "0.3.0" {
		t.Errorf("touchedBy(todos) = %v", touched)
	}
}

func TestFromDocumentRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		doc  *TemplateDocument
	}{
		{"no component", &TemplateDocument{Version: "1", Templates: map[string]*Template{"0": StaticTemplate("x")}}},
		{"no version", &TemplateDocument{Component: "Todo", Templates: map[string]*Template{"0": StaticTemplate("x")}}},
		{"no templates", &TemplateDocument{Component: "Todo", Version: "1"}},
		{"empty templates", &TemplateDocument{Component: "Todo", Version: "1", Templates: map[string]*Template{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromDocument(tc.doc); err == nil {
				t.Error("document accepted")
			}
		})
	}
}

func TestFromDocumentRejectsBadEntries(t *testing.T) {
	doc := func(key string, tmpl *Template) *TemplateDocument {
		return &TemplateDocument{
			Component: "Todo",
			Version:   "1",
			Templates: map[string]*Template{key: tmpl},
		}
	}
	cases := []struct {
		name string
		doc  *TemplateDocument
		want string
	}{
		{"bad key", doc("not-a-path", StaticTemplate("x")), "bad key"},
		{"static with bindings", doc("0", &Template{Kind: TemplateStatic, Bindings: []string{"a"}}), "static"},
		{"dynamic without bindings", doc("0", &Template{Kind: TemplateDynamic, TemplateStr: "x"}), "without bindings"},
		{"missing slot", doc("0", &Template{Kind: TemplateDynamic, TemplateStr: "{0}", Bindings: []string{"a", "b"}}), "slot {1}"},
		{"unknown transform", doc("0", &Template{Kind: TemplateDynamic, TemplateStr: "{0}", Bindings: []string{"a"}, Transforms: []string{"rocket"}}), "transform"},
		{"conditional without branches", doc("0", &Template{Kind: TemplateConditional, Cond: &ConditionalTemplate{Binding: "a", True: StaticTemplate("x")}}), "branches"},
		{"loop without key", doc("0", &Template{Kind: TemplateLoop, Loop: &LoopTemplate{ArrayBinding: "xs", ItemVar: "x", Item: StaticTemplate("y")}}), "key"},
		{"unknown kind", doc("0", &Template{Kind: "mystery"}), "unknown template kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromDocument(tc.doc)
			if err == nil {
				t.Fatal("document accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestFromDocumentAcceptsEmptyTransform(t *testing.T) {
	// The extractor records "" for a slot without a transform; the loader
	// must treat that as plain stringification, not an unknown name.
	doc := &TemplateDocument{
		Component: "Todo",
		Version:   "1",
		Templates: map[string]*Template{
			"0": {Kind: TemplateDynamic, TemplateStr: "{0} of {1}", Bindings: []string{"done", "total"}, Transforms: []string{"", "number"}},
		},
	}
	if _, err := FromDocument(doc); err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
}

func TestFromDocumentLoopWithoutKeyIsSentinel(t *testing.T) {
	doc := &TemplateDocument{
		Component: "Todo",
		Version:   "1",
		Templates: map[string]*Template{
			"0": {Kind: TemplateLoop, Loop: &LoopTemplate{ArrayBinding: "xs", ItemVar: "x", Item: StaticTemplate("y")}},
		},
	}
	_, err := FromDocument(doc)
	if !errors.Is(err, ErrNoKeyBinding) {
		t.Fatalf("err = %v, want ErrNoKeyBinding", err)
	}
}

func TestUnmarshalDocumentBadJSON(t *testing.T) {
	if _, err := UnmarshalDocument([]byte("{")); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestStoreLoaderRoundTrip(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "templates.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	tm := mustExtract(t, todoSource).Map
	tm.Version = "20260829120000"
	if err := SaveTemplateMap(ctx, s, tm); err != nil {
		t.Fatalf("SaveTemplateMap: %v", err)
	}

	loader := StoreLoader(s)
	got, err := loader(ctx, "Todo")
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	if got.Version != "20260829120000" || got.Len() != tm.Len() {
		t.Errorf("loaded %s with %d entries", got.Version, got.Len())
	}

	if _, err := loader(ctx, "Ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}

func TestStoreLoaderFeedsRegistry(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "templates.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := SaveTemplateMap(ctx, s, mustExtract(t, todoSource).Map); err != nil {
		t.Fatalf("SaveTemplateMap: %v", err)
	}

	r := NewRegistry(WithLoader(StoreLoader(s)))
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tm, err := r.Get(loadCtx, "Todo")
	if err != nil {
		t.Fatalf("registry Get: %v", err)
	}
	if tm.Len() != 5 {
		t.Errorf("entries = %d", tm.Len())
	}
}
