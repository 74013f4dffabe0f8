package minimact

import (
	"context"
	"fmt"

	"github.com/minimact/minimact-sub002/internal/store"
)

// StoreLoader adapts a document store into the registry's TemplateLoader,
// loading the latest persisted document for each component.
func StoreLoader(s *store.Store) TemplateLoader {
	return func(ctx context.Context, component string) (*TemplateMap, error) {
		payload, err := s.LoadLatest(ctx, component)
		if err != nil {
			return nil, err
		}
		return UnmarshalDocument(payload)
	}
}

// SaveTemplateMap persists a template map's document form to the store.
func SaveTemplateMap(ctx context.Context, s *store.Store, tm *TemplateMap) error {
	payload, err := MarshalDocument(ToDocument(tm))
	if err != nil {
		return fmt.Errorf("encoding document for %q: %w", tm.Component, err)
	}
	return s.SaveDocument(ctx, tm.Component, tm.Version, tm.GeneratedAt, payload)
}
