package minimact

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistryLazyLoad(t *testing.T) {
	loads := 0
	r := NewRegistry(WithLoader(func(ctx context.Context, component string) (*TemplateMap, error) {
		loads++
		return mustExtract(t, todoSource).Map, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tm, err := r.Get(ctx, "Todo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tm.Len() != 5 {
		t.Errorf("entries = %d", tm.Len())
	}

	// Second request reuses the loaded map.
	if _, err := r.Get(ctx, "Todo"); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if loads != 1 {
		t.Errorf("loader called %d times", loads)
	}
}

func TestRegistryConcurrentGetLoadsOnce(t *testing.T) {
	var mu sync.Mutex
	loads := 0
	started := make(chan struct{})
	r := NewRegistry(WithLoader(func(ctx context.Context, component string) (*TemplateMap, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		<-started
		return mustExtract(t, todoSource).Map, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get(ctx, "Todo"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	close(started)
	wg.Wait()

	if loads != 1 {
		t.Errorf("loader called %d times, want 1", loads)
	}
}

func TestRegistryGetHonorsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewRegistry(WithLoader(func(ctx context.Context, component string) (*TemplateMap, error) {
		<-block
		return nil, errors.New("never reached in time")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Get(ctx, "Todo")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestRegistryWithoutLoader(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(context.Background(), "Todo")
	if !errors.Is(err, ErrNoTemplateMap) {
		t.Fatalf("err = %v, want ErrNoTemplateMap", err)
	}
}

func TestRegistryLoaderError(t *testing.T) {
	boom := errors.New("store unavailable")
	r := NewRegistry(WithLoader(func(ctx context.Context, component string) (*TemplateMap, error) {
		return nil, boom
	}))

	_, err := r.Get(context.Background(), "Todo")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped loader error", err)
	}
}

func TestRegistryLookupNeverBlocks(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("Todo"); ok {
		t.Fatal("Lookup reported a map that was never installed")
	}

	r.Put(mustExtract(t, todoSource).Map)
	tm, ok := r.Lookup("Todo")
	if !ok || tm == nil {
		t.Fatal("Lookup missed an installed map")
	}
}

func TestRegistrySwapReturnsPrevious(t *testing.T) {
	r := NewRegistry()

	if old := r.Swap(mustExtract(t, todoSource).Map); old != nil {
		t.Fatalf("first swap returned %+v", old)
	}

	next := mustExtract(t, todoSource).Map
	next.Version = "2"
	old := r.Swap(next)
	if old == nil || old.Version != "1" {
		t.Fatalf("old = %+v", old)
	}

	tm, _ := r.Lookup("Todo")
	if tm.Version != "2" {
		t.Errorf("current version = %q", tm.Version)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Put(mustExtract(t, todoSource).Map)
	r.Remove("Todo")
	if _, ok := r.Lookup("Todo"); ok {
		t.Fatal("map survived Remove")
	}
	if names := r.Components(); len(names) != 0 {
		t.Errorf("components = %v", names)
	}
}
