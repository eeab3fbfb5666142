package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Loader builds engines by id. Load runs on a worker goroutine and must not
// touch controller state.
type Loader interface {
	Load(ctx context.Context, id string) (Engine, error)
}

// Locator is implemented by loaders that keep per-engine resources on disk.
type Locator interface {
	Path(id string) string
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, id string) (Engine, error)

func (f LoaderFunc) Load(ctx context.Context, id string) (Engine, error) {
	return f(ctx, id)
}

// StaticLoader builds Go engines registered by id.
type StaticLoader struct {
	mu        sync.RWMutex
	factories map[string]func() Engine
}

func NewStaticLoader() *StaticLoader {
	return &StaticLoader{factories: make(map[string]func() Engine)}
}

// Register adds or replaces the factory for id.
func (l *StaticLoader) Register(id string, factory func() Engine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[id] = factory
}

// IDs lists the registered engine ids.
func (l *StaticLoader) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.factories))
	for id := range l.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *StaticLoader) Load(ctx context.Context, id string) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	factory, ok := l.factories[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, id)
	}
	return factory(), nil
}

// ChainLoader asks each loader in turn; the first that knows the id wins.
type ChainLoader []Loader

func (c ChainLoader) Load(ctx context.Context, id string) (Engine, error) {
	for _, l := range c {
		e, err := l.Load(ctx, id)
		if errors.Is(err, ErrUnknownEngine) {
			continue
		}
		return e, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, id)
}

// Path returns the first non-empty path a chained loader reports for id.
func (c ChainLoader) Path(id string) string {
	for _, l := range c {
		if loc, ok := l.(Locator); ok {
			if p := loc.Path(id); p != "" {
				return p
			}
		}
	}
	return ""
}
