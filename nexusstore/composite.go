package nexusstore

import (
	"context"
	"fmt"
	"sync"
)

// Composite holds several Store facades — each possibly over a different
// entity/ID type pair — keyed by name, for applications that manage
// multiple entity types and want one place to initialize and close them
// together: graceful, coordinated lifecycle across several
// independently-typed backends rather than a single monolithic interface.
type Composite struct {
	mu     sync.RWMutex
	stores map[string]storeHandle
}

type storeHandle interface {
	Initialize(ctx context.Context) error
	Close() error
}

// NewComposite builds an empty Composite.
func NewComposite() *Composite {
	return &Composite{stores: make(map[string]storeHandle)}
}

// Register adds store under name, replacing any existing entry for that
// name (the replaced store is not closed; the caller is responsible for it).
func Register[E any, ID comparable](c *Composite, name string, store *Store[E, ID]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores[name] = store
}

// Named retrieves the store registered under name, type-asserting it to
// Store[E, ID]. ok is false when name is unregistered or registered under
// a different entity/ID type pair.
func Named[E any, ID comparable](c *Composite, name string) (*Store[E, ID], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.stores[name]
	if !ok {
		return nil, false
	}
	s, ok := v.(*Store[E, ID])
	return s, ok
}

// InitializeAll initializes every registered store, stopping at the first
// error (which it wraps with the offending store's name).
func (c *Composite) InitializeAll(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, s := range c.stores {
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("nexusstore: initializing %q: %w", name, err)
		}
	}
	return nil
}

// Close closes every registered store, collecting (not short-circuiting
// on) failures.
func (c *Composite) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	for name, s := range c.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("nexusstore: errors closing composite: %v", errs)
	}
	return nil
}
