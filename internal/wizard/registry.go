package wizard

import (
	"context"
	"sync"

	"github.com/diagnosis/refcheck/internal/snapshot"
)

// Registry hands out one engine per owner. The first lookup restores the
// owner's slots; later lookups reuse the engine. An engine whose store could
// not be read is handed out but not kept, so the next lookup reads again.
type Registry struct {
	mu      sync.Mutex
	store   snapshot.Store
	opts    []Option
	engines map[string]*Engine
}

func NewRegistry(store snapshot.Store, opts ...Option) *Registry {
	return &Registry{
		store:   store,
		opts:    opts,
		engines: make(map[string]*Engine),
	}
}

func (r *Registry) Get(ctx context.Context, owner string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[owner]; ok {
		return e
	}
	e := Open(ctx, owner, r.store, r.opts...)
	if e.restored {
		r.engines[owner] = e
	}
	return e
}

// Discard resets the owner's wizard and forgets the engine.
func (r *Registry) Discard(owner string) {
	r.mu.Lock()
	e, ok := r.engines[owner]
	delete(r.engines, owner)
	r.mu.Unlock()

	if ok {
		e.Reset()
		return
	}
	if r.store != nil {
		_ = r.store.Delete(context.Background(), snapshot.WizardFormKey(owner), snapshot.WizardStepKey(owner))
	}
}
