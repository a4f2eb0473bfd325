package authcore

import (
	"fmt"
	"sync"
)

// Factory constructs a service. It receives a container handle so it can
// resolve its own dependencies; resolution order is therefore determined
// by the dependency graph, never by registration order.
type Factory func(c *Container) (any, error)

// containerState is the shared registry behind every handle.
type containerState struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]any
	inflight  map[string]*construction
}

// construction tracks one in-flight factory run. Concurrent callers of
// the same key block on done and receive the single outcome.
type construction struct {
	done chan struct{}
	inst any
	err  error
}

// Container is a lazy registry of named singletons: each key is
// constructed on first Get, memoized for the container's lifetime, and
// replaceable in tests via Override.
//
// A Container value is a resolution handle: the one a factory receives
// carries that factory's own resolution chain, so a key requested again
// within the same chain fails fast with a named circular-dependency
// error, while an unrelated goroutine asking for a key that is mid-
// construction simply waits for the in-flight instance.
type Container struct {
	state *containerState
	chain []string
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{state: &containerState{
		factories: make(map[string]Factory),
		instances: make(map[string]any),
		inflight:  make(map[string]*construction),
	}}
}

// Register stores the factory for key, replacing any previous one. It has
// no effect on an instance that was already constructed.
func (c *Container) Register(key string, f Factory) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.factories[key] = f
}

// Override installs a ready-made instance for key, bypassing its factory.
// Intended for tests substituting fakes.
func (c *Container) Override(key string, instance any) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.instances[key] = instance
}

// Get resolves key, constructing it on first access. Exactly one instance
// exists per key per container lifetime.
func (c *Container) Get(key string) (any, error) {
	// Re-entry within this resolution chain is a cycle; the same key
	// being built by another goroutine is not.
	for _, k := range c.chain {
		if k == key {
			return nil, fmt.Errorf("container: circular dependency on %q", key)
		}
	}

	st := c.state
	st.mu.Lock()
	if inst, ok := st.instances[key]; ok {
		st.mu.Unlock()
		return inst, nil
	}
	if ctor, ok := st.inflight[key]; ok {
		st.mu.Unlock()
		<-ctor.done
		if ctor.err != nil {
			return nil, ctor.err
		}
		return ctor.inst, nil
	}
	factory, ok := st.factories[key]
	if !ok {
		st.mu.Unlock()
		return nil, fmt.Errorf("container: unknown service %q", key)
	}
	ctor := &construction{done: make(chan struct{})}
	st.inflight[key] = ctor
	st.mu.Unlock()

	// The factory gets a handle with the chain extended by its own key,
	// and no lock held, so it can resolve dependencies freely.
	chain := make([]string, len(c.chain), len(c.chain)+1)
	copy(chain, c.chain)
	inst, err := factory(&Container{state: st, chain: append(chain, key)})

	st.mu.Lock()
	delete(st.inflight, key)
	switch {
	case err != nil:
		ctor.err = fmt.Errorf("container: building %q: %w", key, err)
	default:
		if existing, ok := st.instances[key]; ok {
			// An Override landed while the factory ran; it wins.
			inst = existing
		} else {
			st.instances[key] = inst
		}
		ctor.inst = inst
	}
	st.mu.Unlock()
	close(ctor.done)

	if ctor.err != nil {
		return nil, ctor.err
	}
	return ctor.inst, nil
}

// MustGet is Get for wiring paths where a missing service is a
// programming error.
func (c *Container) MustGet(key string) any {
	inst, err := c.Get(key)
	if err != nil {
		panic(err)
	}
	return inst
}
