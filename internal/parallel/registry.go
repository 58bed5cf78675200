package parallel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// RegisterHook is notified after a backend type is registered under name.
type RegisterHook func(name string, t BackendType)

// ExternalFactory registers an optional backend on first use. It receives
// the registry it should register into.
type ExternalFactory func(r *Registry) error

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it with the
// built-in backends on first use.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry maps names to backend types and lazy external factories, and
// holds the active backend selection.
type Registry struct {
	mu sync.RWMutex

	backends map[string]BackendType
	external map[string]ExternalFactory
	// externalTags marks external factories, e.g. ones already wrapped.
	externalTags map[string][]string

	hooks     map[string]RegisterHook
	hookOrder []string

	active     string
	activeJobs int
}

// NewRegistry creates a registry holding the built-in backends, with
// DefaultBackend active on every CPU.
func NewRegistry() *Registry {
	r := &Registry{
		backends:     make(map[string]BackendType),
		external:     make(map[string]ExternalFactory),
		externalTags: make(map[string][]string),
		hooks:        make(map[string]RegisterHook),
		active:       DefaultBackend,
		activeJobs:   -1,
	}
	r.backends[BackendSequential] = Sequential
	r.backends[BackendThreading] = Threading
	r.backends[BackendPool] = Pool
	return r
}

// Register registers a backend type under name, replacing any previous
// entry, then notifies the registration hooks.
func (r *Registry) Register(name string, t BackendType) error {
	if name == "" {
		return errors.New("backend must have a name")
	}
	if t == nil {
		return fmt.Errorf("cannot register nil backend type for %q", name)
	}

	r.mu.Lock()
	r.backends[name] = t
	hooks := make([]RegisterHook, 0, len(r.hookOrder))
	for _, id := range r.hookOrder {
		hooks = append(hooks, r.hooks[id])
	}
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(name, t)
	}
	return nil
}

// Lookup returns the backend type registered under name.
func (r *Registry) Lookup(name string) (BackendType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.backends[name]
	return t, ok
}

// Names returns all registered backend names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.backends)
}

// RegisterExternal registers a lazy factory under name, replacing any
// previous factory for that name together with its tags. The given tags are
// recorded against the new factory.
func (r *Registry) RegisterExternal(name string, f ExternalFactory, tags ...string) error {
	if name == "" {
		return errors.New("external backend must have a name")
	}
	if f == nil {
		return fmt.Errorf("cannot register nil external factory for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external[name] = f
	if len(tags) > 0 {
		r.externalTags[name] = append([]string(nil), tags...)
	} else {
		delete(r.externalTags, name)
	}
	return nil
}

// ExternalTagged reports whether the factory registered under name carries
// tag.
func (r *Registry) ExternalTagged(name, tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.externalTags[name] {
		if t == tag {
			return true
		}
	}
	return false
}

// External returns the lazy factory registered under name.
func (r *Registry) External(name string) (ExternalFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.external[name]
	return f, ok
}

// ExternalNames returns all lazy factory names in alphabetical order.
func (r *Registry) ExternalNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.external)
}

// Observe installs a registration hook under id. Installing a hook with an
// id already in use replaces the previous hook. Hooks run after the entry
// is stored, outside the registry lock, in installation order.
func (r *Registry) Observe(id string, hook RegisterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[id]; !exists {
		r.hookOrder = append(r.hookOrder, id)
	}
	r.hooks[id] = hook
}

// Unobserve removes the registration hook installed under id, if any.
func (r *Registry) Unobserve(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[id]; !exists {
		return
	}
	delete(r.hooks, id)
	for i, hid := range r.hookOrder {
		if hid == id {
			r.hookOrder = append(r.hookOrder[:i], r.hookOrder[i+1:]...)
			break
		}
	}
}

// Resolve returns the backend type for name. A missing name with a lazy
// external factory invokes the factory once and looks the name up again.
func (r *Registry) Resolve(name string) (BackendType, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	if f, ok := r.External(name); ok {
		if err := f(r); err != nil {
			return nil, fmt.Errorf("registering external backend %q: %w", name, err)
		}
		if t, ok := r.Lookup(name); ok {
			return t, nil
		}
	}
	return nil, &UnknownBackendError{Name: name, Known: r.Names()}
}

// Activate resolves name and makes it the active backend for runs that do
// not select one explicitly.
func (r *Registry) Activate(name string, nJobs int) error {
	if _, err := r.Resolve(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = name
	r.activeJobs = nJobs
	return nil
}

// Active returns the active backend name and job count.
func (r *Registry) Active() (string, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.activeJobs
}

// New resolves name and constructs a top-level backend of that type.
func (r *Registry) New(name string, cfg Config) (Backend, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return t.New(cfg), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
