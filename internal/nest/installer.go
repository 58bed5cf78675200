package nest

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nibzard/nestjob-go/internal/parallel"
)

// hookID identifies the installer's registration hook, so re-applying
// replaces it instead of stacking a second one.
const hookID = "nest"

// Options configures an Installer.
type Options struct {
	// SetDefault activates the nested variant of the library default
	// backend.
	SetDefault bool
	// AutoRegister hooks the registry so backends registered later get
	// nested variants as they are registered.
	AutoRegister bool
	// AliasSelfNesting registers a prefixed alias for unprefixed names whose
	// type already satisfies SelfNesting. When false such names are skipped.
	AliasSelfNesting bool
	// NJobs is the job count used when SetDefault activates the backend.
	NJobs  int
	Logger *log.Logger
}

// DefaultOptions returns the options Apply uses when none are given.
func DefaultOptions() Options {
	return Options{
		SetDefault:       true,
		AutoRegister:     true,
		AliasSelfNesting: true,
		NJobs:            -1,
	}
}

// Option modifies Options.
type Option func(*Options)

// WithSetDefault sets Options.SetDefault.
func WithSetDefault(enabled bool) Option {
	return func(o *Options) { o.SetDefault = enabled }
}

// WithAutoRegister sets Options.AutoRegister.
func WithAutoRegister(enabled bool) Option {
	return func(o *Options) { o.AutoRegister = enabled }
}

// WithAliasSelfNesting sets Options.AliasSelfNesting.
func WithAliasSelfNesting(enabled bool) Option {
	return func(o *Options) { o.AliasSelfNesting = enabled }
}

// WithNJobs sets Options.NJobs.
func WithNJobs(n int) Option {
	return func(o *Options) { o.NJobs = n }
}

// WithLogger sets Options.Logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Installer installs nested variants into one registry.
//
// Derived types are cached per base type for the installer's lifetime, so
// a base type registered under several names maps to a single variant.
type Installer struct {
	registry *parallel.Registry
	opts     Options
	logger   *log.Logger

	// derived caches base type -> nested type and synced records the base
	// type last installed per name. Registration hooks can fire from
	// concurrent Resolve calls, hence sync.Map.
	derived sync.Map
	synced  sync.Map
}

// NewInstaller creates an installer for r.
func NewInstaller(r *parallel.Registry, opts ...Option) *Installer {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Installer{registry: r, opts: o, logger: logger}
}

// Apply installs nested variants:
//
//  1. every unprefixed name registered now gets a "nested-" counterpart
//     derived from the type currently registered under it;
//  2. with AutoRegister, names registered later get one as they arrive;
//     without it, a hook left by an earlier Apply is removed;
//  3. every lazy external factory is wrapped so invoking it also installs
//     the nested variant, and the wrapper is reachable under the prefixed
//     name as well;
//  4. with SetDefault, the nested variant of parallel.DefaultBackend
//     becomes active.
//
// Apply can be called again, also from another Installer on the same
// registry; prefixed names and wrapped factories are never wrapped twice.
func (in *Installer) Apply() error {
	added := in.installNames(false)

	if in.opts.AutoRegister {
		in.registry.Observe(hookID, func(name string, t parallel.BackendType) {
			in.install(name, t)
		})
	} else {
		in.registry.Unobserve(hookID)
	}

	externals := in.wrapExternals()

	in.logger.Debug("Installed nested backends", "names", added, "external", externals, "auto_register", in.opts.AutoRegister)

	if in.opts.SetDefault {
		name := NestedName(parallel.DefaultBackend)
		if err := in.registry.Activate(name, in.opts.NJobs); err != nil {
			return fmt.Errorf("activating %s: %w", name, err)
		}
		in.logger.Info("Default backend set", "backend", name, "n_jobs", in.opts.NJobs)
	}
	return nil
}

// Sync installs nested variants for every name registered, or registered
// again with a different type, since the last Apply or Sync, and returns
// the prefixed names it installed. Callers that disable AutoRegister use it
// to pick up later registrations.
func (in *Installer) Sync() []string {
	return in.installNames(true)
}

// installNames installs variants for the unprefixed names in the registry.
// With changedOnly, names whose type was already installed are skipped.
func (in *Installer) installNames(changedOnly bool) []string {
	var added []string
	for _, name := range in.registry.Names() {
		if IsNested(name) {
			continue
		}
		t, ok := in.registry.Lookup(name)
		if !ok {
			continue
		}
		if changedOnly {
			if prev, seen := in.synced.Load(name); seen && sameType(prev.(parallel.BackendType), t) {
				continue
			}
		}
		if nested, ok := in.install(name, t); ok {
			added = append(added, nested)
		}
	}
	return added
}

// sameType reports whether a and b are the same comparable backend type
// value.
func sameType(a, b parallel.BackendType) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// Derive returns the cached nested variant of base, deriving it on first
// use.
func (in *Installer) Derive(base parallel.BackendType) parallel.BackendType {
	if base == nil || !reflect.TypeOf(base).Comparable() {
		return Derive(base)
	}
	if v, ok := in.derived.Load(base); ok {
		return v.(parallel.BackendType)
	}
	v, _ := in.derived.LoadOrStore(base, Derive(base))
	return v.(parallel.BackendType)
}

// install registers the nested variant of t under the prefixed form of
// name. It returns the prefixed name and whether anything was registered.
func (in *Installer) install(name string, t parallel.BackendType) (string, bool) {
	if IsNested(name) {
		return "", false
	}
	in.synced.Store(name, t)
	if _, ok := t.(SelfNesting); ok && !in.opts.AliasSelfNesting {
		in.logger.Debug("Skipping self-nesting backend", "backend", name, "type", t.TypeName())
		return "", false
	}
	nested := NestedName(name)
	variant := in.Derive(t)
	if err := in.registry.Register(nested, variant); err != nil {
		in.logger.Warn("Registering nested backend failed", "backend", nested, "err", err)
		return "", false
	}
	in.logger.Debug("Registered nested backend", "backend", nested, "type", variant.TypeName())
	return nested, true
}

// wrapExternals wraps each unprefixed lazy factory that is not wrapped yet
// and returns the names it wrapped. Wrapped factories are tagged in the
// registry, so other installers skip them too.
func (in *Installer) wrapExternals() []string {
	var wrapped []string
	for _, name := range in.registry.ExternalNames() {
		if IsNested(name) || in.registry.ExternalTagged(name, hookID) {
			continue
		}
		base, ok := in.registry.External(name)
		if !ok {
			continue
		}
		factory := in.wrapExternal(name, base)
		if err := in.registry.RegisterExternal(name, factory, hookID); err != nil {
			in.logger.Warn("Wrapping external backend failed", "backend", name, "err", err)
			continue
		}
		if err := in.registry.RegisterExternal(NestedName(name), factory, hookID); err != nil {
			in.logger.Warn("Wrapping external backend failed", "backend", NestedName(name), "err", err)
			continue
		}
		wrapped = append(wrapped, name)
	}
	return wrapped
}

func (in *Installer) wrapExternal(name string, base parallel.ExternalFactory) parallel.ExternalFactory {
	return func(r *parallel.Registry) error {
		if err := base(r); err != nil {
			return err
		}
		if t, ok := r.Lookup(name); ok {
			in.install(name, t)
		}
		return nil
	}
}

// Apply installs nested variants into parallel.DefaultRegistry() with a new
// Installer. Together with Installer.Apply it is the only code in this
// module that changes registry state.
func Apply(opts ...Option) error {
	return NewInstaller(parallel.DefaultRegistry(), opts...).Apply()
}
