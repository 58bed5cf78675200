package nest

import (
	"context"
	"strings"

	"github.com/nibzard/nestjob-go/internal/parallel"
)

// Prefix marks the names of nested variants. Names carrying it are never
// wrapped again.
const Prefix = "nested-"

// IsNested reports whether name already carries Prefix.
func IsNested(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// NestedName returns the prefixed name for name.
func NestedName(name string) string {
	if IsNested(name) {
		return name
	}
	return Prefix + name
}

// SelfNesting is implemented by backend types whose backends already
// resolve nested runs to another instance of the same type. Derive returns
// such types unchanged.
type SelfNesting interface {
	parallel.BackendType
	SelfNesting()
}

// Derive returns the nested variant of base: a type whose backends forward
// everything to a backend of base, except NestedBackend, which returns a
// new backend of the variant. Types that already satisfy SelfNesting are
// returned as is.
func Derive(base parallel.BackendType) parallel.BackendType {
	if base == nil {
		return nil
	}
	if _, ok := base.(SelfNesting); ok {
		return base
	}
	return &nestedType{base: base}
}

type nestedType struct {
	base parallel.BackendType
}

func (t *nestedType) TypeName() string {
	return "Nested" + t.base.TypeName()
}

func (t *nestedType) New(cfg parallel.Config) parallel.Backend {
	return &Backend{delegate: t.base.New(cfg), typ: t, cfg: cfg}
}

func (t *nestedType) SelfNesting() {}

// Base returns the type the variant was derived from.
func (t *nestedType) Base() parallel.BackendType {
	return t.base
}

// Backend is a backend of a derived nested type.
type Backend struct {
	delegate parallel.Backend
	typ      *nestedType
	cfg      parallel.Config
}

func (b *Backend) Kind() string { return b.typ.TypeName() }

func (b *Backend) NestingLevel() int { return b.delegate.NestingLevel() }

func (b *Backend) EffectiveJobs(nJobs int) int { return b.delegate.EffectiveJobs(nJobs) }

func (b *Backend) Execute(ctx context.Context, calls []parallel.Call, opts parallel.ExecOptions) error {
	return b.delegate.Execute(ctx, calls, opts)
}

// NestedBackend returns a new backend of the same nested type, one level
// deeper, with no parallelism hint. The delegate's own nested policy is
// never consulted.
func (b *Backend) NestedBackend() (parallel.Backend, int) {
	cfg := b.cfg
	cfg.NestingLevel = b.delegate.NestingLevel() + 1
	return b.typ.New(cfg), 0
}

// Close releases the delegate's resources.
func (b *Backend) Close() error {
	return parallel.CloseBackend(b.delegate)
}

// Unwrap returns the backend the nested backend forwards to.
func (b *Backend) Unwrap() parallel.Backend {
	return b.delegate
}
