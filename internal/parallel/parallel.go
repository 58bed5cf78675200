package parallel

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
)

// Parallel dispatches calls to a backend.
//
// The backend is chosen in this order: the Backend name if set, the
// backend carried by the context (set by an enclosing Parallel run), then
// the registry's active selection.
type Parallel struct {
	// Registry to resolve backends from. Nil means DefaultRegistry().
	Registry *Registry
	// Backend names a registered backend to use instead of the active one.
	Backend string
	// NJobs overrides the job count from the context or active selection.
	NJobs int
	// FailFast stops dispatching after the first failed call.
	FailFast bool
	Logger   *log.Logger
}

func (p *Parallel) registry() *Registry {
	if p.Registry != nil {
		return p.Registry
	}
	return DefaultRegistry()
}

// resolve returns the backend for this run, its job count, and whether the
// run owns the backend (and so must close it).
func (p *Parallel) resolve(ctx context.Context) (Backend, int, bool, error) {
	logger := loggerOrDiscard(p.Logger)
	var (
		backend Backend
		nJobs   int
		owned   bool
	)
	if p.Backend != "" {
		b, err := p.registry().New(p.Backend, Config{Logger: logger})
		if err != nil {
			return nil, 0, false, err
		}
		backend, owned = b, true
	} else if b, n, ok := BackendFromContext(ctx); ok {
		backend, nJobs = b, n
	} else {
		b, n, err := p.registry().ActiveBackend(ctx, logger)
		if err != nil {
			return nil, 0, false, err
		}
		backend, nJobs, owned = b, n, true
	}
	if p.NJobs != 0 {
		nJobs = p.NJobs
	}
	if nJobs == 0 {
		nJobs = 1
	}
	return backend, nJobs, owned, nil
}

// Run executes calls on the selected backend. Every call runs with the
// backend's nested choice stored in its context, so Parallel runs started
// inside a call pick it up.
func (p *Parallel) Run(ctx context.Context, calls ...Call) (err error) {
	backend, nJobs, owned, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	if owned {
		defer func() {
			if cerr := CloseBackend(backend); cerr != nil {
				err = multierror.Append(err, fmt.Errorf("closing %s: %w", backend.Kind(), cerr)).ErrorOrNil()
			}
		}()
	}

	nested, hint := backend.NestedBackend()
	defer func() {
		if cerr := CloseBackend(nested); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("closing nested %s: %w", nested.Kind(), cerr)).ErrorOrNil()
		}
	}()

	loggerOrDiscard(p.Logger).Debug("Parallel run",
		"backend", backend.Kind(),
		"level", backend.NestingLevel(),
		"calls", len(calls),
		"jobs", backend.EffectiveJobs(nJobs),
		"nested", nested.Kind(),
	)

	wrapped := make([]Call, len(calls))
	for i, call := range calls {
		wrapped[i] = func(ctx context.Context) error {
			return call(WithBackend(ctx, nested, hint))
		}
	}
	return backend.Execute(ctx, wrapped, ExecOptions{NJobs: nJobs, FailFast: p.FailFast})
}

// Map runs fns on p and returns their results in submission order. On
// error the results of successful calls are still filled in.
func Map[T any](ctx context.Context, p *Parallel, fns ...func(ctx context.Context) (T, error)) ([]T, error) {
	out := make([]T, len(fns))
	calls := make([]Call, len(fns))
	for i, fn := range fns {
		calls[i] = func(ctx context.Context) error {
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		}
	}
	err := p.Run(ctx, calls...)
	return out, err
}
