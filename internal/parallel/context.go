package parallel

import (
	"context"

	"github.com/charmbracelet/log"
)

// activeKey is an unexported type to prevent collisions with context keys from other packages.
type activeKey struct{}

type activeBackend struct {
	backend Backend
	nJobs   int
}

// WithBackend returns a context in which b is the active backend. Parallel
// stores each backend's nested choice this way before running a call.
func WithBackend(ctx context.Context, b Backend, nJobs int) context.Context {
	return context.WithValue(ctx, activeKey{}, activeBackend{backend: b, nJobs: nJobs})
}

// BackendFromContext returns the backend stored by WithBackend.
func BackendFromContext(ctx context.Context) (Backend, int, bool) {
	a, ok := ctx.Value(activeKey{}).(activeBackend)
	if !ok || a.backend == nil {
		return nil, 0, false
	}
	return a.backend, a.nJobs, true
}

// ActiveBackend returns the backend a Parallel run in ctx would use: the
// one carried by ctx, or a new top-level instance of the registry's active
// selection.
func (r *Registry) ActiveBackend(ctx context.Context, logger *log.Logger) (Backend, int, error) {
	if b, n, ok := BackendFromContext(ctx); ok {
		return b, n, nil
	}
	name, nJobs := r.Active()
	b, err := r.New(name, Config{Logger: logger})
	if err != nil {
		return nil, 0, err
	}
	return b, nJobs, nil
}

// ActiveBackend is Registry.ActiveBackend on the default registry.
func ActiveBackend(ctx context.Context) (Backend, int, error) {
	return DefaultRegistry().ActiveBackend(ctx, nil)
}
