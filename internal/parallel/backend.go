package parallel

import (
	"context"
	"io"
	"runtime"

	"github.com/charmbracelet/log"
)

// Call is a unit of work dispatched to a backend. The context carries the
// backend that nested Parallel runs inside the call should use.
type Call func(ctx context.Context) error

// ExecOptions controls a single Execute invocation.
type ExecOptions struct {
	// NJobs is the requested parallelism. Negative values count back from
	// the number of CPUs (-1 means all of them).
	NJobs int
	// FailFast stops dispatching new calls after the first error.
	FailFast bool
}

// Config is passed to BackendType.New.
type Config struct {
	NestingLevel int
	Logger       *log.Logger
}

// Backend executes batches of calls and decides what nested runs use.
type Backend interface {
	// Kind returns the name of the backend's type, e.g. "PoolBackend".
	Kind() string

	// NestingLevel is 0 for top-level backends and grows by one for every
	// level of parallel-within-parallel submission.
	NestingLevel() int

	// EffectiveJobs maps a requested job count to the parallelism the
	// backend will actually use.
	EffectiveJobs(nJobs int) int

	// Execute runs every call and returns once all of them finished.
	Execute(ctx context.Context, calls []Call, opts ExecOptions) error

	// NestedBackend returns the backend for Parallel runs started from
	// inside one of this backend's calls, and a parallelism hint (0 when
	// the backend has no preference).
	NestedBackend() (Backend, int)
}

// BackendType constructs backends of one kind. Registries map names to
// backend types.
type BackendType interface {
	TypeName() string
	New(cfg Config) Backend
}

type funcType struct {
	name string
	fn   func(cfg Config) Backend
}

// TypeFunc adapts a constructor function into a BackendType.
func TypeFunc(name string, fn func(cfg Config) Backend) BackendType {
	return &funcType{name: name, fn: fn}
}

func (t *funcType) TypeName() string { return t.name }

func (t *funcType) New(cfg Config) Backend { return t.fn(cfg) }

// CloseBackend releases a backend's resources if it holds any.
func CloseBackend(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// effectiveJobs resolves negative job counts against the CPU count.
func effectiveJobs(nJobs int) int {
	if nJobs < 0 {
		n := runtime.NumCPU() + 1 + nJobs
		if n < 1 {
			return 1
		}
		return n
	}
	if nJobs == 0 {
		return 1
	}
	return nJobs
}

func loggerOrDiscard(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.New(io.Discard)
}
