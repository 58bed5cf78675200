package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Names of the built-in backends.
const (
	BackendSequential = "sequential"
	BackendThreading  = "threading"
	BackendPool       = "pool"

	// DefaultBackend is the backend new registries activate.
	DefaultBackend = BackendPool
)

// ErrBackendClosed is returned by Execute on a backend that was closed.
var ErrBackendClosed = errors.New("backend closed")

// Built-in backend types.
var (
	Sequential BackendType = sequentialType{}
	Threading  BackendType = threadingType{}
	Pool       BackendType = poolType{}
)

type sequentialType struct{}

func (sequentialType) TypeName() string { return "SequentialBackend" }

func (sequentialType) New(cfg Config) Backend {
	return &SequentialBackend{level: cfg.NestingLevel, logger: loggerOrDiscard(cfg.Logger)}
}

type threadingType struct{}

func (threadingType) TypeName() string { return "ThreadingBackend" }

func (threadingType) New(cfg Config) Backend {
	return &ThreadingBackend{level: cfg.NestingLevel, logger: loggerOrDiscard(cfg.Logger)}
}

type poolType struct{}

func (poolType) TypeName() string { return "PoolBackend" }

func (poolType) New(cfg Config) Backend {
	return &PoolBackend{level: cfg.NestingLevel, logger: loggerOrDiscard(cfg.Logger)}
}

// degradedNested is the baseline nesting policy: one level of threads,
// then sequential execution.
func degradedNested(level int, logger *log.Logger) (Backend, int) {
	next := level + 1
	cfg := Config{NestingLevel: next, Logger: logger}
	if next > 1 {
		return Sequential.New(cfg), 0
	}
	return Threading.New(cfg), 0
}

// SequentialBackend runs calls inline, one after another.
type SequentialBackend struct {
	level  int
	logger *log.Logger
}

func (b *SequentialBackend) Kind() string { return Sequential.TypeName() }

func (b *SequentialBackend) NestingLevel() int { return b.level }

func (b *SequentialBackend) EffectiveJobs(int) int { return 1 }

func (b *SequentialBackend) Execute(ctx context.Context, calls []Call, opts ExecOptions) error {
	var result *multierror.Error
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if err := call(ctx); err != nil {
			if opts.FailFast {
				return fmt.Errorf("call %d: %w", i, err)
			}
			result = multierror.Append(result, fmt.Errorf("call %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

func (b *SequentialBackend) NestedBackend() (Backend, int) {
	return Sequential.New(Config{NestingLevel: b.level + 1, Logger: b.logger}), 0
}

// ThreadingBackend runs each call on its own goroutine, bounded by the
// effective job count.
type ThreadingBackend struct {
	level  int
	logger *log.Logger
}

func (b *ThreadingBackend) Kind() string { return Threading.TypeName() }

func (b *ThreadingBackend) NestingLevel() int { return b.level }

func (b *ThreadingBackend) EffectiveJobs(nJobs int) int { return effectiveJobs(nJobs) }

func (b *ThreadingBackend) Execute(ctx context.Context, calls []Call, opts ExecOptions) error {
	limit := b.EffectiveJobs(opts.NJobs)
	if opts.FailFast {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, call := range calls {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				if err := call(gctx); err != nil {
					return fmt.Errorf("call %d: %w", i, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return ctx.Err()
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	g.SetLimit(limit)
	for i, call := range calls {
		g.Go(func() error {
			if err := call(ctx); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("call %d: %w", i, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return result.ErrorOrNil()
}

func (b *ThreadingBackend) NestedBackend() (Backend, int) {
	return degradedNested(b.level, b.logger)
}

// PoolBackend dispatches calls to a bounded WorkerPool. It is the default
// production backend.
type PoolBackend struct {
	level  int
	logger *log.Logger
	closed atomic.Bool
}

func (b *PoolBackend) Kind() string { return Pool.TypeName() }

func (b *PoolBackend) NestingLevel() int { return b.level }

func (b *PoolBackend) EffectiveJobs(nJobs int) int { return effectiveJobs(nJobs) }

func (b *PoolBackend) Execute(ctx context.Context, calls []Call, opts ExecOptions) error {
	if b.closed.Load() {
		return ErrBackendClosed
	}
	workers := b.EffectiveJobs(opts.NJobs)
	b.logger.Debug("Dispatching to pool", "calls", len(calls), "workers", workers, "level", b.level)

	pool := NewWorkerPool(ctx, workers, opts.FailFast)
	for i, call := range calls {
		pool.Submit(fmt.Sprintf("call %d", i), call)
	}
	_, err := pool.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (b *PoolBackend) NestedBackend() (Backend, int) {
	return degradedNested(b.level, b.logger)
}

// Close marks the backend as closed; later Execute calls fail.
func (b *PoolBackend) Close() error {
	b.closed.Store(true)
	return nil
}
