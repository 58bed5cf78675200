package parallel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// CallResult records the outcome of one call submitted to a WorkerPool.
type CallResult struct {
	ID       string
	Error    error
	Duration time.Duration
}

// WorkerPool manages concurrent call execution with bounded concurrency.
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	results    []CallResult
	errs       *multierror.Error
	failFast   bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool with bounded concurrency.
// If maxWorkers is 0, unlimited workers are allowed (bounded by submitted calls).
// If failFast is true, the context will be cancelled on the first error.
func NewWorkerPool(ctx context.Context, maxWorkers int, failFast bool) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
		failFast:   failFast,
		ctx:        ctx,
		cancel:     cancel,
		results:    make([]CallResult, 0),
	}
}

// Submit submits a call for execution. The call receives the pool's
// context, which is cancelled on the first error when failFast is set.
// Calls submitted after cancellation are dropped.
func (p *WorkerPool) Submit(id string, fn Call) {
	select {
	case <-p.ctx.Done():
		return
	default:
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.maxWorkers > 0 {
			select {
			case p.semaphore <- struct{}{}:
				defer func() { <-p.semaphore }()
			case <-p.ctx.Done():
				return
			}
		}

		select {
		case <-p.ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := fn(p.ctx)
		duration := time.Since(start)

		p.mu.Lock()
		defer p.mu.Unlock()

		p.results = append(p.results, CallResult{
			ID:       id,
			Error:    err,
			Duration: duration,
		})
		if err != nil {
			p.errs = multierror.Append(p.errs, fmt.Errorf("%s: %w", id, err))
			if p.failFast {
				p.cancel()
			}
		}
	}()
}

// Wait waits for all submitted calls to complete and returns their results
// together with the aggregated error, if any call failed.
func (p *WorkerPool) Wait() ([]CallResult, error) {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel()

	results := make([]CallResult, len(p.results))
	copy(results, p.results)

	return results, p.errs.ErrorOrNil()
}

// Results returns a snapshot of current results without waiting.
// This is safe to call from multiple goroutines.
func (p *WorkerPool) Results() []CallResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]CallResult, len(p.results))
	copy(results, p.results)
	return results
}

// Err returns the errors collected so far without waiting.
func (p *WorkerPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs.ErrorOrNil()
}

// Cancel cancels all pending work in the pool.
func (p *WorkerPool) Cancel() {
	p.cancel()
}
