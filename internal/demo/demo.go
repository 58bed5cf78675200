// Package demo runs a recursive workload that shows which backend each
// nesting level of a Parallel run lands on.
package demo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/nestjob-go/internal/parallel"
)

// Report describes one call of the workload.
type Report struct {
	// Level is the recursion depth of the call, starting at 1.
	Level int `json:"level"`
	// Path identifies the call, e.g. "0.1.1".
	Path string `json:"path"`
	// Kind is the type name of the backend the call ran on.
	Kind string `json:"kind"`
	// NestingLevel is the backend's own nesting level.
	NestingLevel int           `json:"nesting_level"`
	Duration     time.Duration `json:"duration"`
}

// Options configures Run.
type Options struct {
	// Depth is the number of nested levels. Zero runs nothing.
	Depth int
	// Fanout is the number of calls each level submits.
	Fanout int
	// NJobs is passed to every Parallel run.
	NJobs    int
	FailFast bool
	// Backend names the top-level backend; empty uses the active one.
	Backend  string
	Registry *parallel.Registry
	// Work is how long each leaf call sleeps, so calls overlap.
	Work   time.Duration
	Logger *log.Logger
	// Observer, when set, receives every report as it is produced. It may
	// be called from several goroutines at once.
	Observer func(Report)
}

// Run executes the workload and returns one report per call, ordered by
// path.
func Run(ctx context.Context, opts Options) ([]Report, error) {
	if opts.Fanout < 1 {
		opts.Fanout = 1
	}
	if opts.Depth <= 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		reports []Report
	)
	emit := func(r Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
		if opts.Observer != nil {
			opts.Observer(r)
		}
	}

	w := &walker{opts: opts, emit: emit}
	err := w.level(ctx, 1, "", opts.Backend)

	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
	return reports, err
}

type walker struct {
	opts Options
	emit func(Report)
}

// level submits Fanout calls; each reports the backend it sees and recurses
// until Depth is reached.
func (w *walker) level(ctx context.Context, depth int, prefix, backend string) error {
	p := &parallel.Parallel{
		Registry: w.opts.Registry,
		Backend:  backend,
		NJobs:    w.opts.NJobs,
		FailFast: w.opts.FailFast,
		Logger:   w.opts.Logger,
	}

	fns := make([]func(context.Context) (struct{}, error), w.opts.Fanout)
	for i := range fns {
		path := strconv.Itoa(i)
		if prefix != "" {
			path = prefix + "." + path
		}
		fns[i] = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.call(ctx, depth, path)
		}
	}
	_, err := parallel.Map(ctx, p, fns...)
	return err
}

func (w *walker) call(ctx context.Context, depth int, path string) error {
	start := time.Now()
	b, _, ok := parallel.BackendFromContext(ctx)
	if !ok {
		return fmt.Errorf("call %s: no backend in context", path)
	}
	if depth < w.opts.Depth {
		if err := w.level(ctx, depth+1, path, ""); err != nil {
			return err
		}
	} else if w.opts.Work > 0 {
		select {
		case <-time.After(w.opts.Work):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.emit(Report{
		Level:        depth,
		Path:         path,
		Kind:         b.Kind(),
		NestingLevel: b.NestingLevel(),
		Duration:     time.Since(start),
	})
	return nil
}

// LevelSummary counts the backend kinds observed at one level.
type LevelSummary struct {
	Level int
	Calls int
	Kinds map[string]int
}

// Summarize groups reports by level, shallowest first.
func Summarize(reports []Report) []LevelSummary {
	byLevel := map[int]*LevelSummary{}
	for _, r := range reports {
		s, ok := byLevel[r.Level]
		if !ok {
			s = &LevelSummary{Level: r.Level, Kinds: map[string]int{}}
			byLevel[r.Level] = s
		}
		s.Calls++
		s.Kinds[r.Kind]++
	}
	out := make([]LevelSummary, 0, len(byLevel))
	for _, s := range byLevel {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// Degraded reports whether any level ran on a backend kind other than the
// one observed at level 1. A level 1 that already mixes kinds counts as
// degraded.
func Degraded(summaries []LevelSummary) bool {
	if len(summaries) == 0 {
		return false
	}
	if len(summaries[0].Kinds) != 1 {
		return true
	}
	var top string
	for kind := range summaries[0].Kinds {
		top = kind
	}
	for _, s := range summaries[1:] {
		if len(s.Kinds) != 1 || s.Kinds[top] == 0 {
			return true
		}
	}
	return false
}
