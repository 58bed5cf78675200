// Package logging builds console loggers and writes JSONL run traces.
//
// Traces of demo runs are stored one file per run, grouped by the backend
// the run selected:
//
//	<log dir>/traces/<backend>/<run id>.jsonl
//
// Run ids start with the UTC start time, so sorting them orders runs.
package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	tracesDir = "traces"
	traceExt  = ".jsonl"
)

// RunLogger appends JSONL events to the trace of one run.
type RunLogger struct {
	Backend string
	RunID   string
	LogPath string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewRunLogger creates the trace file for a run on backend under logDir.
func NewRunLogger(logDir, backend string) (*RunLogger, error) {
	if logDir == "" {
		return nil, errors.New("log dir is empty")
	}
	dir := TraceDir(logDir, backend)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}

	id := NewRunID(time.Now())
	path := filepath.Join(dir, id+traceExt)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	return &RunLogger{
		Backend: backend,
		RunID:   id,
		LogPath: path,
		file:    file,
		enc:     json.NewEncoder(file),
	}, nil
}

// WriteEvent appends v to the trace as one JSON line. It is safe for
// concurrent use.
func (r *RunLogger) WriteEvent(v any) error {
	if r == nil || r.file == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(v); err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	return nil
}

// Close closes the trace file.
func (r *RunLogger) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// NewRunID returns a run id for a run started at t.
func NewRunID(t time.Time) string {
	return fmt.Sprintf("%s-%d", t.UTC().Format("20060102T150405.000000000"), os.Getpid())
}

// TraceDir returns the directory that holds the traces of runs on backend.
func TraceDir(logDir, backend string) string {
	return filepath.Join(logDir, tracesDir, backendDir(backend))
}

// backendDir maps a backend name onto a single path element.
func backendDir(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// Trace is a trace file found under a log dir.
type Trace struct {
	Backend string
	RunID   string
	Path    string
}

// ListTraces returns the traces under logDir, oldest run first. With a
// non-empty backend only that backend's traces are listed. A log dir
// without traces yields none.
func ListTraces(logDir, backend string) ([]Trace, error) {
	root := filepath.Join(logDir, tracesDir)
	dirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trace dir: %w", err)
	}

	var traces []Trace
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		if backend != "" && dir.Name() != backendDir(backend) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("read trace dir: %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), traceExt) {
				continue
			}
			traces = append(traces, Trace{
				Backend: dir.Name(),
				RunID:   strings.TrimSuffix(f.Name(), traceExt),
				Path:    filepath.Join(root, dir.Name(), f.Name()),
			})
		}
	}

	sort.Slice(traces, func(i, j int) bool {
		if traces[i].RunID != traces[j].RunID {
			return traces[i].RunID < traces[j].RunID
		}
		return traces[i].Backend < traces[j].Backend
	})
	return traces, nil
}

// LatestTrace returns the most recent trace under logDir, optionally for
// one backend. ok is false when there is none.
func LatestTrace(logDir, backend string) (trace Trace, ok bool, err error) {
	traces, err := ListTraces(logDir, backend)
	if err != nil || len(traces) == 0 {
		return Trace{}, false, err
	}
	return traces[len(traces)-1], true, nil
}

// TailLog writes the last n lines of the file at path to w, or all of it
// when n <= 0. With follow it keeps copying appended data until ctx is done.
func TailLog(ctx context.Context, w io.Writer, path string, n int, follow bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer file.Close()

	if err := copyLastLines(w, file, n); err != nil {
		return err
	}
	if !follow {
		return nil
	}
	return tailFollow(ctx, w, file)
}

func copyLastLines(w io.Writer, r io.Reader, n int) error {
	if n <= 0 {
		_, err := io.Copy(w, r)
		return err
	}

	ring := make([]string, n)
	count := 0
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			ring[count%n] = line
			count++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read trace: %w", err)
		}
	}

	start := 0
	if count > n {
		start = count - n
	}
	for i := start; i < count; i++ {
		if _, err := io.WriteString(w, ring[i%n]); err != nil {
			return err
		}
	}
	return nil
}

// tailFollow copies data appended to file until ctx is done.
func tailFollow(ctx context.Context, w io.Writer, file *os.File) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := io.Copy(w, file); err != nil {
			return err
		}
	}
}
