package demo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nibzard/nestjob-go/internal/nest"
	"github.com/nibzard/nestjob-go/internal/parallel"
)

func kindsByLevel(summaries []LevelSummary) map[int]map[string]int {
	out := map[int]map[string]int{}
	for _, s := range summaries {
		out[s.Level] = s.Kinds
	}
	return out
}

func TestRun_Baseline(t *testing.T) {
	r := parallel.NewRegistry()
	reports, err := Run(context.Background(), Options{Depth: 3, Fanout: 2, NJobs: 2, Registry: r})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2+4+8 {
		t.Fatalf("got %d reports, want 14", len(reports))
	}

	summaries := Summarize(reports)
	want := map[int]map[string]int{
		1: {"ThreadingBackend": 2},
		2: {"SequentialBackend": 4},
		3: {"SequentialBackend": 8},
	}
	if diff := cmp.Diff(want, kindsByLevel(summaries)); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	if !Degraded(summaries) {
		t.Error("baseline run should degrade")
	}
}

func TestRun_Nested(t *testing.T) {
	r := parallel.NewRegistry()
	if err := nest.NewInstaller(r).Apply(); err != nil {
		t.Fatal(err)
	}

	var observed atomic.Int32
	reports, err := Run(context.Background(), Options{
		Depth:    3,
		Fanout:   2,
		NJobs:    2,
		Registry: r,
		Observer: func(Report) { observed.Add(1) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if int(observed.Load()) != len(reports) {
		t.Errorf("observer saw %d reports, want %d", observed.Load(), len(reports))
	}

	summaries := Summarize(reports)
	want := map[int]map[string]int{
		1: {"NestedPoolBackend": 2},
		2: {"NestedPoolBackend": 4},
		3: {"NestedPoolBackend": 8},
	}
	if diff := cmp.Diff(want, kindsByLevel(summaries)); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	if Degraded(summaries) {
		t.Error("nested run should not degrade")
	}

	for _, rep := range reports {
		if rep.NestingLevel != rep.Level {
			t.Errorf("%s: nesting level %d, want %d", rep.Path, rep.NestingLevel, rep.Level)
		}
	}
}

func TestRun_ExplicitBackend(t *testing.T) {
	r := parallel.NewRegistry()
	if err := nest.NewInstaller(r, nest.WithSetDefault(false)).Apply(); err != nil {
		t.Fatal(err)
	}
	reports, err := Run(context.Background(), Options{Depth: 2, Fanout: 1, Registry: r, Backend: "nested-threading"})
	if err != nil {
		t.Fatal(err)
	}
	paths := make([]string, len(reports))
	for i, rep := range reports {
		paths[i] = rep.Path
		if rep.Kind != "NestedThreadingBackend" {
			t.Errorf("%s: kind %s", rep.Path, rep.Kind)
		}
	}
	if diff := cmp.Diff([]string{"0", "0.0"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		_, err := Run(context.Background(), Options{Depth: 1, Registry: parallel.NewRegistry(), Backend: "nested-pool"})
		if !errors.Is(err, parallel.ErrUnknownBackend) {
			t.Errorf("expected unknown backend, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, Options{Depth: 2, Fanout: 2, Registry: parallel.NewRegistry()})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("zero depth", func(t *testing.T) {
		reports, err := Run(context.Background(), Options{Depth: 0})
		if err != nil || len(reports) != 0 {
			t.Errorf("got %v, %v", reports, err)
		}
	})
}

func TestDegraded(t *testing.T) {
	tests := []struct {
		name      string
		summaries []LevelSummary
		want      bool
	}{
		{"empty", nil, false},
		{"single level", []LevelSummary{{Level: 1, Kinds: map[string]int{"A": 2}}}, false},
		{"same kind", []LevelSummary{
			{Level: 1, Kinds: map[string]int{"A": 2}},
			{Level: 2, Kinds: map[string]int{"A": 4}},
		}, false},
		{"changes kind", []LevelSummary{
			{Level: 1, Kinds: map[string]int{"A": 2}},
			{Level: 2, Kinds: map[string]int{"B": 4}},
		}, true},
		{"mixed top level", []LevelSummary{
			{Level: 1, Kinds: map[string]int{"A": 1, "B": 1}},
			{Level: 2, Kinds: map[string]int{"A": 4}},
		}, true},
		{"empty top level", []LevelSummary{{Level: 1, Kinds: map[string]int{}}}, true},
		{"mixed level", []LevelSummary{
			{Level: 1, Kinds: map[string]int{"A": 2}},
			{Level: 2, Kinds: map[string]int{"A": 2, "B": 2}},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Degraded(tt.summaries); got != tt.want {
				t.Errorf("Degraded() = %v, want %v", got, tt.want)
			}
		})
	}
}
