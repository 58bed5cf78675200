// Package ui provides optional terminal interfaces.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nibzard/nestjob-go/internal/demo"
)

// TUIOption configures the TUI behavior.
type TUIOption func(*tuiConfig)

// tuiConfig holds TUI configuration.
type tuiConfig struct {
	title        string
	tickInterval time.Duration
	output       io.Writer
}

// WithTitle sets the heading shown above the run.
func WithTitle(title string) TUIOption {
	return func(c *tuiConfig) {
		c.title = title
	}
}

// WithTickInterval sets how often the elapsed time is refreshed.
func WithTickInterval(d time.Duration) TUIOption {
	return func(c *tuiConfig) {
		c.tickInterval = d
	}
}

// WithOutput sets the terminal the TUI draws on. It must be a TTY.
func WithOutput(w io.Writer) TUIOption {
	return func(c *tuiConfig) {
		c.output = w
	}
}

// RunDemo runs the demo workload in the background and shows its reports
// live. It returns the workload's reports once the user quits.
func RunDemo(ctx context.Context, opts demo.Options, tuiOpts ...TUIOption) ([]demo.Report, error) {
	c := &tuiConfig{
		title:        "nestjob demo",
		tickInterval: 250 * time.Millisecond,
		output:       os.Stdout,
	}
	for _, opt := range tuiOpts {
		opt(c)
	}

	if !IsTTY(c.output) {
		return nil, fmt.Errorf("tui requires a TTY")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reportCh := make(chan demo.Report, 64)
	run := &runResult{done: make(chan struct{})}
	observer := opts.Observer
	opts.Observer = func(r demo.Report) {
		if observer != nil {
			observer(r)
		}
		select {
		case reportCh <- r:
		case <-ctx.Done():
		}
	}
	go func() {
		run.reports, run.err = demo.Run(ctx, opts)
		close(run.done)
		close(reportCh)
	}()

	model := newTUIModel(c, opts, reportCh, run)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithOutput(c.output),
	)
	finalModel, err := program.Run()
	if err != nil {
		return nil, err
	}
	m, ok := finalModel.(*tuiModel)
	if !ok || !m.done {
		// The user quit before the run finished.
		cancel()
	}
	<-run.done
	return run.reports, run.err
}

// runResult is filled in by the workload goroutine before done is closed.
type runResult struct {
	done    chan struct{}
	reports []demo.Report
	err     error
}

type tuiModel struct {
	cfg      *tuiConfig
	opts     demo.Options
	reportCh <-chan demo.Report
	run      *runResult

	started  time.Time
	now      time.Time
	total    int
	recent   []demo.Report
	levels   map[int]map[string]int
	done     bool
	runErr   error
	showHelp bool
}

type tickMsg time.Time

type reportMsg struct {
	report demo.Report
}

type runDoneMsg struct {
	err error
}

func newTUIModel(cfg *tuiConfig, opts demo.Options, reportCh <-chan demo.Report, run *runResult) *tuiModel {
	return &tuiModel{
		cfg:      cfg,
		opts:     opts,
		reportCh: reportCh,
		run:      run,
		total:    expectedCalls(opts.Depth, opts.Fanout),
		levels:   make(map[int]map[string]int),
	}
}

// expectedCalls is fanout + fanout^2 + ... + fanout^depth.
func expectedCalls(depth, fanout int) int {
	if fanout < 1 {
		fanout = 1
	}
	total, level := 0, 1
	for i := 0; i < depth; i++ {
		level *= fanout
		total += level
	}
	return total
}

func (m *tuiModel) Init() tea.Cmd {
	m.started = time.Now()
	m.now = m.started
	return tea.Batch(tickCmd(m.cfg.tickInterval), waitForReport(m.reportCh, m.run))
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "h", "?":
			m.showHelp = !m.showHelp
			return m, nil
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, tickCmd(m.cfg.tickInterval)
	case reportMsg:
		m.record(msg.report)
		return m, waitForReport(m.reportCh, m.run)
	case runDoneMsg:
		m.done = true
		m.now = time.Now()
		m.runErr = msg.err
	}
	return m, nil
}

func (m *tuiModel) record(r demo.Report) {
	kinds, ok := m.levels[r.Level]
	if !ok {
		kinds = make(map[string]int)
		m.levels[r.Level] = kinds
	}
	kinds[r.Kind]++
	m.recent = append(m.recent, r)
	if len(m.recent) > 5 {
		m.recent = m.recent[len(m.recent)-5:]
	}
}

func (m *tuiModel) View() string {
	var b strings.Builder
	writeTitle(&b, m.cfg.title)

	if m.showHelp {
		writeHelp(&b)
		writeFooter(&b, m.done)
		return b.String()
	}

	writeProgress(&b, m)
	writeLevels(&b, m.levels, m.opts.Depth)
	writeRecent(&b, m.recent)
	if m.runErr != nil {
		b.WriteString("Error:\n")
		b.WriteString("  " + m.runErr.Error() + "\n\n")
	}
	writeFooter(&b, m.done)
	return b.String()
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForReport(ch <-chan demo.Report, run *runResult) tea.Cmd {
	return func() tea.Msg {
		report, ok := <-ch
		if !ok {
			<-run.done
			return runDoneMsg{err: run.err}
		}
		return reportMsg{report: report}
	}
}

func writeTitle(b *strings.Builder, title string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
}

func writeProgress(b *strings.Builder, m *tuiModel) {
	seen := 0
	for _, kinds := range m.levels {
		for _, n := range kinds {
			seen += n
		}
	}
	status := "running"
	if m.done {
		status = "finished"
	}
	elapsed := m.now.Sub(m.started).Round(time.Millisecond)
	b.WriteString(fmt.Sprintf("  %s: %d/%d calls in %s\n\n", status, seen, m.total, elapsed))
}

func writeLevels(b *strings.Builder, levels map[int]map[string]int, depth int) {
	b.WriteString("Backends by level\n\n")
	for level := 1; level <= depth; level++ {
		kinds := levels[level]
		if len(kinds) == 0 {
			b.WriteString(fmt.Sprintf("  %d  waiting\n", level))
			continue
		}
		names := make([]string, 0, len(kinds))
		for kind := range kinds {
			names = append(names, kind)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, kind := range names {
			parts[i] = fmt.Sprintf("%s x%d", kind, kinds[kind])
		}
		b.WriteString(fmt.Sprintf("  %d  %s\n", level, strings.Join(parts, ", ")))
	}
	b.WriteString("\n")
}

func writeRecent(b *strings.Builder, recent []demo.Report) {
	b.WriteString("Recent calls\n\n")
	if len(recent) == 0 {
		b.WriteString("  No calls finished yet.\n\n")
		return
	}
	for _, r := range recent {
		b.WriteString(fmt.Sprintf("  [%s] %s level %d (%s)\n", r.Path, r.Kind, r.NestingLevel, r.Duration.Round(time.Microsecond)))
	}
	b.WriteString("\n")
}

func writeHelp(b *strings.Builder) {
	b.WriteString("Keyboard Shortcuts\n\n")
	b.WriteString("  q, ctrl+c    Quit\n")
	b.WriteString("  h, ?         Toggle this help screen\n\n")
}

func writeFooter(b *strings.Builder, done bool) {
	if done {
		b.WriteString("Run finished | h for help | q to quit\n")
		return
	}
	b.WriteString("Press h for help | q to quit\n")
}

// IsTTY returns true if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
