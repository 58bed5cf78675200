// Package cmd implements the CLI command structure for nestjob.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/nestjob-go/internal/config"
	"github.com/nibzard/nestjob-go/internal/demo"
	"github.com/nibzard/nestjob-go/internal/logging"
	"github.com/nibzard/nestjob-go/internal/nest"
	"github.com/nibzard/nestjob-go/internal/parallel"
	"github.com/nibzard/nestjob-go/internal/ui"
)

// Version is set via ldflags at build time.
var Version = "dev"

// app carries what every subcommand needs.
type app struct {
	cws      *config.ConfigWithSources
	cfg      *config.Config
	registry *parallel.Registry
	logger   *log.Logger
	stdout   io.Writer
	stderr   io.Writer
}

// Run executes the nestjob CLI against the process-wide backend registry.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, parallel.DefaultRegistry(), os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, registry *parallel.Registry, stdout, stderr io.Writer) error {
	// Create a flag set for global options
	fs := flag.NewFlagSet("nestjob", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		printUsage(fs, stderr)
	}
	help := fs.Bool("help", false, "Show help")
	fs.BoolVar(help, "h", false, "Show help")
	showVersion := fs.Bool("version", false, "Show version")
	fs.BoolVar(showVersion, "v", false, "Show version")

	cws, err := config.LoadWithSources(fs, args)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *help {
		printUsage(fs, stdout)
		return nil
	}
	if *showVersion {
		return versionCommand(stdout)
	}

	a := &app{
		cws:      cws,
		cfg:      cws.Config,
		registry: registry,
		logger:   logging.NewFromConfig(stderr, cws.Config.LogLevel, cws.Config.LogFormat, cws.Config.LogTimestamps, cws.Config.LogCaller),
		stdout:   stdout,
		stderr:   stderr,
	}

	// Determine the subcommand
	// If no args or first arg is a flag, use "demo" as default
	subcommand := "demo"
	remainingArgs := fs.Args()
	if len(remainingArgs) > 0 && !strings.HasPrefix(remainingArgs[0], "-") {
		subcommand = remainingArgs[0]
		remainingArgs = remainingArgs[1:]
	}

	switch subcommand {
	case "demo":
		return a.demoCommand(ctx, remainingArgs)
	case "backends":
		return a.backendsCommand(remainingArgs)
	case "config":
		return a.configCommand(remainingArgs)
	case "tail":
		return a.tailCommand(ctx, remainingArgs)
	case "version":
		return versionCommand(stdout)
	case "help":
		printUsage(fs, stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", subcommand)
		printUsage(fs, stderr)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

// install applies the nested-backend installer to the app's registry using
// the [nest] config section.
func (a *app) install() error {
	in := nest.NewInstaller(a.registry,
		nest.WithSetDefault(a.cfg.Nest.SetDefault),
		nest.WithAutoRegister(a.cfg.Nest.AutoRegister),
		nest.WithAliasSelfNesting(a.cfg.Nest.AliasSelfNesting),
		nest.WithNJobs(a.cfg.NJobs),
		nest.WithLogger(a.logger),
	)
	if err := in.Apply(); err != nil {
		return fmt.Errorf("installing nested backends: %w", err)
	}
	return nil
}

// demoCommand runs the recursive workload and reports the backend seen at
// every level.
func (a *app) demoCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("nestjob demo", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	uiMode := fs.String("ui", "", "UI mode (tui for terminal UI)")
	trace := fs.Bool("trace", false, "Write a JSONL trace of every call to the log directory")
	noNest := fs.Bool("no-nest", false, "Run without installing nested backends")
	work := fs.Duration("work", 10*time.Millisecond, "Time each leaf call spends working")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if !*noNest {
		if err := a.install(); err != nil {
			return err
		}
	}

	opts := demo.Options{
		Depth:    a.cfg.Demo.Depth,
		Fanout:   a.cfg.Demo.Fanout,
		NJobs:    a.cfg.NJobs,
		FailFast: a.cfg.FailFast,
		Backend:  a.cfg.Backend,
		Registry: a.registry,
		Work:     *work,
		Logger:   a.logger,
	}

	if *trace {
		active, jobs := a.registry.Active()
		backend := firstNonEmpty(a.cfg.Backend, active)
		runLog, err := logging.NewRunLogger(a.cfg.LogDir, backend)
		if err != nil {
			return fmt.Errorf("opening trace: %w", err)
		}
		defer runLog.Close()
		a.logger.Info("Tracing demo run", "path", runLog.LogPath)

		if err := runLog.WriteEvent(traceStart{
			Event:   "start",
			RunID:   runLog.RunID,
			Backend: backend,
			NJobs:   jobs,
			Depth:   opts.Depth,
			Fanout:  opts.Fanout,
		}); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
		opts.Observer = func(r demo.Report) {
			if err := runLog.WriteEvent(traceCall{Event: "call", Report: r}); err != nil {
				a.logger.Warn("Writing trace event failed", "err", err)
			}
		}
	}

	var (
		reports []demo.Report
		err     error
	)
	if *uiMode == "tui" {
		reports, err = ui.RunDemo(ctx, opts, ui.WithTitle("nestjob demo: "+a.describeBackend()))
	} else {
		reports, err = demo.Run(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("demo run: %w", err)
	}

	summaries := demo.Summarize(reports)
	fmt.Fprintf(a.stdout, "Backend: %s\n\n", a.describeBackend())
	tw := tabwriter.NewWriter(a.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tCALLS\tBACKENDS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", s.Level, s.Calls, formatKinds(s.Kinds))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout)
	if demo.Degraded(summaries) {
		fmt.Fprintln(a.stdout, "Nested levels degraded to a different backend.")
	} else {
		fmt.Fprintln(a.stdout, "Every level ran on the same backend.")
	}
	return nil
}

type traceStart struct {
	Event   string `json:"event"`
	RunID   string `json:"run_id"`
	Backend string `json:"backend"`
	NJobs   int    `json:"n_jobs"`
	Depth   int    `json:"depth"`
	Fanout  int    `json:"fanout"`
}

type traceCall struct {
	Event string `json:"event"`
	demo.Report
}

func (a *app) describeBackend() string {
	if a.cfg.Backend != "" {
		return a.cfg.Backend
	}
	name, _ := a.registry.Active()
	return name + " (active)"
}

func formatKinds(kinds map[string]int) string {
	names := make([]string, 0, len(kinds))
	for kind := range kinds {
		names = append(names, kind)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, kind := range names {
		parts[i] = fmt.Sprintf("%s x%d", kind, kinds[kind])
	}
	return strings.Join(parts, ", ")
}

// backendsCommand lists registered and lazy backends with the backend each
// one hands to nested runs.
func (a *app) backendsCommand(args []string) error {
	fs := flag.NewFlagSet("nestjob backends", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	noNest := fs.Bool("no-nest", false, "List backends without installing nested variants")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*noNest {
		if err := a.install(); err != nil {
			return err
		}
	}

	active, _ := a.registry.Active()
	tw := tabwriter.NewWriter(a.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tNESTS INTO")
	for _, name := range a.registry.Names() {
		t, ok := a.registry.Lookup(name)
		if !ok {
			continue
		}
		b := t.New(parallel.Config{Logger: a.logger})
		nested, _ := b.NestedBackend()
		marker := ""
		if name == active {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\n", name, marker, t.TypeName(), nested.Kind())
		_ = parallel.CloseBackend(nested)
		_ = parallel.CloseBackend(b)
	}
	for _, name := range a.registry.ExternalNames() {
		if _, loaded := a.registry.Lookup(name); loaded {
			continue
		}
		fmt.Fprintf(tw, "%s\t(lazy)\t-\n", name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, "* active backend")
	return nil
}

// configCommand prints the effective configuration and where each value
// came from.
func (a *app) configCommand(args []string) error {
	fs := flag.NewFlagSet("nestjob config", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	example := fs.Bool("example", false, "Print an example config file")
	schema := fs.Bool("schema", false, "Print the config file JSON schema")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *example {
		fmt.Fprint(a.stdout, config.ExampleConfig())
		return nil
	}
	if *schema {
		fmt.Fprint(a.stdout, config.Schema())
		return nil
	}

	cfg := a.cfg
	values := map[string]string{
		"backend":                 firstNonEmpty(cfg.Backend, "(active)"),
		"n_jobs":                  fmt.Sprint(cfg.NJobs),
		"fail_fast":               fmt.Sprint(cfg.FailFast),
		"log_dir":                 cfg.LogDir,
		"nest.set_default":        fmt.Sprint(cfg.Nest.SetDefault),
		"nest.auto_register":      fmt.Sprint(cfg.Nest.AutoRegister),
		"nest.alias_self_nesting": fmt.Sprint(cfg.Nest.AliasSelfNesting),
		"demo.depth":              fmt.Sprint(cfg.Demo.Depth),
		"demo.fanout":             fmt.Sprint(cfg.Demo.Fanout),
		"log_level":               cfg.LogLevel,
		"log_format":              cfg.LogFormat,
		"log_timestamps":          fmt.Sprint(cfg.LogTimestamps),
		"log_caller":              fmt.Sprint(cfg.LogCaller),
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(a.cws.Files) > 0 {
		fmt.Fprintf(a.stdout, "Config files: %s\n\n", strings.Join(a.cws.Files, ", "))
	} else {
		fmt.Fprintln(a.stdout, "Config files: none")
		fmt.Fprintln(a.stdout)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k, values[k], a.cws.Sources[k])
	}
	return tw.Flush()
}

// tailCommand prints the latest demo trace.
func (a *app) tailCommand(ctx context.Context, args []string) error {
	// Parse tail-specific flags
	fs := flag.NewFlagSet("nestjob tail", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	follow := fs.Bool("f", false, "Follow the log (like tail -f)")
	fs.BoolVar(follow, "follow", false, "Follow the log (like tail -f)")
	n := fs.Int("n", 0, "Number of lines to show (0 = all)")
	backend := fs.String("backend", "", "Only consider traces of runs on this backend")

	if err := fs.Parse(args); err != nil {
		return err
	}

	trace, ok, err := logging.LatestTrace(a.cfg.LogDir, *backend)
	if err != nil {
		return fmt.Errorf("finding latest trace: %w", err)
	}
	if !ok {
		fmt.Fprintln(a.stdout, "No trace files found.")
		return nil
	}

	fmt.Fprintf(a.stdout, "Tailing: %s (backend %s, run %s)\n", trace.Path, trace.Backend, trace.RunID)
	if *follow {
		fmt.Fprintln(a.stdout, "(Ctrl+C to stop)")
	}
	fmt.Fprintln(a.stdout)

	return logging.TailLog(ctx, a.stdout, trace.Path, *n, *follow)
}

func versionCommand(w io.Writer) error {
	fmt.Fprintf(w, "nestjob version %s\n", Version)
	return nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "nestjob - nested parallel backends that do not degrade")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  nestjob [options] [command] [command options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  demo          Run the recursive workload (default command)")
	fmt.Fprintln(w, "  backends      List backends and what nested runs use")
	fmt.Fprintln(w, "  config        Show the effective configuration")
	fmt.Fprintln(w, "  tail          Tail the latest demo trace")
	fmt.Fprintln(w, "  version       Show version information")
	fmt.Fprintln(w, "  help          Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Demo Options:")
	fmt.Fprintln(w, "  -ui string")
	fmt.Fprintln(w, "        UI mode (tui for terminal UI)")
	fmt.Fprintln(w, "  -trace")
	fmt.Fprintln(w, "        Write a JSONL trace of every call to the log directory")
	fmt.Fprintln(w, "  -no-nest")
	fmt.Fprintln(w, "        Run without installing nested backends")
	fmt.Fprintln(w, "  -work duration")
	fmt.Fprintln(w, "        Time each leaf call spends working (default 10ms)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Backends Options:")
	fmt.Fprintln(w, "  -no-nest")
	fmt.Fprintln(w, "        List backends without installing nested variants")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config Options:")
	fmt.Fprintln(w, "  -example")
	fmt.Fprintln(w, "        Print an example config file")
	fmt.Fprintln(w, "  -schema")
	fmt.Fprintln(w, "        Print the config file JSON schema")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tail Options:")
	fmt.Fprintln(w, "  -f, --follow")
	fmt.Fprintln(w, "        Follow the log (like tail -f)")
	fmt.Fprintln(w, "  -n int")
	fmt.Fprintln(w, "        Number of lines to show (0 = all)")
	fmt.Fprintln(w, "  -backend string")
	fmt.Fprintln(w, "        Only consider traces of runs on this backend")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
