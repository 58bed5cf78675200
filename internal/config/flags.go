package config

import (
	"flag"
)

// flagToSource maps flag names to source field names.
var flagToSource = map[string]string{
	"backend":            "backend",
	"n-jobs":             "n_jobs",
	"fail-fast":          "fail_fast",
	"log-dir":            "log_dir",
	"set-default":        "nest.set_default",
	"auto-register":      "nest.auto_register",
	"alias-self-nesting": "nest.alias_self_nesting",
	"depth":              "demo.depth",
	"fanout":             "demo.fanout",
	"log-level":          "log_level",
	"log-format":         "log_format",
	"log-timestamps":     "log_timestamps",
	"log-caller":         "log_caller",
}

// parseFlags defines config flags on fs and parses args into cfg.
// If sources is non-nil, flags that were set explicitly are recorded.
func parseFlags(cfg *Config, fs *flag.FlagSet, args []string, sources map[string]ConfigSource) error {
	if fs == nil {
		fs = flag.NewFlagSet("nestjob", flag.ContinueOnError)
	}

	// Backend selection
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Backend name (e.g. pool, nested-threading)")
	fs.IntVar(&cfg.NJobs, "n-jobs", cfg.NJobs, "Requested parallelism (negative counts back from CPU count)")
	fs.BoolVar(&cfg.FailFast, "fail-fast", cfg.FailFast, "Stop dispatching after the first failed call")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for run traces")

	// Installer
	fs.BoolVar(&cfg.Nest.SetDefault, "set-default", cfg.Nest.SetDefault, "Make nested-pool the active backend")
	fs.BoolVar(&cfg.Nest.AutoRegister, "auto-register", cfg.Nest.AutoRegister, "Derive nested variants for backends registered later")
	fs.BoolVar(&cfg.Nest.AliasSelfNesting, "alias-self-nesting", cfg.Nest.AliasSelfNesting, "Alias backends that already self-nest under the nested- prefix")

	// Demo workload
	fs.IntVar(&cfg.Demo.Depth, "depth", cfg.Demo.Depth, "Demo recursion depth")
	fs.IntVar(&cfg.Demo.Fanout, "fanout", cfg.Demo.Fanout, "Demo calls per level")

	// Logging
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json, logfmt)")
	fs.BoolVar(&cfg.LogTimestamps, "log-timestamps", cfg.LogTimestamps, "Show timestamps in logs")
	fs.BoolVar(&cfg.LogCaller, "log-caller", cfg.LogCaller, "Show caller location in logs")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if sources != nil {
		fs.Visit(func(f *flag.Flag) {
			if fieldName, ok := flagToSource[f.Name]; ok {
				sources[fieldName] = SourceFlag
			}
		})
	}
	return nil
}
