package config

// ConfigSource represents where a configuration value came from.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceUserFile ConfigSource = "user file"
	SourceProjFile ConfigSource = "project file"
	SourceEnv      ConfigSource = "environment"
	SourceFlag     ConfigSource = "flag"
)

// ConfigWithSources holds configuration along with source information for each field.
type ConfigWithSources struct {
	Config  *Config
	Sources map[string]ConfigSource
	// Files lists the config files that were loaded, in load order.
	Files []string
}

// Default values.
const (
	DefaultNJobs  = -1
	DefaultLogDir = "~/.nestjob"
	DefaultDepth  = 3
	DefaultFanout = 2
)

// Config holds the full configuration for nestjob.
type Config struct {
	// Backend selects a registered backend by name. Empty means the
	// registry's active backend.
	Backend string `toml:"backend"`

	// NJobs is the requested parallelism; negative counts back from the
	// number of CPUs.
	NJobs int `toml:"n_jobs"`

	// FailFast stops dispatching calls after the first failure.
	FailFast bool `toml:"fail_fast"`

	// LogDir holds JSONL run traces.
	LogDir string `toml:"log_dir"`

	Nest NestConfig `toml:"nest"`
	Demo DemoConfig `toml:"demo"`

	// Logging configuration
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogTimestamps bool   `toml:"log_timestamps"`
	LogCaller     bool   `toml:"log_caller"`

	// Project root (computed)
	ProjectRoot string `toml:"-"`
}

// NestConfig controls how nested backends are installed.
type NestConfig struct {
	SetDefault       bool `toml:"set_default"`
	AutoRegister     bool `toml:"auto_register"`
	AliasSelfNesting bool `toml:"alias_self_nesting"`
}

// DemoConfig shapes the recursive demo workload.
type DemoConfig struct {
	Depth  int `toml:"depth"`
	Fanout int `toml:"fanout"`
}

// configFields returns the list of configurable field names for source tracking.
func configFields() []string {
	return []string{
		"backend",
		"n_jobs",
		"fail_fast",
		"log_dir",
		"nest.set_default",
		"nest.auto_register",
		"nest.alias_self_nesting",
		"demo.depth",
		"demo.fanout",
		"log_level",
		"log_format",
		"log_timestamps",
		"log_caller",
	}
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	cfg.Backend = ""
	cfg.NJobs = DefaultNJobs
	cfg.FailFast = false
	cfg.LogDir = DefaultLogDir
	cfg.Nest = NestConfig{
		SetDefault:       true,
		AutoRegister:     true,
		AliasSelfNesting: true,
	}
	cfg.Demo = DemoConfig{
		Depth:  DefaultDepth,
		Fanout: DefaultFanout,
	}
	cfg.LogLevel = "info"
	cfg.LogFormat = "text"
}
