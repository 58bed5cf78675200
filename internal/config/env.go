package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix shared by every environment override.
const EnvPrefix = "NESTJOB_"

// loadFromEnv overrides config from NESTJOB_* environment variables.
// If sources is non-nil, it tracks the source of each value.
func loadFromEnv(cfg *Config, sources map[string]ConfigSource) {
	mark := func(field string) {
		if sources != nil {
			sources[field] = SourceEnv
		}
	}
	envString := func(key, field string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
			mark(field)
		}
	}
	envInt := func(key, field string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = i
				mark(field)
			}
		}
	}
	envBool := func(key, field string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = boolFromString(v)
			mark(field)
		}
	}

	envString("BACKEND", "backend", &cfg.Backend)
	envInt("N_JOBS", "n_jobs", &cfg.NJobs)
	envBool("FAIL_FAST", "fail_fast", &cfg.FailFast)
	envString("LOG_DIR", "log_dir", &cfg.LogDir)

	envBool("SET_DEFAULT", "nest.set_default", &cfg.Nest.SetDefault)
	envBool("AUTO_REGISTER", "nest.auto_register", &cfg.Nest.AutoRegister)
	envBool("ALIAS_SELF_NESTING", "nest.alias_self_nesting", &cfg.Nest.AliasSelfNesting)

	envInt("DEMO_DEPTH", "demo.depth", &cfg.Demo.Depth)
	envInt("DEMO_FANOUT", "demo.fanout", &cfg.Demo.Fanout)

	// Logging configuration
	envString("LOG_LEVEL", "log_level", &cfg.LogLevel)
	envString("LOG_FORMAT", "log_format", &cfg.LogFormat)
	envBool("LOG_TIMESTAMPS", "log_timestamps", &cfg.LogTimestamps)
	envBool("LOG_CALLER", "log_caller", &cfg.LogCaller)
}

// boolFromString parses common truthy values.
func boolFromString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
