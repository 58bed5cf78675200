package config

// ExampleConfig returns an example configuration showing all available options.
func ExampleConfig() string {
	return `# nestjob configuration file
# Values can be overridden by NESTJOB_* environment variables or CLI flags

# Backend to run with (empty uses the active backend, nested-pool once installed)
# backend = "nested-threading"

# Requested parallelism; -1 uses every CPU
n_jobs = -1

# Stop dispatching calls after the first failure
fail_fast = false

# Directory for JSONL run traces (supports ~ expansion and %VAR% on Windows)
log_dir = "~/.nestjob"

# Logging
log_level = "info"
log_format = "text"
log_timestamps = false
log_caller = false

[nest]
# Select nested-pool as the active backend after installing
set_default = true
# Derive nested variants for backends registered after install
auto_register = true
# Register nested-<name> for backends that already nest into themselves
alias_self_nesting = true

[demo]
depth = 3
fanout = 2
`
}
