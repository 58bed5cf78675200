// Package config handles configuration loading and defaults.
//
// Configuration is loaded from multiple sources in priority order:
// 1. Built-in defaults
// 2. User config file (~/.nestjob/nestjob.toml or OS-specific config directory)
// 3. Project config file (nestjob.toml or .nestjob.toml in the project root)
// 4. Environment variables (NESTJOB_*)
// 5. CLI flags
//
// Each level overrides the previous one, so CLI flags take precedence.
// Config files are checked against an embedded JSON schema before they are
// decoded, so unknown keys and wrongly typed values are reported with the
// offending path.
//
// User-level config locations:
// - ~/.nestjob/nestjob.toml (preferred)
// - Windows: %APPDATA%\nestjob\nestjob.toml
// - macOS: ~/Library/Application Support/nestjob/nestjob.toml
// - Linux/BSD: $XDG_CONFIG_HOME/nestjob/nestjob.toml or ~/.config/nestjob/nestjob.toml
//
// Project-level config locations (overrides user config):
// - ./nestjob.toml (preferred)
// - ./.nestjob.toml
package config
