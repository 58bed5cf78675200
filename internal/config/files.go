package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config file names looked up in the working directory, in order.
var projectConfigNames = []string{"nestjob.toml", ".nestjob.toml"}

// userConfigPaths returns the user-level config locations in lookup order:
// ~/.nestjob/nestjob.toml, then nestjob/nestjob.toml under the OS user
// config directory.
func userConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".nestjob", "nestjob.toml"))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "nestjob", "nestjob.toml"))
	}
	return paths
}

// firstExisting returns the first of paths that exists, or "".
func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// resolveLogDir expands environment variables and a leading ~ in dir and
// anchors a relative result at root.
func resolveLogDir(dir, root string) string {
	if dir == "" {
		return ""
	}
	dir = os.ExpandEnv(dir)
	if dir == "~" || strings.HasPrefix(dir, "~/") || strings.HasPrefix(dir, `~`+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Clean(dir)
}
