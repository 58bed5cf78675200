package config

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// isolate points HOME and the working directory at empty temp dirs so that
// no real config file leaks into a test.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	home = t.TempDir()
	project = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("APPDATA", filepath.Join(home, "AppData"))
	for _, key := range []string{
		"BACKEND", "N_JOBS", "FAIL_FAST", "LOG_DIR",
		"SET_DEFAULT", "AUTO_REGISTER", "ALIAS_SELF_NESTING",
		"DEMO_DEPTH", "DEMO_FANOUT",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_TIMESTAMPS", "LOG_CALLER",
	} {
		t.Setenv(EnvPrefix+key, "")
	}
	t.Chdir(project)
	return home, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	if cfg.NJobs != DefaultNJobs {
		t.Errorf("NJobs: got %d, want %d", cfg.NJobs, DefaultNJobs)
	}
	if cfg.Backend != "" {
		t.Errorf("Backend: got %q, want empty", cfg.Backend)
	}
	if !cfg.Nest.SetDefault || !cfg.Nest.AutoRegister || !cfg.Nest.AliasSelfNesting {
		t.Errorf("Nest: got %+v, want all true", cfg.Nest)
	}
	if cfg.Demo.Depth != DefaultDepth || cfg.Demo.Fanout != DefaultFanout {
		t.Errorf("Demo: got %+v", cfg.Demo)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("logging: got %q/%q, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	home, project := isolate(t)

	cws, err := LoadWithSources(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("LoadWithSources: %v", err)
	}
	if len(cws.Files) != 0 {
		t.Errorf("Files: got %v, want none", cws.Files)
	}
	if got := cws.GetConfigFile(); got != "" {
		t.Errorf("GetConfigFile: got %q, want empty", got)
	}
	for field, source := range cws.Sources {
		if source != SourceDefault {
			t.Errorf("source for %s: got %s, want default", field, source)
		}
	}
	if want := filepath.Join(home, ".nestjob"); cws.Config.LogDir != want {
		t.Errorf("LogDir: got %q, want %q", cws.Config.LogDir, want)
	}
	wd, _ := os.Getwd()
	if cws.Config.ProjectRoot != wd {
		t.Errorf("ProjectRoot: got %q, want %q (project %q)", cws.Config.ProjectRoot, wd, project)
	}
}

func TestLoadLayering(t *testing.T) {
	home, project := isolate(t)

	writeFile(t, filepath.Join(home, ".nestjob", "nestjob.toml"), `
backend = "threading"
n_jobs = 4

[nest]
auto_register = false
`)
	writeFile(t, filepath.Join(project, "nestjob.toml"), `
n_jobs = 2
log_level = "debug"

[demo]
depth = 5
`)
	t.Setenv("NESTJOB_FAIL_FAST", "yes")
	t.Setenv("NESTJOB_LOG_FORMAT", "json")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cws, err := LoadWithSources(fs, []string{"--log-format", "logfmt", "--fanout", "3", "extra"})
	if err != nil {
		t.Fatalf("LoadWithSources: %v", err)
	}
	cfg := cws.Config

	tests := []struct {
		field  string
		got    interface{}
		want   interface{}
		source ConfigSource
	}{
		{"backend", cfg.Backend, "threading", SourceUserFile},
		{"n_jobs", cfg.NJobs, 2, SourceProjFile},
		{"nest.auto_register", cfg.Nest.AutoRegister, false, SourceUserFile},
		{"nest.set_default", cfg.Nest.SetDefault, true, SourceDefault},
		{"log_level", cfg.LogLevel, "debug", SourceProjFile},
		{"demo.depth", cfg.Demo.Depth, 5, SourceProjFile},
		{"fail_fast", cfg.FailFast, true, SourceEnv},
		{"log_format", cfg.LogFormat, "logfmt", SourceFlag},
		{"demo.fanout", cfg.Demo.Fanout, 3, SourceFlag},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("value: got %v, want %v", tt.got, tt.want)
			}
			if got := cws.Sources[tt.field]; got != tt.source {
				t.Errorf("source: got %s, want %s", got, tt.source)
			}
		})
	}

	if len(cws.Files) != 2 {
		t.Fatalf("Files: got %v, want user and project", cws.Files)
	}
	if got := cws.GetConfigFile(); got != "nestjob.toml" {
		t.Errorf("GetConfigFile: got %q, want nestjob.toml", got)
	}
	if args := fs.Args(); len(args) != 1 || args[0] != "extra" {
		t.Errorf("remaining args: got %v, want [extra]", args)
	}
}

func TestLoadHiddenProjectFile(t *testing.T) {
	_, project := isolate(t)
	writeFile(t, filepath.Join(project, ".nestjob.toml"), `backend = "sequential"`)

	cfg, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "sequential" {
		t.Errorf("Backend: got %q, want sequential", cfg.Backend)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", `max_iterations = 3`, "max_iterations"},
		{"wrong type", `n_jobs = "four"`, "/n_jobs"},
		{"bad enum", `log_format = "xml"`, "/log_format"},
		{"nested unknown", "[nest]\nalias = true", "alias"},
		{"fanout minimum", "[demo]\nfanout = 0", "/demo/fanout"},
		{"not toml", `backend = `, "loading project config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, project := isolate(t)
			writeFile(t, filepath.Join(project, "nestjob.toml"), tt.content)

			_, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadRejectsBadDemoFlags(t *testing.T) {
	isolate(t)
	_, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--depth", "-1"})
	if err == nil || !strings.Contains(err.Error(), "depth") {
		t.Fatalf("expected depth error, got %v", err)
	}
}

func TestValidateExampleConfig(t *testing.T) {
	if err := ValidateString(ExampleConfig()); err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}
	if err := ValidateString(""); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("NESTJOB_BACKEND", "nested-threading")
	t.Setenv("NESTJOB_N_JOBS", "8")
	t.Setenv("NESTJOB_SET_DEFAULT", "0")
	t.Setenv("NESTJOB_ALIAS_SELF_NESTING", "off")
	t.Setenv("NESTJOB_DEMO_DEPTH", "not-a-number")

	cfg := &Config{}
	setDefaults(cfg)
	sources := map[string]ConfigSource{}
	loadFromEnv(cfg, sources)

	if cfg.Backend != "nested-threading" {
		t.Errorf("Backend: got %q", cfg.Backend)
	}
	if cfg.NJobs != 8 {
		t.Errorf("NJobs: got %d, want 8", cfg.NJobs)
	}
	if cfg.Nest.SetDefault || cfg.Nest.AliasSelfNesting {
		t.Errorf("Nest: got %+v", cfg.Nest)
	}
	if cfg.Demo.Depth != DefaultDepth {
		t.Errorf("Demo.Depth: got %d, want default on parse failure", cfg.Demo.Depth)
	}
	if _, ok := sources["demo.depth"]; ok {
		t.Error("demo.depth should not be marked as env-sourced")
	}
	if sources["n_jobs"] != SourceEnv {
		t.Errorf("n_jobs source: got %s", sources["n_jobs"])
	}
}

func TestResolveLogDir(t *testing.T) {
	home := t.TempDir()
	root := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("NESTJOB_TEST_DIR", "traces")

	abs := filepath.Join(t.TempDir(), "abs")
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"home", "~", home},
		{"under home", "~/logs", filepath.Join(home, "logs")},
		{"absolute with env", abs + "/$NESTJOB_TEST_DIR", filepath.Join(abs, "traces")},
		{"relative", "logs/../runs", filepath.Join(root, "runs")},
		{"relative env", "$NESTJOB_TEST_DIR", filepath.Join(root, "traces")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveLogDir(tt.in, root); got != tt.want {
				t.Errorf("resolveLogDir(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadRelativeLogDir(t *testing.T) {
	isolate(t)
	cfg, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--log-dir", "traces"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(cfg.ProjectRoot, "traces"); cfg.LogDir != want {
		t.Errorf("LogDir: got %q, want %q", cfg.LogDir, want)
	}
}

func TestLoadUserConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only drives the user config dir on linux")
	}
	home, _ := isolate(t)
	path := filepath.Join(home, ".config", "nestjob", "nestjob.toml")
	writeFile(t, path, `backend = "nested-threading"`)

	cws, err := LoadWithSources(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("LoadWithSources: %v", err)
	}
	if cws.Config.Backend != "nested-threading" {
		t.Errorf("Backend: got %q", cws.Config.Backend)
	}
	if got := cws.GetConfigFile(); got != path {
		t.Errorf("GetConfigFile: got %q, want %q", got, path)
	}

	// ~/.nestjob wins over the OS config dir.
	writeFile(t, filepath.Join(home, ".nestjob", "nestjob.toml"), `backend = "sequential"`)
	cfg, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "sequential" {
		t.Errorf("Backend: got %q, want sequential", cfg.Backend)
	}
}

func TestBoolFromString(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"off", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := boolFromString(tt.input)
			if got != tt.want {
				t.Errorf("boolFromString(%q): got %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
