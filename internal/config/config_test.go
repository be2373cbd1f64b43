// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"wheelwright-cli/internal/issue"
	"wheelwright-cli/internal/testutil"
	"wheelwright-cli/pkg/platform"
)

// setConfigDir points the package at a fresh temporary config directory and
// registers cleanup of the override.
func setConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.WheelDir != "dist" {
		t.Errorf("expected default wheel_dir to be dist, got %s", cfg.WheelDir)
	}

	if cfg.DistDir != "dist" {
		t.Errorf("expected default dist_dir to be dist, got %s", cfg.DistDir)
	}

	if cfg.EggBase != "" {
		t.Errorf("expected default egg_base to be empty, got %s", cfg.EggBase)
	}

	if cfg.Python != "python3" {
		t.Errorf("expected default python to be python3, got %s", cfg.Python)
	}

	if cfg.Jobs != 1 {
		t.Errorf("expected default jobs to be 1, got %d", cfg.Jobs)
	}

	if cfg.UI.ColorScheme != ColorSchemeAuto {
		t.Errorf("expected default color scheme to be auto, got %s", cfg.UI.ColorScheme)
	}

	if cfg.UI.Verbose {
		t.Error("expected default verbose to be false")
	}

	if valid, errs := cfg.IsValid(); !valid {
		t.Errorf("default config should be valid, got: %v", errs)
	}
}

func TestConfigDir_Override(t *testing.T) {
	dir := setConfigDir(t)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	if got != dir {
		t.Errorf("ConfigDir() = %q, want override %q", got, dir)
	}
}

func TestConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == platform.Windows || runtime.GOOS == platform.Darwin {
		t.Skip("XDG_CONFIG_HOME is only honored on Linux and friends")
	}

	Reset()
	xdgDir := t.TempDir()
	t.Cleanup(testutil.MustSetenv(t, "XDG_CONFIG_HOME", xdgDir))

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	want := filepath.Join(xdgDir, AppName)
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDir_HomeFallback(t *testing.T) {
	if runtime.GOOS == platform.Windows || runtime.GOOS == platform.Darwin {
		t.Skip("the ~/.config fallback is only used on Linux and friends")
	}

	Reset()
	homeDir := t.TempDir()
	t.Cleanup(testutil.MustUnsetenv(t, "XDG_CONFIG_HOME"))
	t.Cleanup(testutil.SetHomeDir(t, homeDir))

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() returned error: %v", err)
	}
	want := filepath.Join(homeDir, ".config", AppName)
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestLoadWithOptions_Defaults(t *testing.T) {
	setConfigDir(t)
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions() returned error: %v", err)
	}
	if path != "" {
		t.Errorf("expected no resolved path when no config file exists, got %q", path)
	}
	if cfg.WheelDir != "dist" || cfg.DistDir != "dist" {
		t.Errorf("expected default output dirs, got wheel_dir=%q dist_dir=%q", cfg.WheelDir, cfg.DistDir)
	}
	if cfg.Python != "python3" {
		t.Errorf("expected default python, got %q", cfg.Python)
	}
	if cfg.Jobs != 1 {
		t.Errorf("expected default jobs, got %d", cfg.Jobs)
	}
	if cfg.UI.ColorScheme != ColorSchemeAuto {
		t.Errorf("expected default color scheme, got %q", cfg.UI.ColorScheme)
	}
}

func TestLoadWithOptions_FromConfigDir(t *testing.T) {
	dir := setConfigDir(t)
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	cuePath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	content := `wheel_dir: "out/wheels"
jobs: 4
ui: {
	color_scheme: "dark"
}
`
	if err := os.WriteFile(cuePath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions() returned error: %v", err)
	}
	if path != cuePath {
		t.Errorf("resolved path = %q, want %q", path, cuePath)
	}
	if cfg.WheelDir != "out/wheels" {
		t.Errorf("wheel_dir = %q, want out/wheels", cfg.WheelDir)
	}
	if cfg.Jobs != 4 {
		t.Errorf("jobs = %d, want 4", cfg.Jobs)
	}
	if cfg.UI.ColorScheme != ColorSchemeDark {
		t.Errorf("color_scheme = %q, want dark", cfg.UI.ColorScheme)
	}

	// Values absent from the file keep their defaults.
	if cfg.DistDir != "dist" {
		t.Errorf("dist_dir = %q, want default dist", cfg.DistDir)
	}
	if cfg.Python != "python3" {
		t.Errorf("python = %q, want default python3", cfg.Python)
	}
}

func TestLoadWithOptions_LocalConfigFallback(t *testing.T) {
	setConfigDir(t) // empty config dir

	workDir := t.TempDir()
	t.Cleanup(testutil.MustChdir(t, workDir))

	content := `egg_base: "build/meta"
python: "/usr/bin/python3.12"
`
	if err := os.WriteFile(filepath.Join(workDir, "config.cue"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write local config file: %v", err)
	}

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions() returned error: %v", err)
	}
	if path != "config.cue" {
		t.Errorf("resolved path = %q, want config.cue", path)
	}
	if cfg.EggBase != "build/meta" {
		t.Errorf("egg_base = %q, want build/meta", cfg.EggBase)
	}
	if cfg.Python != "/usr/bin/python3.12" {
		t.Errorf("python = %q, want /usr/bin/python3.12", cfg.Python)
	}
}

func TestLoadWithOptions_ExplicitFile(t *testing.T) {
	setConfigDir(t)
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	cuePath := filepath.Join(t.TempDir(), "custom.cue")
	content := `dist_dir: "artifacts"
ui: {
	verbose: true
}
`
	if err := os.WriteFile(cuePath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{ConfigFilePath: cuePath})
	if err != nil {
		t.Fatalf("loadWithOptions() returned error: %v", err)
	}
	if path != cuePath {
		t.Errorf("resolved path = %q, want %q", path, cuePath)
	}
	if cfg.DistDir != "artifacts" {
		t.Errorf("dist_dir = %q, want artifacts", cfg.DistDir)
	}
	if !cfg.UI.Verbose {
		t.Error("expected verbose to be true")
	}
}

func TestLoadWithOptions_ExplicitFileNotFound(t *testing.T) {
	setConfigDir(t)

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigFilePath: missing})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error should mention the missing file, got: %v", err)
	}

	actErr, ok := errors.AsType[*issue.ActionableError](err)
	if !ok {
		t.Fatalf("expected *issue.ActionableError, got %T", err)
	}
	if !actErr.HasSuggestions() {
		t.Error("expected suggestions on the load error")
	}
	if actErr.Operation != "load configuration" {
		t.Errorf("operation = %q, want load configuration", actErr.Operation)
	}
}

func TestLoadWithOptions_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "syntax error",
			content: "wheel_dir: \"unterminated\nnope",
		},
		{
			name:    "schema violation empty wheel_dir",
			content: `wheel_dir: ""`,
		},
		{
			name:    "schema violation jobs below one",
			content: `jobs: 0`,
		},
		{
			name:    "schema violation bad color scheme",
			content: `ui: { color_scheme: "solarized" }`,
		},
		{
			name:    "unknown field rejected",
			content: `wheel_spokes: 36`,
		},
		{
			name:    "wrong type for jobs",
			content: `jobs: "four"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setConfigDir(t)

			cuePath := filepath.Join(t.TempDir(), "bad.cue")
			if err := os.WriteFile(cuePath, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			_, _, err := loadWithOptions(t.Context(), LoadOptions{ConfigFilePath: cuePath})
			if err == nil {
				t.Fatal("expected error for invalid config")
			}

			actErr, ok := errors.AsType[*issue.ActionableError](err)
			if !ok {
				t.Fatalf("expected *issue.ActionableError, got %T", err)
			}
			if !actErr.HasSuggestions() {
				t.Error("expected suggestions on the load error")
			}
		})
	}
}

func TestLoadWithOptions_ContextCanceled(t *testing.T) {
	setConfigDir(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, _, err := loadWithOptions(ctx, LoadOptions{})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got: %v", err)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	dir := setConfigDir(t)
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	if err := CreateDefaultConfig(); err != nil {
		t.Fatalf("CreateDefaultConfig() returned error: %v", err)
	}

	cuePath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if !fileExists(cuePath) {
		t.Fatalf("expected config file at %s", cuePath)
	}

	cfg, path, err := loadWithOptions(t.Context(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions() after CreateDefaultConfig returned error: %v", err)
	}
	if path != cuePath {
		t.Errorf("resolved path = %q, want %q", path, cuePath)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("reloaded config %+v differs from defaults %+v", cfg, DefaultConfig())
	}
}

func TestCreateDefaultConfig_DoesNotOverwrite(t *testing.T) {
	dir := setConfigDir(t)

	cuePath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	custom := `wheel_dir: "keep-me"` + "\n"
	if err := os.WriteFile(cuePath, []byte(custom), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if err := CreateDefaultConfig(); err != nil {
		t.Fatalf("CreateDefaultConfig() returned error: %v", err)
	}

	data, err := os.ReadFile(cuePath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(data) != custom {
		t.Errorf("existing config was overwritten: %q", string(data))
	}
}

func TestSave_RoundTrip(t *testing.T) {
	setConfigDir(t)
	t.Cleanup(testutil.MustChdir(t, t.TempDir()))

	cfg := DefaultConfig()
	cfg.WheelDir = "artifacts/wheels"
	cfg.EggBase = "build/meta"
	cfg.Jobs = 8
	cfg.UI.ColorScheme = ColorSchemeLight
	cfg.UI.Verbose = true

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	loaded, _, err := loadWithOptions(t.Context(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions() after Save returned error: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("reloaded config %+v differs from saved %+v", loaded, cfg)
	}
}

func TestSave_RejectsInvalidConfig(t *testing.T) {
	dir := setConfigDir(t)

	cfg := DefaultConfig()
	cfg.WheelDir = ""

	err := Save(cfg)
	if err == nil {
		t.Fatal("expected error saving config with empty wheel_dir")
	}
	if !strings.Contains(err.Error(), "does not satisfy the schema") {
		t.Errorf("error should mention schema validation, got: %v", err)
	}

	cuePath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(cuePath) {
		t.Error("invalid config should not have been written")
	}
}

func TestGenerateCUE(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	out := GenerateCUE(cfg)

	for _, want := range []string{
		`wheel_dir: "dist"`,
		`dist_dir: "dist"`,
		`python: "python3"`,
		"jobs: 1",
		`color_scheme: "auto"`,
		"verbose: false",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("generated CUE missing %q:\n%s", want, out)
		}
	}

	// The zero-value egg_base is omitted entirely.
	if strings.Contains(out, "egg_base") {
		t.Errorf("generated CUE should omit empty egg_base:\n%s", out)
	}

	cfg.EggBase = "build/meta"
	out = GenerateCUE(cfg)
	if !strings.Contains(out, `egg_base: "build/meta"`) {
		t.Errorf("generated CUE missing egg_base:\n%s", out)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "nested", "wheelwright")
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() returned error: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("config dir was not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if fileExists(filepath.Join(dir, "missing.cue")) {
		t.Error("fileExists() should be false for a missing file")
	}

	if fileExists(dir) {
		t.Error("fileExists() should be false for a directory")
	}

	path := filepath.Join(dir, "present.cue")
	if err := os.WriteFile(path, []byte("jobs: 2\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if !fileExists(path) {
		t.Error("fileExists() should be true for an existing file")
	}
}
