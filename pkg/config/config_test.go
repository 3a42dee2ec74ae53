package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(cwd)

	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir temp dir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.RunsDir != "runs" {
		t.Fatalf("expected default runs dir, got %q", cfg.Paths.RunsDir)
	}
	if cfg.Source != "<defaults>" {
		t.Fatalf("expected default source marker, got %q", cfg.Source)
	}
	if got := cfg.Recorder.TextInputTimeout(); got != 2*time.Second {
		t.Fatalf("unexpected default text input timeout: %v", got)
	}
	if cfg.Recorder.EmitEmptyTextInput {
		t.Fatalf("expected empty text sessions suppressed by default")
	}
	if cfg.Recorder.OverflowPolicy != "drop_newest" {
		t.Fatalf("unexpected default overflow policy: %q", cfg.Recorder.OverflowPolicy)
	}
	if !cfg.Storage.JournalEnabled {
		t.Fatalf("expected journal enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "flowrec.yaml")
	content := `paths:
  runs_dir: artifacts
recorder:
  record_mouse: false
  capture_ui_elements: false
  text_input_completion_timeout_ms: 1500
  emit_empty_text_input: true
  mouse_move_throttle_ms: 50
  min_drag_distance: 12.5
  overflow_policy: GROW
  queue_capacity: 128
privacy:
  allow_apps: [code, " chrome.exe "]
  redact_patterns:
    - jwt
    - cc16
logging:
  level: DEBUG
  format: console
`

	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := cfg.Paths.RunsDir; got != "artifacts" {
		t.Fatalf("unexpected runs dir: %q", got)
	}
	if cfg.Recorder.RecordMouse {
		t.Fatalf("expected mouse recording disabled")
	}
	if !cfg.Recorder.RecordKeyboard {
		t.Fatalf("expected keyboard recording to keep its default")
	}
	if cfg.Recorder.CaptureUIElements {
		t.Fatalf("expected element capture disabled")
	}
	if got := cfg.Recorder.TextInputTimeout(); got != 1500*time.Millisecond {
		t.Fatalf("unexpected text input timeout: %v", got)
	}
	if !cfg.Recorder.EmitEmptyTextInput {
		t.Fatalf("expected empty text sessions emitted")
	}
	if got := cfg.Recorder.MouseMoveThrottle(); got != 50*time.Millisecond {
		t.Fatalf("unexpected throttle: %v", got)
	}
	if cfg.Recorder.MinDragDistance != 12.5 {
		t.Fatalf("unexpected drag distance: %v", cfg.Recorder.MinDragDistance)
	}
	if cfg.Recorder.OverflowPolicy != "grow" {
		t.Fatalf("unexpected overflow policy: %q", cfg.Recorder.OverflowPolicy)
	}
	if cfg.Recorder.QueueCapacity != 128 {
		t.Fatalf("unexpected queue capacity: %d", cfg.Recorder.QueueCapacity)
	}
	if got := cfg.Privacy.AllowApps; len(got) != 2 || got[1] != "chrome.exe" {
		t.Fatalf("unexpected allow apps: %#v", got)
	}
	if got := len(cfg.Privacy.RedactPatterns); got != 2 {
		t.Fatalf("expected two redact patterns, got %d", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Source != cfgPath {
		t.Fatalf("expected source to equal path, got %q", cfg.Source)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "flowrec.toml")
	content := `[paths]
runs_dir = "toml-runs"

[recorder]
record_hotkeys = false
max_clipboard_content_length = 64

[storage]
journal_enabled = false
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.RunsDir != "toml-runs" {
		t.Fatalf("unexpected runs dir: %q", cfg.Paths.RunsDir)
	}
	if cfg.Recorder.RecordHotkeys {
		t.Fatalf("expected hotkeys disabled")
	}
	if cfg.Recorder.MaxClipboardContentLength != 64 {
		t.Fatalf("unexpected clipboard limit: %d", cfg.Recorder.MaxClipboardContentLength)
	}
	if cfg.Storage.JournalEnabled {
		t.Fatalf("expected journal disabled")
	}
}

func TestUnknownKeyReturnsError(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"flowrec.yaml": "recorder:\n  unsupported: true\n",
		"flowrec.toml": "[recorder]\nunsupported = true\n",
	}
	for name, content := range cases {
		cfgPath := filepath.Join(dir, name)
		if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		if _, err := Load(cfgPath); err == nil {
			t.Fatalf("%s: expected error for unsupported key", name)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"policy", func(c *Config) { c.Recorder.OverflowPolicy = "block" }, "overflow_policy"},
		{"queue bounds", func(c *Config) { c.Recorder.MaxQueueCapacity = 10 }, "max_queue_capacity"},
		{"timeout", func(c *Config) { c.Recorder.TextInputCompletionTimeoutMs = 0 }, "text_input_completion_timeout_ms"},
		{"drag", func(c *Config) { c.Recorder.MinDragDistance = -1 }, "min_drag_distance"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestNormalizeFormatAcceptsAuto(t *testing.T) {
	got, err := NormalizeFormat(" AUTO ")
	if err != nil || got != "auto" {
		t.Fatalf("expected auto, got %q (%v)", got, err)
	}
}
