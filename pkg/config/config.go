package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const DefaultFileName = "flowrec.yaml"

// Config captures the user-adjustable knobs for recording workflows.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" toml:"paths"`
	Recorder RecorderConfig `yaml:"recorder" toml:"recorder"`
	Privacy  PrivacyConfig  `yaml:"privacy" toml:"privacy"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-" toml:"-"`
}

// PathsConfig controls filesystem locations used by the CLI.
type PathsConfig struct {
	RunsDir string `yaml:"runs_dir" toml:"runs_dir"`
}

// RecorderConfig toggles event categories and tunes the aggregation engine.
type RecorderConfig struct {
	RecordMouse              bool `yaml:"record_mouse" toml:"record_mouse"`
	RecordKeyboard           bool `yaml:"record_keyboard" toml:"record_keyboard"`
	RecordWindow             bool `yaml:"record_window" toml:"record_window"`
	RecordClipboard          bool `yaml:"record_clipboard" toml:"record_clipboard"`
	RecordTextSelection      bool `yaml:"record_text_selection" toml:"record_text_selection"`
	RecordDragDrop           bool `yaml:"record_drag_drop" toml:"record_drag_drop"`
	RecordHotkeys            bool `yaml:"record_hotkeys" toml:"record_hotkeys"`
	RecordUIFocusChanges     bool `yaml:"record_ui_focus_changes" toml:"record_ui_focus_changes"`
	RecordUIStructureChanges bool `yaml:"record_ui_structure_changes" toml:"record_ui_structure_changes"`
	RecordUIPropertyChanges  bool `yaml:"record_ui_property_changes" toml:"record_ui_property_changes"`

	RecordTextInputCompletion  bool `yaml:"record_text_input_completion" toml:"record_text_input_completion"`
	RecordApplicationSwitch    bool `yaml:"record_application_switch" toml:"record_application_switch"`
	RecordBrowserTabNavigation bool `yaml:"record_browser_tab_navigation" toml:"record_browser_tab_navigation"`

	CaptureUIElements bool `yaml:"capture_ui_elements" toml:"capture_ui_elements"`

	TextInputCompletionTimeoutMs int     `yaml:"text_input_completion_timeout_ms" toml:"text_input_completion_timeout_ms"`
	EmitEmptyTextInput           bool    `yaml:"emit_empty_text_input" toml:"emit_empty_text_input"`
	MaxClipboardContentLength    int     `yaml:"max_clipboard_content_length" toml:"max_clipboard_content_length"`
	MaxTextSelectionLength       int     `yaml:"max_text_selection_length" toml:"max_text_selection_length"`
	TrackModifierStates          bool    `yaml:"track_modifier_states" toml:"track_modifier_states"`
	MouseMoveThrottleMs          int     `yaml:"mouse_move_throttle_ms" toml:"mouse_move_throttle_ms"`
	MinDragDistance              float64 `yaml:"min_drag_distance" toml:"min_drag_distance"`
	BrowserNavigationSettleMs    int     `yaml:"browser_navigation_settle_ms" toml:"browser_navigation_settle_ms"`

	QueueCapacity    int    `yaml:"queue_capacity" toml:"queue_capacity"`
	MaxQueueCapacity int    `yaml:"max_queue_capacity" toml:"max_queue_capacity"`
	OverflowPolicy   string `yaml:"overflow_policy" toml:"overflow_policy"`
	SubscriberBuffer int    `yaml:"subscriber_buffer" toml:"subscriber_buffer"`
	FlushTickMs      int    `yaml:"flush_tick_ms" toml:"flush_tick_ms"`
}

// PrivacyConfig restricts what may be recorded.
type PrivacyConfig struct {
	AllowApps      []string `yaml:"allow_apps" toml:"allow_apps"`
	AllowURLs      []string `yaml:"allow_urls" toml:"allow_urls"`
	DropUnknown    bool     `yaml:"drop_unknown" toml:"drop_unknown"`
	RedactEmails   bool     `yaml:"redact_emails" toml:"redact_emails"`
	RedactPatterns []string `yaml:"redact_patterns" toml:"redact_patterns"`
}

// StorageConfig controls durable outputs besides the workflow file.
type StorageConfig struct {
	JournalEnabled bool `yaml:"journal_enabled" toml:"journal_enabled"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Overflow policies accepted by recorder.overflow_policy.
var overflowPolicies = []string{"drop_newest", "drop_oldest", "grow"}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			RunsDir: "runs",
		},
		Recorder: RecorderConfig{
			RecordMouse:                  true,
			RecordKeyboard:               true,
			RecordWindow:                 true,
			RecordClipboard:              true,
			RecordTextSelection:          true,
			RecordDragDrop:               true,
			RecordHotkeys:                true,
			RecordUIFocusChanges:         true,
			RecordUIStructureChanges:     false,
			RecordUIPropertyChanges:      false,
			RecordTextInputCompletion:    true,
			RecordApplicationSwitch:      true,
			RecordBrowserTabNavigation:   true,
			CaptureUIElements:            true,
			TextInputCompletionTimeoutMs: 2000,
			EmitEmptyTextInput:           false,
			MaxClipboardContentLength:    2048,
			MaxTextSelectionLength:       512,
			TrackModifierStates:          true,
			MouseMoveThrottleMs:          100,
			MinDragDistance:              5.0,
			BrowserNavigationSettleMs:    500,
			QueueCapacity:                4096,
			MaxQueueCapacity:             65536,
			OverflowPolicy:               "drop_newest",
			SubscriberBuffer:             1024,
			FlushTickMs:                  100,
		},
		Privacy: PrivacyConfig{
			RedactEmails: true,
		},
		Storage: StorageConfig{
			JournalEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./flowrec.yaml but tolerates a
// missing file. Files ending in .toml are decoded as TOML, everything else as
// YAML. Unknown keys are rejected in both formats.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	file, err := os.Open(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return cfg, fmt.Errorf("config file %q not found", candidate)
			}
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(candidate), ".toml") {
		err = decodeTOML(file, &cfg)
	} else {
		err = decodeYAML(file, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config file %q: %w", candidate, err)
	}
	cfg.Source = candidate
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(r io.Reader, cfg *Config) error {
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.RunsDir) == "" {
		return errors.New("paths.runs_dir must not be empty")
	}

	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	r := c.Recorder
	if r.TextInputCompletionTimeoutMs <= 0 {
		return errors.New("recorder.text_input_completion_timeout_ms must be positive")
	}
	if r.MaxClipboardContentLength < 0 {
		return errors.New("recorder.max_clipboard_content_length must not be negative")
	}
	if r.MaxTextSelectionLength < 0 {
		return errors.New("recorder.max_text_selection_length must not be negative")
	}
	if r.MouseMoveThrottleMs < 0 {
		return errors.New("recorder.mouse_move_throttle_ms must not be negative")
	}
	if r.MinDragDistance < 0 {
		return errors.New("recorder.min_drag_distance must not be negative")
	}
	if r.BrowserNavigationSettleMs <= 0 {
		return errors.New("recorder.browser_navigation_settle_ms must be positive")
	}
	if r.QueueCapacity <= 0 {
		return errors.New("recorder.queue_capacity must be positive")
	}
	if r.MaxQueueCapacity < r.QueueCapacity {
		return errors.New("recorder.max_queue_capacity must not be below recorder.queue_capacity")
	}
	if !validPolicy(r.OverflowPolicy) {
		return fmt.Errorf("recorder.overflow_policy must be one of %s", strings.Join(overflowPolicies, ", "))
	}
	if r.SubscriberBuffer <= 0 {
		return errors.New("recorder.subscriber_buffer must be positive")
	}
	if r.FlushTickMs <= 0 {
		return errors.New("recorder.flush_tick_ms must be positive")
	}

	return nil
}

func validPolicy(policy string) bool {
	for _, p := range overflowPolicies {
		if policy == p {
			return true
		}
	}
	return false
}

func (c *Config) normalize() {
	c.Paths.RunsDir = filepath.Clean(strings.TrimSpace(c.Paths.RunsDir))

	defaults := Default()

	if c.Paths.RunsDir == "." || c.Paths.RunsDir == "" {
		c.Paths.RunsDir = defaults.Paths.RunsDir
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}

	r := &c.Recorder
	r.OverflowPolicy = strings.ToLower(strings.TrimSpace(r.OverflowPolicy))
	if r.OverflowPolicy == "" {
		r.OverflowPolicy = defaults.Recorder.OverflowPolicy
	}
	if r.QueueCapacity <= 0 {
		r.QueueCapacity = defaults.Recorder.QueueCapacity
	}
	if r.MaxQueueCapacity <= 0 {
		r.MaxQueueCapacity = max(defaults.Recorder.MaxQueueCapacity, r.QueueCapacity)
	}
	if r.SubscriberBuffer <= 0 {
		r.SubscriberBuffer = defaults.Recorder.SubscriberBuffer
	}
	if r.FlushTickMs <= 0 {
		r.FlushTickMs = defaults.Recorder.FlushTickMs
	}

	c.Privacy.AllowApps = trimList(c.Privacy.AllowApps)
	c.Privacy.AllowURLs = trimList(c.Privacy.AllowURLs)
	c.Privacy.RedactPatterns = trimList(c.Privacy.RedactPatterns)
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TextInputTimeout is the inactivity period after which a text session flushes.
func (r RecorderConfig) TextInputTimeout() time.Duration {
	return time.Duration(r.TextInputCompletionTimeoutMs) * time.Millisecond
}

// MouseMoveThrottle is the minimum spacing between forwarded pointer moves.
func (r RecorderConfig) MouseMoveThrottle() time.Duration {
	return time.Duration(r.MouseMoveThrottleMs) * time.Millisecond
}

// BrowserSettle is the quiet period that closes a pending tab navigation.
func (r RecorderConfig) BrowserSettle() time.Duration {
	return time.Duration(r.BrowserNavigationSettleMs) * time.Millisecond
}

// FlushTick is the period of the background deadline check.
func (r RecorderConfig) FlushTick() time.Duration {
	return time.Duration(r.FlushTickMs) * time.Millisecond
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
// "auto" selects console output on a terminal and JSON otherwise.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	case "auto":
		return "auto", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
