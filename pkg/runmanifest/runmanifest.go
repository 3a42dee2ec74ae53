package runmanifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/config"
)

// SchemaVersion captures the manifest version for compatibility checks.
const SchemaVersion = 1

// Layout represents the absolute filesystem locations for a run.
type Layout struct {
	Root           string
	ManifestPath   string
	CaptureLogPath string
	WorkflowPath   string
	JournalPath    string
}

// Paths holds the relative locations stored in the manifest for portability.
type Paths struct {
	Root       string `json:"root"`
	Manifest   string `json:"manifest"`
	CaptureLog string `json:"capture_log"`
	Workflow   string `json:"workflow"`
	Journal    string `json:"journal,omitempty"`
}

// RecordingSettings records how the run was configured.
type RecordingSettings struct {
	Name              string   `json:"name"`
	Source            string   `json:"source"`
	DurationSeconds   int      `json:"duration_seconds,omitempty"`
	RecordedKinds     []string `json:"recorded_kinds"`
	CaptureUIElements bool     `json:"capture_ui_elements"`
	JournalEnabled    bool     `json:"journal_enabled"`
	PrivacyFiltering  bool     `json:"privacy_filtering"`
}

// Status summarises the lifecycle of a recording run.
type Status struct {
	State       string                    `json:"state"`
	Summary     string                    `json:"summary,omitempty"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	EndedAt     *time.Time                `json:"ended_at,omitempty"`
	Termination string                    `json:"termination,omitempty"`
	Controller  []ControllerTimelineEntry `json:"controller_timeline,omitempty"`
	Components  []ComponentStatus         `json:"components,omitempty"`
	Counters    *Counters                 `json:"counters,omitempty"`
}

// ControllerTimelineEntry records controller state transitions for diagnostics.
type ControllerTimelineEntry struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ComponentStatus captures availability and outcome details for a component
// of the recording pipeline.
type ComponentStatus struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Available  bool   `json:"available"`
	State      string `json:"state"`
	Provider   string `json:"provider,omitempty"`
	Permission string `json:"permission,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Component outcome states used in manifests for downstream tooling.
const (
	ComponentStatePending     = "pending"
	ComponentStateCompleted   = "completed"
	ComponentStateSkipped     = "skipped"
	ComponentStateUnavailable = "unavailable"
	ComponentStateErrored     = "error"
)

// Counters are the final recorder statistics of a run.
type Counters struct {
	Events            int    `json:"events"`
	RawAccepted       uint64 `json:"raw_accepted"`
	RawDropped        uint64 `json:"raw_dropped"`
	RawFiltered       uint64 `json:"raw_filtered"`
	DiscardedPaused   uint64 `json:"discarded_while_paused"`
	QueueHighWater    int    `json:"queue_high_water"`
	PrivateDropped    uint64 `json:"private_dropped"`
	Throttled         uint64 `json:"throttled"`
	ElementFailures   uint64 `json:"element_failures"`
	SubscriberDropped uint64 `json:"subscriber_dropped"`
	JournalWritten    uint64 `json:"journal_written"`
	JournalDropped    uint64 `json:"journal_dropped"`
}

// Manifest is the durable metadata describing a recording run.
type Manifest struct {
	SchemaVersion int               `json:"schema_version"`
	RunID         string            `json:"run_id"`
	WorkflowID    string            `json:"workflow_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Hostname      string            `json:"hostname"`
	AppVersion    string            `json:"app_version"`
	ConfigSource  string            `json:"config_source"`
	Recording     RecordingSettings `json:"recording"`
	Paths         Paths             `json:"paths"`
	Status        Status            `json:"status"`
}

// Options captures the knobs for creating a new manifest.
type Options struct {
	RunID      string
	CreatedAt  time.Time
	Hostname   string
	AppVersion string
	Name       string
	Source     string
	Duration   time.Duration
	Config     config.Config
	Layout     Layout
}

// New constructs a manifest using the supplied options.
func New(opts Options) Manifest {
	paths := opts.Layout.RelativePaths()
	if !opts.Config.Storage.JournalEnabled {
		paths.Journal = ""
	}
	return Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         opts.RunID,
		CreatedAt:     opts.CreatedAt.UTC(),
		Hostname:      opts.Hostname,
		AppVersion:    opts.AppVersion,
		ConfigSource:  opts.Config.Source,
		Recording: RecordingSettings{
			Name:              opts.Name,
			Source:            opts.Source,
			DurationSeconds:   int(opts.Duration / time.Second),
			RecordedKinds:     RecordedKinds(opts.Config.Recorder),
			CaptureUIElements: opts.Config.Recorder.CaptureUIElements,
			JournalEnabled:    opts.Config.Storage.JournalEnabled,
			PrivacyFiltering:  len(opts.Config.Privacy.AllowApps) > 0 || len(opts.Config.Privacy.AllowURLs) > 0,
		},
		Paths:  paths,
		Status: Status{State: "pending"},
	}
}

// RecordedKinds lists the event kinds enabled by the recorder toggles.
func RecordedKinds(r config.RecorderConfig) []string {
	toggles := map[string]bool{
		"keyboard":               r.RecordKeyboard,
		"mouse":                  r.RecordMouse,
		"window":                 r.RecordWindow,
		"clipboard":              r.RecordClipboard,
		"text_selection":         r.RecordTextSelection,
		"ui_focus_changed":       r.RecordUIFocusChanges,
		"ui_structure_changed":   r.RecordUIStructureChanges,
		"ui_property_changed":    r.RecordUIPropertyChanges,
		"drag_drop":              r.RecordDragDrop,
		"hotkey":                 r.RecordHotkeys,
		"text_input_completed":   r.RecordTextInputCompletion,
		"application_switch":     r.RecordApplicationSwitch,
		"browser_tab_navigation": r.RecordBrowserTabNavigation,
	}
	kinds := make([]string, 0, len(toggles))
	for kind, on := range toggles {
		if on {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// BuildLayout creates an absolute filesystem layout for a run.
func BuildLayout(runsDir, runID string) Layout {
	root := filepath.Join(runsDir, runID)
	return Layout{
		Root:           root,
		ManifestPath:   filepath.Join(root, "manifest.json"),
		CaptureLogPath: filepath.Join(root, "capture.log"),
		WorkflowPath:   filepath.Join(root, "workflow.json"),
		JournalPath:    filepath.Join(root, "journal.db"),
	}
}

// RelativePaths exposes the manifest-friendly relative paths for the layout.
func (l Layout) RelativePaths() Paths {
	return Paths{
		Root:       ".",
		Manifest:   filepath.Base(l.ManifestPath),
		CaptureLog: filepath.Base(l.CaptureLogPath),
		Workflow:   filepath.Base(l.WorkflowPath),
		Journal:    filepath.Base(l.JournalPath),
	}
}

// EnsureFilesystem prepares the run directory and an empty capture log.
func EnsureFilesystem(layout Layout) error {
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return fmt.Errorf("create run root: %w", err)
	}

	file, err := os.OpenFile(layout.CaptureLogPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("initialise capture log: %w", err)
	}
	defer file.Close()

	return nil
}

// Save writes the manifest JSON to disk with indentation for readability.
func Save(man Manifest, path string) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest JSON file from disk.
func Load(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	if man.SchemaVersion != SchemaVersion {
		return man, fmt.Errorf("unsupported manifest schema version %d", man.SchemaVersion)
	}
	return man, nil
}

// ResolveRunID chooses a run identifier derived from the timestamp and avoids collisions.
func ResolveRunID(runsDir string, now time.Time) (string, error) {
	if strings.TrimSpace(runsDir) == "" {
		return "", errors.New("runs directory must not be empty")
	}

	base := now.UTC().Format("20060102_150405")
	candidate := base
	suffix := 1
	for {
		_, err := os.Stat(filepath.Join(runsDir, candidate))
		if err == nil {
			candidate = fmt.Sprintf("%s_%02d", base, suffix)
			suffix++
			continue
		}
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		return "", fmt.Errorf("inspect runs directory: %w", err)
	}
}
