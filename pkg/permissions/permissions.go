// Package permissions reports whether the OS will let the recorder install
// input hooks and read the accessibility tree.
package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status is the coarse state of one permission surface.
type Status string

const (
	StatusUnknown        Status = "unknown"
	StatusGranted        Status = "granted"
	StatusDenied         Status = "denied"
	StatusPromptRequired Status = "prompt"
	StatusUnavailable    Status = "unavailable"
)

// ProbeResult is the outcome of probing one surface.
type ProbeResult struct {
	Surface  string
	Status   Status
	Message  string
	Guidance string
}

// Blocking reports whether recording through this surface cannot work.
func (p ProbeResult) Blocking() bool { return p.Status == StatusDenied }

// StatusString returns the status for manifests, defaulting to unknown.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}

// LookupEnvFunc reads an environment variable.
type LookupEnvFunc func(string) (string, bool)

// Surface is a permission the platform gates behind a user prompt. Its state
// can be pinned with the environment variable Env for tests and CI.
type Surface struct {
	Name   string
	Env    string
	Prompt string
}

var (
	// Accessibility gates reading UI elements and focus changes.
	Accessibility = Surface{Name: "accessibility", Env: "FLOWREC_ACCESSIBILITY", Prompt: "accessibility trust required"}

	// InputMonitoring gates global keyboard and pointer hooks.
	InputMonitoring = Surface{Name: "input monitoring", Env: "FLOWREC_INPUT_MONITORING", Prompt: "input monitoring approval required"}
)

// Surfaces lists every surface the recorder depends on.
func Surfaces() []Surface { return []Surface{Accessibility, InputMonitoring} }

var statusAliases = map[string]Status{
	"granted":     StatusGranted,
	"allow":       StatusGranted,
	"allowed":     StatusGranted,
	"yes":         StatusGranted,
	"true":        StatusGranted,
	"denied":      StatusDenied,
	"blocked":     StatusDenied,
	"no":          StatusDenied,
	"false":       StatusDenied,
	"prompt":      StatusPromptRequired,
	"ask":         StatusPromptRequired,
	"unavailable": StatusUnavailable,
	"unsupported": StatusUnavailable,
}

// Probe resolves the surface state: env override first, then the platform
// default. A nil lookup reads the process environment.
func (s Surface) Probe(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(s.Env); ok {
		return s.fromOverride(value)
	}
	if runtime.GOOS == "darwin" {
		return ProbeResult{Surface: s.Name, Status: StatusPromptRequired, Message: s.Prompt}
	}
	return ProbeResult{Surface: s.Name, Status: StatusUnavailable, Message: s.Name + " prompts unavailable on " + runtime.GOOS}
}

func (s Surface) fromOverride(value string) ProbeResult {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return ProbeResult{Surface: s.Name, Status: StatusUnknown, Message: s.Name + " state unknown (" + s.Env + "=" + value + ")"}
	}
	res := ProbeResult{Surface: s.Name, Status: status, Message: s.Name + " " + string(status) + " via " + s.Env}
	if status == StatusDenied {
		res.Guidance = "grant " + s.Name + " to the terminal in System Settings > Privacy & Security, or unset " + s.Env
	}
	return res
}

// ProbeAll probes every surface in Surfaces order.
func ProbeAll(lookup LookupEnvFunc) []ProbeResult {
	out := make([]ProbeResult, 0, len(Surfaces()))
	for _, s := range Surfaces() {
		out = append(out, s.Probe(lookup))
	}
	return out
}

// ProbeAccessibility probes the Accessibility surface.
func ProbeAccessibility(lookup LookupEnvFunc) ProbeResult { return Accessibility.Probe(lookup) }

// ProbeInputMonitoring probes the InputMonitoring surface.
func ProbeInputMonitoring(lookup LookupEnvFunc) ProbeResult { return InputMonitoring.Probe(lookup) }
