package source

import (
	"runtime"
	"strings"

	"github.com/offlinefirst/workflow-recorder/pkg/permissions"
)

// Environment describes whether the native backend can record here.
// Permission is the worst status across the probed surfaces.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

// DetectEnvironment probes the platform and its permission surfaces.
func DetectEnvironment() Environment {
	return detect(runtime.GOOS, permissions.ProbeAll(nil))
}

func detect(goos string, probes []permissions.ProbeResult) Environment {
	if goos != "darwin" {
		return Environment{
			Provider:   "synthetic",
			Permission: "not_applicable",
			Message:    "no native capture backend on " + goos + "; use --source synthetic or replay",
		}
	}

	env := Environment{Provider: "quartz_event_tap", Available: true, Permission: string(permissions.StatusGranted)}
	var notes []string
	for _, p := range probes {
		switch {
		case p.Blocking():
			env.Available = false
			env.Permission = string(permissions.StatusDenied)
			notes = append(notes, p.Surface+" denied")
			if env.Guidance == "" {
				env.Guidance = p.Guidance
			}
		case p.Status != permissions.StatusGranted:
			if env.Permission == string(permissions.StatusGranted) {
				env.Permission = p.StatusString()
			}
			notes = append(notes, p.Message)
		}
	}
	if len(notes) == 0 {
		env.Message = "event tap ready"
	} else {
		env.Message = strings.Join(notes, "; ")
	}
	return env
}
