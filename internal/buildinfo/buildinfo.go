// Package buildinfo exposes the version stamped into the flowrec binary.
package buildinfo

import "runtime/debug"

// version is set with -ldflags "-X .../internal/buildinfo.version=v1.2.3".
var version = "dev"

// Info describes the running build.
type Info struct {
	Version  string
	Revision string
	Modified bool
}

// SetVersion overrides the version, ignoring empty values.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Read merges the linker-stamped version with module and VCS build settings.
func Read() Info {
	info := Info{Version: version}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Version returns the version, falling back to a short VCS revision for
// untagged builds.
func Version() string {
	info := Read()
	if info.Version != "dev" || info.Revision == "" {
		return info.Version
	}
	rev := info.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if info.Modified {
		rev += "-dirty"
	}
	return "dev+" + rev
}
