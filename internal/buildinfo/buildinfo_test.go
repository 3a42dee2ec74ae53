package buildinfo

import "testing"

func TestSetVersionOverridesAndIgnoresEmpty(t *testing.T) {
	orig := version
	defer func() { version = orig }()

	SetVersion("v0.4.0")
	SetVersion("")
	if got := Version(); got != "v0.4.0" {
		t.Fatalf("expected v0.4.0, got %q", got)
	}
	if got := Read().Version; got != "v0.4.0" {
		t.Fatalf("expected Read to report v0.4.0, got %q", got)
	}
}
