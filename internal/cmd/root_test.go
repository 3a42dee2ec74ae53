package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func newTestRoot() (*RootCommand, *bytes.Buffer, *bytes.Buffer) {
	rc := NewRootCommand()
	var stdout, stderr bytes.Buffer
	rc.stdout = &stdout
	rc.stderr = &stderr
	rc.lookupEnv = func(string) (string, bool) { return "", false }
	return rc, &stdout, &stderr
}

func TestRootHelpListsCommands(t *testing.T) {
	rc, stdout, _ := newTestRoot()
	if err := rc.Execute(nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, name := range []string{"record", "inspect", "doctor", "version"} {
		if !strings.Contains(stdout.String(), "  "+name) {
			t.Fatalf("expected %q in help, got %q", name, stdout.String())
		}
	}
}

func TestRootUnknownCommand(t *testing.T) {
	rc, _, stderr := newTestRoot()
	if err := rc.Execute([]string{"bundle"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if !strings.Contains(stderr.String(), `Unknown command "bundle"`) {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestVersionCommand(t *testing.T) {
	origVersion, origGOOS := runtimeVersion, runtimeGOOS
	runtimeVersion = func() string { return "go1.25.0" }
	runtimeGOOS = func() string { return "plan9" }
	defer func() { runtimeVersion, runtimeGOOS = origVersion, origGOOS }()

	rc, stdout, _ := newTestRoot()
	if err := rc.Execute([]string{"version"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "flowrec ") || !strings.Contains(stdout.String(), "(go1.25.0/plan9)") {
		t.Fatalf("unexpected version output %q", stdout.String())
	}

	rc, stdout, _ = newTestRoot()
	if err := rc.Execute([]string{"version", "-short"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(stdout.String(), "flowrec") {
		t.Fatalf("short version should be bare, got %q", stdout.String())
	}
}

func TestRootRejectsBadLogFormat(t *testing.T) {
	rc, _, _ := newTestRoot()
	if err := rc.Execute([]string{"--config", "", "--log-format", "xml", "doctor"}); err == nil {
		t.Fatalf("expected invalid log format error")
	}
}

func TestRootReadsGlobalsFromEnv(t *testing.T) {
	rc, _, _ := newTestRoot()
	env := map[string]string{"FLOWREC_LOG_FORMAT": "yaml"}
	rc.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	if err := rc.Execute([]string{"doctor"}); err == nil {
		t.Fatalf("expected invalid log format from env")
	}

	rc, _, _ = newTestRoot()
	if err := rc.Execute([]string{"--log-format", "json", "--config", "", "version"}); err != nil {
		t.Fatalf("version should not need config: %v", err)
	}
	if rc.globals.logFormat != "json" {
		t.Fatalf("flag should win over env, got %q", rc.globals.logFormat)
	}
}
