// Package workflow holds the recorded workflow and its JSON file format.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// SchemaVersion captures the file format version for compatibility checks.
const SchemaVersion = 1

// ErrPersistence classifies every failure to write or read a workflow file.
var ErrPersistence = errors.New("workflow persistence failed")

// PersistenceError describes a failed file operation.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s workflow %q: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports ErrPersistence as a match so callers need not know the type.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Workflow is a named, ordered log of workflow events.
type Workflow struct {
	SchemaVersion int                    `json:"schema_version"`
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       *time.Time             `json:"end_time,omitempty"`
	Events        []events.WorkflowEvent `json:"events"`
}

// New returns an empty workflow with a time-ordered identifier.
func New(name string, start time.Time) (*Workflow, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate workflow id: %w", err)
	}
	return &Workflow{
		SchemaVersion: SchemaVersion,
		ID:            id.String(),
		Name:          name,
		StartTime:     start.UTC(),
		Events:        []events.WorkflowEvent{},
	}, nil
}

// Clone copies the workflow header and event slice. Payloads are shared;
// they are not mutated once recorded.
func (w *Workflow) Clone() *Workflow {
	out := *w
	out.Events = append([]events.WorkflowEvent(nil), w.Events...)
	if w.EndTime != nil {
		end := *w.EndTime
		out.EndTime = &end
	}
	return &out
}

// Duration is the recorded span, or zero while the workflow is still open.
func (w *Workflow) Duration() time.Duration {
	if w.EndTime == nil {
		return 0
	}
	return w.EndTime.Sub(w.StartTime)
}

// KindCount is the number of events of one kind.
type KindCount struct {
	Kind  events.Kind
	Count int
}

// Counts tallies events per kind, most frequent first.
func (w *Workflow) Counts() []KindCount {
	tally := make(map[events.Kind]int)
	for _, ev := range w.Events {
		tally[ev.Kind()]++
	}
	out := make([]KindCount, 0, len(tally))
	for kind, n := range tally {
		out = append(out, KindCount{Kind: kind, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// Save writes w to path as indented JSON. The file is replaced atomically so
// a failed save never leaves a truncated workflow behind.
func Save(w *Workflow, path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &PersistenceError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PersistenceError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &PersistenceError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &PersistenceError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Load reads a workflow file written by Save.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	if w.SchemaVersion != SchemaVersion {
		return nil, &PersistenceError{Op: "decode", Path: path, Err: fmt.Errorf("unsupported schema version %d", w.SchemaVersion)}
	}
	if w.Events == nil {
		w.Events = []events.WorkflowEvent{}
	}
	return &w, nil
}
