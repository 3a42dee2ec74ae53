package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

var start = time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)

func sample(t *testing.T) *Workflow {
	t.Helper()
	w, err := New("login flow", start)
	require.NoError(t, err)

	dwell := int64(1500)
	w.Events = append(w.Events,
		events.WorkflowEvent{
			Metadata: events.Metadata{Sequence: 1, Timestamp: start.Add(time.Second), ElementRef: "app:edit",
				Element: &uia.Info{Role: "Edit", Name: "User name", ApplicationName: "Notepad"}},
			Payload: &events.TextInputCompletedEvent{TextValue: "hello", InputMethod: events.InputTyped, KeystrokeCount: 5, TypingDurationMs: 400},
		},
		events.WorkflowEvent{
			Metadata: events.Metadata{Sequence: 2, Timestamp: start.Add(2 * time.Second)},
			Payload:  &events.ApplicationSwitchEvent{FromApplication: "Notepad", ToApplication: "Google Chrome", SwitchMethod: events.SwitchAltTab, DwellTimeMs: &dwell, SwitchCount: 2},
		},
		events.WorkflowEvent{
			Metadata: events.Metadata{Sequence: 3, Timestamp: start.Add(3 * time.Second)},
			Payload:  &events.MouseEvent{Type: events.MouseClick, Button: events.ButtonLeft, Position: events.Position{X: 10, Y: 20}},
		},
		events.WorkflowEvent{
			Metadata: events.Metadata{Sequence: 4, Timestamp: start.Add(4 * time.Second)},
			Payload:  &events.MouseEvent{Type: events.MouseClick, Button: events.ButtonLeft, Position: events.Position{X: 30, Y: 40}},
		},
	)
	end := start.Add(5 * time.Second)
	w.EndTime = &end
	return w
}

func TestNewAssignsVersionAndID(t *testing.T) {
	a, err := New("a", start)
	require.NoError(t, err)
	b, err := New("b", start)
	require.NoError(t, err)

	require.Equal(t, SchemaVersion, a.SchemaVersion)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Nil(t, a.EndTime)
	require.NotNil(t, a.Events)
	require.Zero(t, a.Duration())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	w := sample(t)
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, Save(w, path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, w.ID, got.ID)
	require.Equal(t, w.Name, got.Name)
	require.True(t, w.StartTime.Equal(got.StartTime))
	require.NotNil(t, got.EndTime)
	require.True(t, w.EndTime.Equal(*got.EndTime))
	require.Len(t, got.Events, len(w.Events))

	for i := range w.Events {
		require.Equal(t, w.Events[i].Kind(), got.Events[i].Kind())
		require.Equal(t, w.Events[i].Metadata.Sequence, got.Events[i].Metadata.Sequence)
		require.Equal(t, w.Events[i].Payload, got.Events[i].Payload)
	}
	require.Equal(t, w.Events[0].Metadata.Element, got.Events[0].Metadata.Element)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestSaveWithoutEndTime(t *testing.T) {
	w, err := New("open", start)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "open.json")
	require.NoError(t, Save(w, path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Nil(t, got.EndTime)
	require.Empty(t, got.Events)
}

func TestSaveToMissingDirectoryIsPersistenceError(t *testing.T) {
	w := sample(t)
	err := Save(w, filepath.Join(t.TempDir(), "missing", "workflow.json"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPersistence))

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "create", perr.Op)
}

func TestLoadRejectsUnknownSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version": 99, "events": []}`), 0o644))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrPersistence)
}

func TestCountsAndClone(t *testing.T) {
	w := sample(t)
	counts := w.Counts()
	require.Equal(t, events.KindMouse, counts[0].Kind)
	require.Equal(t, 2, counts[0].Count)
	require.Len(t, counts, 3)
	require.Equal(t, 5*time.Second, w.Duration())

	c := w.Clone()
	c.Events = c.Events[:1]
	*c.EndTime = start
	require.Len(t, w.Events, 4)
	require.Equal(t, start.Add(5*time.Second), *w.EndTime)
}
