package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

var start = time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "run", "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func keystrokes(n int) []events.WorkflowEvent {
	out := make([]events.WorkflowEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, events.WorkflowEvent{
			Metadata: events.Metadata{Sequence: uint64(i + 1), Timestamp: start.Add(time.Duration(i) * time.Millisecond)},
			Payload:  &events.KeyboardEvent{KeyCode: events.VKLetter('a'), Character: "a", IsKeyDown: true},
		})
	}
	return out
}

func TestJournalRoundTrip(t *testing.T) {
	j := openJournal(t)
	w, err := workflow.New("checkout", start)
	require.NoError(t, err)
	require.NoError(t, j.Begin(w))

	evs := keystrokes(150)
	evs = append(evs, events.WorkflowEvent{
		Metadata: events.Metadata{Sequence: 151, Timestamp: start.Add(time.Second), ElementRef: "chrome:address"},
		Payload:  &events.TextInputCompletedEvent{TextValue: "example.com", InputMethod: events.InputTyped, KeystrokeCount: 11},
	})
	for _, ev := range evs {
		j.Append(w.ID, ev)
	}
	end := start.Add(2 * time.Second)
	require.NoError(t, j.Finish(w.ID, end))

	got, err := j.Load(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, w.Name, got.Name)
	require.Equal(t, workflow.SchemaVersion, got.SchemaVersion)
	require.True(t, got.StartTime.Equal(start))
	require.NotNil(t, got.EndTime)
	require.True(t, got.EndTime.Equal(end))
	require.Len(t, got.Events, len(evs))
	for i := range evs {
		require.Equal(t, evs[i].Metadata.Sequence, got.Events[i].Metadata.Sequence)
		require.Equal(t, evs[i].Payload, got.Events[i].Payload)
	}
	require.Equal(t, uint64(len(evs)), j.Stats().Written)
	require.Zero(t, j.Stats().Dropped)

	list, err := j.Workflows(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, len(evs), list[0].EventCount)
}

func TestJournalUnfinishedWorkflowLoads(t *testing.T) {
	j := openJournal(t)
	w, err := workflow.New("crashed", start)
	require.NoError(t, err)
	require.NoError(t, j.Begin(w))
	for _, ev := range keystrokes(3) {
		j.Append(w.ID, ev)
	}
	require.NoError(t, j.Flush())

	got, err := j.Load(context.Background(), w.ID)
	require.NoError(t, err)
	require.Nil(t, got.EndTime)
	require.Len(t, got.Events, 3)
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	require.NoError(t, err)
	w, err := workflow.New("reopen", start)
	require.NoError(t, err)
	require.NoError(t, j.Begin(w))
	for _, ev := range keystrokes(5) {
		j.Append(w.ID, ev)
	}
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.Load(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, got.Events, 5)
}

func TestJournalUnknownWorkflow(t *testing.T) {
	j := openJournal(t)
	_, err := j.Load(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJournalClosedRejectsWrites(t *testing.T) {
	j := openJournal(t)
	require.NoError(t, j.Close())

	w, err := workflow.New("late", start)
	require.NoError(t, err)
	require.ErrorIs(t, j.Begin(w), ErrClosed)
	require.ErrorIs(t, j.Flush(), ErrClosed)
	j.Append(w.ID, keystrokes(1)[0])
	require.Equal(t, uint64(1), j.Stats().Dropped)
}
